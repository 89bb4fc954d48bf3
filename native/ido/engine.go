package ido

import (
	"errors"
	"math/big"
	"time"

	"launchpad/core/events"
)

// TokenTransferor mirrors the transferFrom surface of an external payment
// token contract. Implementations reject the transfer (insufficient balance,
// missing allowance, refusing recipient) by returning an error.
type TokenTransferor interface {
	TransferFrom(from, to [20]byte, amount *big.Int) error
}

// NativeTransferor moves native-currency value between accounts. A recipient
// that refuses incoming value surfaces as an error.
type NativeTransferor interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

// engineState is the narrow persistence surface the engine needs. Snapshot
// and RevertToSnapshot give each purchase all-or-nothing semantics: every
// ledger write between a snapshot and a revert is undone.
type engineState interface {
	IDOProjectCount() (uint64, error)
	IDOProjectGet(id uint64) (*Project, bool, error)
	IDOProjectAppend(p *Project) (uint64, error)
	IDOAllocationGet(id uint64, buyer [20]byte) (*AllocationRecord, bool, error)
	IDOAllocationPut(id uint64, record *AllocationRecord) error
	IDOParticipants(id uint64) ([][20]byte, error)
	IDOParticipantAppend(id uint64, buyer [20]byte) error
	IDOTotalsGet(id uint64) (*ProjectTotals, bool, error)
	IDOTotalsPut(id uint64, totals *ProjectTotals) error
	Snapshot() int
	RevertToSnapshot(rev int)
}

var (
	errUSDCNotConfigured   = errors.New("ido: usdc address must not be zero")
	errUSDTNotConfigured   = errors.New("ido: usdt address must not be zero")
	errOwnerNotConfigured  = errors.New("ido: owner address must not be zero")
	errFeedNotConfigured   = errors.New("ido: price feed not configured")
	errNativeNotConfigured = errors.New("ido: native transferor not configured")
	errTokenNotConfigured  = errors.New("ido: token transferor not configured")
)

// Engine wires the sale registry, pricing, allocation ledger and settlement
// into one serialized unit of work per call. It is the sole writer of the
// allocation ledger; the owner identity is fixed at wiring time.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	owner   [20]byte
	usdc    [20]byte
	usdt    [20]byte
	tokens  map[[20]byte]TokenTransferor
	native  NativeTransferor
	price   *PriceSource
}

// NewEngine constructs a sale engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		tokens:  make(map[[20]byte]TokenTransferor),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetOwner fixes the identity allowed to register projects.
func (e *Engine) SetOwner(owner [20]byte) { e.owner = owner }

// SetStableToken registers one of the two stablecoin payment currencies with
// its token contract binding.
func (e *Engine) SetStableToken(currency Currency, addr [20]byte, token TokenTransferor) {
	switch currency {
	case CurrencyUSDC:
		e.usdc = addr
	case CurrencyUSDT:
		e.usdt = addr
	default:
		return
	}
	e.tokens[addr] = token
}

// SetNativeTransferor configures the native-currency settlement path.
func (e *Engine) SetNativeTransferor(native NativeTransferor) { e.native = native }

// SetPriceSource configures the oracle adapter for native-currency pricing.
func (e *Engine) SetPriceSource(price *PriceSource) { e.price = price }

// Ready reports whether the engine is fully wired. The zero-address checks
// mirror the constructor guards of the settlement contract this engine
// models.
func (e *Engine) Ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if isZeroAddress(e.owner) {
		return errOwnerNotConfigured
	}
	if isZeroAddress(e.usdc) {
		return errUSDCNotConfigured
	}
	if isZeroAddress(e.usdt) {
		return errUSDTNotConfigured
	}
	if e.native == nil {
		return errNativeNotConfigured
	}
	if e.price == nil {
		return errFeedNotConfigured
	}
	return nil
}

// StableTokens returns the configured stablecoin addresses in (USDC, USDT)
// order.
func (e *Engine) StableTokens() ([20]byte, [20]byte) { return e.usdc, e.usdt }

func (e *Engine) emit(evt events.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// currencyOf resolves a payment token address against the configured
// stablecoins.
func (e *Engine) currencyOf(payToken [20]byte) (Currency, error) {
	switch {
	case !isZeroAddress(e.usdc) && payToken == e.usdc:
		return CurrencyUSDC, nil
	case !isZeroAddress(e.usdt) && payToken == e.usdt:
		return CurrencyUSDT, nil
	default:
		return 0, ErrUnsupportedCurrency
	}
}

// checkWindow derives the sale phase from the clock alone; no phase is ever
// stored. The window is inclusive on both ends.
func (e *Engine) checkWindow(p *Project) error {
	now := e.now()
	if now < p.StartTime {
		return ErrNotStarted
	}
	if now > p.EndTime {
		return ErrEnded
	}
	return nil
}

// NativePriceE8 exposes the oracle read used for native-currency pricing.
func (e *Engine) NativePriceE8() (*big.Int, error) {
	if e == nil || e.price == nil {
		return nil, ErrInvalidPriceFeed
	}
	return e.price.NativePriceE8()
}

// BuyWithStable settles a stablecoin purchase: it validates the project and
// window, reserves supply (clamping to the remainder on partial fill),
// prices the granted amount, and pulls the cost from the buyer to the
// project's payout address. Transfer rejection rolls back every ledger write
// of this call. Returns the granted token amount.
func (e *Engine) BuyWithStable(projectID uint64, buyer, payToken [20]byte, tokenAmount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	project, err := e.requireProject(projectID)
	if err != nil {
		return nil, err
	}
	currency, err := e.currencyOf(payToken)
	if err != nil {
		return nil, err
	}
	token := e.tokens[payToken]
	if token == nil {
		return nil, errTokenNotConfigured
	}
	if err := e.checkWindow(project); err != nil {
		return nil, err
	}
	if tokenAmount == nil || tokenAmount.Sign() == 0 {
		return nil, ErrZeroAmount
	}

	rev := e.state.Snapshot()
	granted, soldOut, err := e.reserve(projectID, project, buyer, tokenAmount)
	if err != nil {
		e.state.RevertToSnapshot(rev)
		return nil, err
	}
	// Re-price on the granted amount: pro-rating the original cost would
	// break the ceiling-rounding contract.
	cost := StablePayment(project, granted)
	if err := e.recordPayment(projectID, buyer, currency, cost); err != nil {
		e.state.RevertToSnapshot(rev)
		return nil, err
	}
	if err := token.TransferFrom(buyer, project.PayoutAddress, cost); err != nil {
		e.state.RevertToSnapshot(rev)
		return nil, ErrTransferFailed
	}

	e.emit(events.IDOTokenBought{ProjectID: projectID, Buyer: buyer, PayToken: payToken, Amount: cloneBigInt(granted)})
	if soldOut {
		e.emit(events.IDOTokenSoldOut{ProjectID: projectID})
	}
	return granted, nil
}

// BuyWithNative settles a purchase paid in the native currency. The cost is
// derived from the freshly read oracle price with the project discount
// applied, recomputed on the granted amount after any partial fill. Exactly
// the cost moves from the buyer to the payout address; any excess attached
// value stays with the buyer. A rejected transfer on either side rolls the
// purchase back.
func (e *Engine) BuyWithNative(projectID uint64, buyer [20]byte, tokenAmount, attachedValue *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.native == nil {
		return nil, errNativeNotConfigured
	}
	project, err := e.requireProject(projectID)
	if err != nil {
		return nil, err
	}
	if err := e.checkWindow(project); err != nil {
		return nil, err
	}
	if tokenAmount == nil || tokenAmount.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	priceE8, err := e.NativePriceE8()
	if err != nil {
		return nil, err
	}

	rev := e.state.Snapshot()
	granted, soldOut, err := e.reserve(projectID, project, buyer, tokenAmount)
	if err != nil {
		e.state.RevertToSnapshot(rev)
		return nil, err
	}
	cost := NativePayment(project, granted, priceE8)
	if attachedValue == nil || attachedValue.Cmp(cost) < 0 {
		e.state.RevertToSnapshot(rev)
		return nil, ErrInsufficientPayment
	}
	if err := e.recordPayment(projectID, buyer, CurrencyNative, cost); err != nil {
		e.state.RevertToSnapshot(rev)
		return nil, err
	}
	if err := e.native.Transfer(buyer, project.PayoutAddress, cost); err != nil {
		e.state.RevertToSnapshot(rev)
		return nil, ErrTransferFailed
	}

	e.emit(events.IDOTokenBought{ProjectID: projectID, Buyer: buyer, Amount: cloneBigInt(granted)})
	if soldOut {
		e.emit(events.IDOTokenSoldOut{ProjectID: projectID})
	}
	return granted, nil
}
