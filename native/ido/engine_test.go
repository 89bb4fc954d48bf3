package ido

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"launchpad/core/events"
)

const baseTime = int64(1_700_000_000)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

type ledgerData struct {
	projects     []*Project
	allocs       map[string]*AllocationRecord
	participants map[uint64][][20]byte
	totals       map[uint64]*ProjectTotals
}

func newLedgerData() ledgerData {
	return ledgerData{
		allocs:       make(map[string]*AllocationRecord),
		participants: make(map[uint64][][20]byte),
		totals:       make(map[uint64]*ProjectTotals),
	}
}

func (d ledgerData) clone() ledgerData {
	out := newLedgerData()
	out.projects = append(out.projects, d.projects...)
	for k, v := range d.allocs {
		out.allocs[k] = v.Clone()
	}
	for k, v := range d.participants {
		out.participants[k] = append([][20]byte(nil), v...)
	}
	for k, v := range d.totals {
		out.totals[k] = v.Clone()
	}
	return out
}

type mockState struct {
	ledgerData
	snapshots []ledgerData
}

func newMockState() *mockState {
	return &mockState{ledgerData: newLedgerData()}
}

func allocKey(id uint64, buyer [20]byte) string {
	return fmt.Sprintf("%d/%x", id, buyer)
}

func (m *mockState) IDOProjectCount() (uint64, error) {
	return uint64(len(m.projects)), nil
}

func (m *mockState) IDOProjectGet(id uint64) (*Project, bool, error) {
	if id >= uint64(len(m.projects)) {
		return nil, false, nil
	}
	return m.projects[id].Clone(), true, nil
}

func (m *mockState) IDOProjectAppend(p *Project) (uint64, error) {
	m.projects = append(m.projects, p.Clone())
	return uint64(len(m.projects) - 1), nil
}

func (m *mockState) IDOAllocationGet(id uint64, buyer [20]byte) (*AllocationRecord, bool, error) {
	record, ok := m.allocs[allocKey(id, buyer)]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *mockState) IDOAllocationPut(id uint64, record *AllocationRecord) error {
	m.allocs[allocKey(id, record.Buyer)] = record.Clone()
	return nil
}

func (m *mockState) IDOParticipants(id uint64) ([][20]byte, error) {
	return append([][20]byte(nil), m.participants[id]...), nil
}

func (m *mockState) IDOParticipantAppend(id uint64, buyer [20]byte) error {
	m.participants[id] = append(m.participants[id], buyer)
	return nil
}

func (m *mockState) IDOTotalsGet(id uint64) (*ProjectTotals, bool, error) {
	totals, ok := m.totals[id]
	if !ok {
		return nil, false, nil
	}
	return totals.Clone(), true, nil
}

func (m *mockState) IDOTotalsPut(id uint64, totals *ProjectTotals) error {
	m.totals[id] = totals.Clone()
	return nil
}

func (m *mockState) Snapshot() int {
	m.snapshots = append(m.snapshots, m.ledgerData.clone())
	return len(m.snapshots) - 1
}

func (m *mockState) RevertToSnapshot(rev int) {
	if rev < 0 || rev >= len(m.snapshots) {
		return
	}
	m.ledgerData = m.snapshots[rev]
	m.snapshots = m.snapshots[:rev]
}

type transferCall struct {
	from, to [20]byte
	amount   *big.Int
}

type mockToken struct {
	calls []transferCall
	fail  bool
}

func (m *mockToken) TransferFrom(from, to [20]byte, amount *big.Int) error {
	if m.fail {
		return errors.New("transfer rejected")
	}
	m.calls = append(m.calls, transferCall{from: from, to: to, amount: new(big.Int).Set(amount)})
	return nil
}

type mockNative struct {
	calls []transferCall
	fail  bool
}

func (m *mockNative) Transfer(from, to [20]byte, amount *big.Int) error {
	if m.fail {
		return errors.New("transfer rejected")
	}
	m.calls = append(m.calls, transferCall{from: from, to: to, amount: new(big.Int).Set(amount)})
	return nil
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *captureEmitter) types() []string {
	out := make([]string, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType())
	}
	return out
}

type fixture struct {
	engine  *Engine
	state   *mockState
	usdc    *mockToken
	usdt    *mockToken
	native  *mockNative
	feed    *stubFeed
	emitter *captureEmitter
	now     int64
	owner   [20]byte
	payout  [20]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:   newMockState(),
		usdc:    &mockToken{},
		usdt:    &mockToken{},
		native:  &mockNative{},
		feed:    &stubFeed{value: big.NewInt(10_000_000), ts: baseTime},
		emitter: &captureEmitter{},
		now:     baseTime,
		owner:   addr(0x01),
		payout:  addr(0xEE),
	}
	engine := NewEngine()
	engine.SetState(f.state)
	engine.SetEmitter(f.emitter)
	engine.SetNowFunc(func() int64 { return f.now })
	engine.SetOwner(f.owner)
	engine.SetStableToken(CurrencyUSDC, addr(0xAA), f.usdc)
	engine.SetStableToken(CurrencyUSDT, addr(0xBB), f.usdt)
	engine.SetNativeTransferor(f.native)
	source := NewPriceSource(f.feed)
	source.SetNowFunc(func() int64 { return f.now })
	engine.SetPriceSource(source)
	f.engine = engine
	return f
}

func (f *fixture) project() *Project {
	return &Project{
		Name:                 "launch",
		StartTime:            baseTime + 100,
		EndTime:              baseTime + 1000,
		TokenDecimals:        6,
		MaxAllocateAmount:    scaled(1000, 6),
		USDPricePerTokenE6:   big.NewInt(1_000_000),
		DiscountMultiplierE4: 9_500,
		PayoutAddress:        f.payout,
	}
}

func (f *fixture) nativeProject() *Project {
	p := f.project()
	p.TokenDecimals = 18
	p.MaxAllocateAmount = scaled(1000, 18)
	p.USDPricePerTokenE6 = big.NewInt(200_000)
	return p
}

func (f *fixture) addProject(t *testing.T, p *Project) uint64 {
	t.Helper()
	id, err := f.engine.AddProject(f.owner, p)
	if err != nil {
		t.Fatalf("add project: %v", err)
	}
	return id
}

// openWindow advances the clock into the default project's sale window.
func (f *fixture) openWindow() { f.now = baseTime + 150 }

func TestEngineReadyChecksWiring(t *testing.T) {
	engine := NewEngine()
	if err := engine.Ready(); err == nil {
		t.Fatalf("expected unwired engine to fail readiness")
	}
	f := newFixture(t)
	if err := f.engine.Ready(); err != nil {
		t.Fatalf("expected wired engine to be ready, got %v", err)
	}
}

func TestAddProjectRequiresOwner(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.AddProject(addr(0x99), f.project()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if len(f.state.projects) != 0 {
		t.Fatalf("rejected project must not be stored")
	}
}

func TestAddProjectValidatesParameters(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name   string
		mutate func(*Project)
	}{
		{"zero payout", func(p *Project) { p.PayoutAddress = [20]byte{} }},
		{"start in the past", func(p *Project) { p.StartTime = baseTime - 1 }},
		{"end before start", func(p *Project) { p.EndTime = p.StartTime }},
		{"zero supply", func(p *Project) { p.MaxAllocateAmount = big.NewInt(0) }},
		{"zero usd price", func(p *Project) { p.USDPricePerTokenE6 = big.NewInt(0) }},
		{"discount zero", func(p *Project) { p.DiscountMultiplierE4 = 0 }},
		{"discount too high", func(p *Project) { p.DiscountMultiplierE4 = 10_000 }},
	}
	seen := make(map[string]bool)
	for _, tc := range cases {
		p := f.project()
		tc.mutate(p)
		_, err := f.engine.AddProject(f.owner, p)
		if !errors.Is(err, ErrInvalidProjectParams) {
			t.Fatalf("%s: expected invalid params error, got %v", tc.name, err)
		}
		seen[err.Error()] = true
	}
	// Each rejection must carry its own reason; discount zero and discount
	// too high share one.
	if len(seen) != 6 {
		t.Fatalf("expected 6 distinct validation messages, got %d", len(seen))
	}
}

func TestAddProjectAssignsSequentialIDs(t *testing.T) {
	f := newFixture(t)
	first := f.addProject(t, f.project())
	second := f.addProject(t, f.project())
	if first != 0 || second != 1 {
		t.Fatalf("unexpected project ids: %d, %d", first, second)
	}
	projects, err := f.engine.Projects()
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(projects))
	}
	if got := f.emitter.types(); len(got) != 2 || got[0] != events.TypeIDOProjectAdded {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestBuyWithStableSettles(t *testing.T) {
	f := newFixture(t)
	id := f.addProject(t, f.project())
	f.openWindow()
	buyer := addr(0x10)

	granted, err := f.engine.BuyWithStable(id, buyer, addr(0xAA), scaled(100, 6))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if granted.Cmp(scaled(100, 6)) != 0 {
		t.Fatalf("unexpected granted amount: %s", granted)
	}
	if len(f.usdc.calls) != 1 {
		t.Fatalf("expected one transfer, got %d", len(f.usdc.calls))
	}
	call := f.usdc.calls[0]
	if call.from != buyer || call.to != f.payout {
		t.Fatalf("transfer endpoints wrong: %x -> %x", call.from, call.to)
	}
	// 100 tokens at 1.0 USD in 6-decimal units.
	if call.amount.Cmp(scaled(100, 6)) != 0 {
		t.Fatalf("unexpected charge: %s", call.amount)
	}
	allocated, err := f.engine.UserAllocatedAmount(id, buyer)
	if err != nil {
		t.Fatalf("user allocated: %v", err)
	}
	if allocated.Cmp(scaled(100, 6)) != 0 {
		t.Fatalf("unexpected user allocation: %s", allocated)
	}
	totals, err := f.engine.RaisedAmount(id)
	if err != nil {
		t.Fatalf("raised: %v", err)
	}
	if totals.RaisedUSDC.Cmp(scaled(100, 6)) != 0 || totals.RaisedUSDT.Sign() != 0 {
		t.Fatalf("unexpected raised totals: %+v", totals)
	}
	if got := f.emitter.types(); len(got) != 2 || got[1] != events.TypeIDOTokenBought {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestBuyWithStableRejectsUnknownToken(t *testing.T) {
	f := newFixture(t)
	id := f.addProject(t, f.project())
	f.openWindow()
	if _, err := f.engine.BuyWithStable(id, addr(0x10), addr(0xCC), scaled(10, 6)); !errors.Is(err, ErrUnsupportedCurrency) {
		t.Fatalf("expected unsupported currency error, got %v", err)
	}
}

func TestBuyWithStableOutsideWindow(t *testing.T) {
	f := newFixture(t)
	id := f.addProject(t, f.project())

	if _, err := f.engine.BuyWithStable(id, addr(0x10), addr(0xAA), scaled(10, 6)); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected not-started error, got %v", err)
	}
	f.now = baseTime + 1001
	if _, err := f.engine.BuyWithStable(id, addr(0x10), addr(0xAA), scaled(10, 6)); !errors.Is(err, ErrEnded) {
		t.Fatalf("expected ended error, got %v", err)
	}
	// The window is inclusive on both ends.
	f.now = baseTime + 100
	if _, err := f.engine.BuyWithStable(id, addr(0x10), addr(0xAA), scaled(10, 6)); err != nil {
		t.Fatalf("expected purchase at start boundary to settle, got %v", err)
	}
	f.now = baseTime + 1000
	if _, err := f.engine.BuyWithStable(id, addr(0x10), addr(0xAA), scaled(10, 6)); err != nil {
		t.Fatalf("expected purchase at end boundary to settle, got %v", err)
	}
}

func TestBuyWithStableRejectsZeroAmount(t *testing.T) {
	f := newFixture(t)
	id := f.addProject(t, f.project())
	f.openWindow()
	if _, err := f.engine.BuyWithStable(id, addr(0x10), addr(0xAA), big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected zero amount error, got %v", err)
	}
	if _, err := f.engine.BuyWithStable(id, addr(0x10), addr(0xAA), nil); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected zero amount error for nil, got %v", err)
	}
}

func TestBuyWithStableUnknownProject(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.BuyWithStable(7, addr(0x10), addr(0xAA), scaled(10, 6)); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected project not found, got %v", err)
	}
}

func TestBuyWithStablePartialFill(t *testing.T) {
	f := newFixture(t)
	id := f.addProject(t, f.project())
	f.openWindow()

	if _, err := f.engine.BuyWithStable(id, addr(0x10), addr(0xAA), scaled(900, 6)); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	// Only 100 of the requested 200 remain; the grant clamps and the charge
	// covers the granted amount only.
	granted, err := f.engine.BuyWithStable(id, addr(0x11), addr(0xBB), scaled(200, 6))
	if err != nil {
		t.Fatalf("second buy: %v", err)
	}
	if granted.Cmp(scaled(100, 6)) != 0 {
		t.Fatalf("expected clamped grant of 100 tokens, got %s", granted)
	}
	if f.usdt.calls[0].amount.Cmp(scaled(100, 6)) != 0 {
		t.Fatalf("charge must cover the granted amount only, got %s", f.usdt.calls[0].amount)
	}
	allocated, err := f.engine.AllocatedAmount(id)
	if err != nil {
		t.Fatalf("allocated: %v", err)
	}
	if allocated.Cmp(scaled(1000, 6)) != 0 {
		t.Fatalf("allocation must equal the cap, got %s", allocated)
	}
	got := f.emitter.types()
	if got[len(got)-1] != events.TypeIDOTokenSoldOut {
		t.Fatalf("expected sold-out event last, got %v", got)
	}

	if _, err := f.engine.BuyWithStable(id, addr(0x12), addr(0xAA), scaled(1, 6)); !errors.Is(err, ErrSoldOut) {
		t.Fatalf("expected sold out error, got %v", err)
	}
}

func TestBuyWithStableExactCapEmitsSoldOut(t *testing.T) {
	f := newFixture(t)
	id := f.addProject(t, f.project())
	f.openWindow()
	granted, err := f.engine.BuyWithStable(id, addr(0x10), addr(0xAA), scaled(1000, 6))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if granted.Cmp(scaled(1000, 6)) != 0 {
		t.Fatalf("unexpected granted amount: %s", granted)
	}
	got := f.emitter.types()
	if got[len(got)-1] != events.TypeIDOTokenSoldOut {
		t.Fatalf("expected sold-out event, got %v", got)
	}
}

func TestBuyWithStableTransferFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	id := f.addProject(t, f.project())
	f.openWindow()
	f.usdc.fail = true
	buyer := addr(0x10)

	if _, err := f.engine.BuyWithStable(id, buyer, addr(0xAA), scaled(100, 6)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failed error, got %v", err)
	}
	allocated, err := f.engine.AllocatedAmount(id)
	if err != nil {
		t.Fatalf("allocated: %v", err)
	}
	if allocated.Sign() != 0 {
		t.Fatalf("failed purchase must leave no allocation, got %s", allocated)
	}
	accounts, err := f.engine.AllocatedAccounts(id)
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if len(accounts) != 0 {
		t.Fatalf("failed purchase must not register a participant")
	}
	if got := f.emitter.types(); len(got) != 1 {
		t.Fatalf("failed purchase must emit nothing, got %v", got)
	}

	// The project stays purchasable afterwards.
	f.usdc.fail = false
	if _, err := f.engine.BuyWithStable(id, buyer, addr(0xAA), scaled(100, 6)); err != nil {
		t.Fatalf("retry after rollback: %v", err)
	}
}

func TestBuyWithNativeSettles(t *testing.T) {
	f := newFixture(t)
	id := f.addProject(t, f.nativeProject())
	f.openWindow()
	buyer := addr(0x10)

	// 50 tokens at 0.2 USD with the 95% multiplier against a 0.1 USD native
	// price cost exactly 95 native units.
	granted, err := f.engine.BuyWithNative(id, buyer, scaled(50, 18), scaled(120, 18))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if granted.Cmp(scaled(50, 18)) != 0 {
		t.Fatalf("unexpected granted amount: %s", granted)
	}
	if len(f.native.calls) != 1 {
		t.Fatalf("expected one native transfer, got %d", len(f.native.calls))
	}
	// Exactly the cost moves; the attached excess stays with the buyer.
	if f.native.calls[0].amount.Cmp(scaled(95, 18)) != 0 {
		t.Fatalf("unexpected native charge: %s", f.native.calls[0].amount)
	}
	totals, err := f.engine.RaisedAmount(id)
	if err != nil {
		t.Fatalf("raised: %v", err)
	}
	if totals.RaisedNative.Cmp(scaled(95, 18)) != 0 {
		t.Fatalf("unexpected raised native: %s", totals.RaisedNative)
	}
}

func TestBuyWithNativeInsufficientValue(t *testing.T) {
	f := newFixture(t)
	id := f.addProject(t, f.nativeProject())
	f.openWindow()

	_, err := f.engine.BuyWithNative(id, addr(0x10), scaled(50, 18), scaled(94, 18))
	if !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("expected insufficient payment error, got %v", err)
	}
	allocated, err := f.engine.AllocatedAmount(id)
	if err != nil {
		t.Fatalf("allocated: %v", err)
	}
	if allocated.Sign() != 0 {
		t.Fatalf("rejected purchase must leave no allocation, got %s", allocated)
	}
	if len(f.native.calls) != 0 {
		t.Fatalf("rejected purchase must move no funds")
	}
}

func TestBuyWithNativePartialFillRepricesGrant(t *testing.T) {
	f := newFixture(t)
	p := f.nativeProject()
	p.MaxAllocateAmount = scaled(30, 18)
	id := f.addProject(t, p)
	f.openWindow()

	// Requesting 50 against a 30-token cap grants 30; the attached value only
	// needs to cover the granted cost (30 * 0.19 / 0.1 = 57 native units).
	granted, err := f.engine.BuyWithNative(id, addr(0x10), scaled(50, 18), scaled(57, 18))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if granted.Cmp(scaled(30, 18)) != 0 {
		t.Fatalf("expected clamped grant, got %s", granted)
	}
	if f.native.calls[0].amount.Cmp(scaled(57, 18)) != 0 {
		t.Fatalf("unexpected native charge: %s", f.native.calls[0].amount)
	}
}

func TestBuyWithNativeInvalidOracle(t *testing.T) {
	f := newFixture(t)
	id := f.addProject(t, f.nativeProject())
	f.openWindow()
	f.feed.value = big.NewInt(0)

	if _, err := f.engine.BuyWithNative(id, addr(0x10), scaled(50, 18), scaled(120, 18)); !errors.Is(err, ErrInvalidPriceFeed) {
		t.Fatalf("expected invalid price feed error, got %v", err)
	}
	allocated, err := f.engine.AllocatedAmount(id)
	if err != nil {
		t.Fatalf("allocated: %v", err)
	}
	if allocated.Sign() != 0 {
		t.Fatalf("rejected purchase must leave no allocation, got %s", allocated)
	}
}

func TestBuyWithNativeTransferFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	id := f.addProject(t, f.nativeProject())
	f.openWindow()
	f.native.fail = true

	if _, err := f.engine.BuyWithNative(id, addr(0x10), scaled(50, 18), scaled(120, 18)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failed error, got %v", err)
	}
	totals, err := f.engine.RaisedAmount(id)
	if err != nil {
		t.Fatalf("raised: %v", err)
	}
	if totals.Allocated.Sign() != 0 || totals.RaisedNative.Sign() != 0 {
		t.Fatalf("failed purchase must leave totals untouched: %+v", totals)
	}
}

func TestStableTokensReportConfiguredAddresses(t *testing.T) {
	f := newFixture(t)
	usdc, usdt := f.engine.StableTokens()
	if usdc != addr(0xAA) || usdt != addr(0xBB) {
		t.Fatalf("unexpected stable token addresses: %x %x", usdc, usdt)
	}

	unwired := NewEngine()
	usdc, usdt = unwired.StableTokens()
	if !isZeroAddress(usdc) || !isZeroAddress(usdt) {
		t.Fatalf("unwired engine must report zero addresses")
	}
}

func TestEngineDefaultClock(t *testing.T) {
	engine := NewEngine()
	engine.SetNowFunc(nil)
	now := engine.now()
	if now == 0 {
		t.Fatalf("expected wall clock fallback")
	}
	if delta := time.Now().Unix() - now; delta < 0 || delta > 5 {
		t.Fatalf("clock drifted: %d", delta)
	}
}
