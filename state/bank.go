package state

import (
	"encoding/hex"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
)

// ErrInsufficientBalance is returned when a transfer would overdraw the
// sender.
var ErrInsufficientBalance = errors.New("bank: insufficient balance")

func bankNativeKey(addr [20]byte) []byte {
	return []byte("bank/native/" + hex.EncodeToString(addr[:]))
}

func bankTokenKey(token, addr [20]byte) []byte {
	return []byte("bank/token/" + hex.EncodeToString(token[:]) + "/" + hex.EncodeToString(addr[:]))
}

// Bank is a custodial balance ledger over the same journaled state as the
// sale ledger, so a reverted purchase also unwinds any partial movement of
// funds. It stands in for the external payment-token contracts and the
// native-currency transfer path.
type Bank struct {
	state *SaleState
}

// NewBank binds a bank to the supplied sale state.
func NewBank(state *SaleState) *Bank {
	return &Bank{state: state}
}

func (b *Bank) balance(key []byte) (*big.Int, error) {
	raw, ok, err := b.state.getRaw(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(raw, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (b *Bank) setBalance(key []byte, value *big.Int) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return b.state.putRaw(key, raw)
}

func (b *Bank) move(fromKey, toKey []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("bank: transfer amount must not be negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance, err := b.balance(fromKey)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := b.balance(toKey)
	if err != nil {
		return err
	}
	if err := b.setBalance(fromKey, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return b.setBalance(toKey, new(big.Int).Add(toBalance, amount))
}

// Transfer moves native-currency value between accounts. It implements
// ido.NativeTransferor.
func (b *Bank) Transfer(from, to [20]byte, amount *big.Int) error {
	return b.move(bankNativeKey(from), bankNativeKey(to), amount)
}

// NativeBalance reports an account's native balance.
func (b *Bank) NativeBalance(addr [20]byte) (*big.Int, error) {
	return b.balance(bankNativeKey(addr))
}

// MintNative credits native-currency value to an account.
func (b *Bank) MintNative(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("bank: mint amount must be positive")
	}
	balance, err := b.balance(bankNativeKey(addr))
	if err != nil {
		return err
	}
	return b.setBalance(bankNativeKey(addr), new(big.Int).Add(balance, amount))
}

// TokenBalance reports an account's balance in the given token.
func (b *Bank) TokenBalance(token, addr [20]byte) (*big.Int, error) {
	return b.balance(bankTokenKey(token, addr))
}

// MintToken credits token balance to an account.
func (b *Bank) MintToken(token, addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("bank: mint amount must be positive")
	}
	balance, err := b.balance(bankTokenKey(token, addr))
	if err != nil {
		return err
	}
	return b.setBalance(bankTokenKey(token, addr), new(big.Int).Add(balance, amount))
}

// Token returns a transfer handle for one token address, satisfying
// ido.TokenTransferor.
func (b *Bank) Token(token [20]byte) *TokenHandle {
	return &TokenHandle{bank: b, token: token}
}

// TokenHandle scopes bank transfers to a single token.
type TokenHandle struct {
	bank  *Bank
	token [20]byte
}

// TransferFrom moves token balance between accounts.
func (h *TokenHandle) TransferFrom(from, to [20]byte, amount *big.Int) error {
	return h.bank.move(bankTokenKey(h.token, from), bankTokenKey(h.token, to), amount)
}
