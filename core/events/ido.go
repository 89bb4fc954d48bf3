package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"launchpad/core/types"
)

const (
	// TypeIDOProjectAdded is emitted when the owner registers a new sale project.
	TypeIDOProjectAdded = "ido.project.added"
	// TypeIDOTokenBought is emitted on every settled purchase.
	TypeIDOTokenBought = "ido.token.bought"
	// TypeIDOTokenSoldOut is emitted when a purchase exhausts a project's supply.
	TypeIDOTokenSoldOut = "ido.token.soldout"
)

// IDOProjectAdded announces a newly registered sale project.
type IDOProjectAdded struct {
	ProjectID uint64
	Name      string
	Payout    [20]byte
}

func (IDOProjectAdded) EventType() string { return TypeIDOProjectAdded }

func (e IDOProjectAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeIDOProjectAdded,
		Attributes: map[string]string{
			"projectId": strconv.FormatUint(e.ProjectID, 10),
			"name":      e.Name,
			"payout":    hexAddr(e.Payout),
		},
	}
}

// IDOTokenBought announces a settled purchase. PayToken is the payment token
// contract address, or the zero address for native-currency purchases.
type IDOTokenBought struct {
	ProjectID uint64
	Buyer     [20]byte
	PayToken  [20]byte
	Amount    *big.Int
}

func (IDOTokenBought) EventType() string { return TypeIDOTokenBought }

func (e IDOTokenBought) Event() *types.Event {
	return &types.Event{
		Type: TypeIDOTokenBought,
		Attributes: map[string]string{
			"projectId": strconv.FormatUint(e.ProjectID, 10),
			"buyer":     hexAddr(e.Buyer),
			"payToken":  hexAddr(e.PayToken),
			"amount":    formatAmount(e.Amount),
		},
	}
}

// IDOTokenSoldOut announces that a project's allocatable supply reached zero.
type IDOTokenSoldOut struct {
	ProjectID uint64
}

func (IDOTokenSoldOut) EventType() string { return TypeIDOTokenSoldOut }

func (e IDOTokenSoldOut) Event() *types.Event {
	return &types.Event{
		Type: TypeIDOTokenSoldOut,
		Attributes: map[string]string{
			"projectId": strconv.FormatUint(e.ProjectID, 10),
		},
	}
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
