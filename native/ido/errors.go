package ido

import (
	"errors"
	"fmt"
)

// Failure taxonomy surfaced by the engine. Every failure aborts the calling
// operation and rolls back any state changes it attempted; callers are
// expected to surface these verbatim.
var (
	// ErrUnauthorized is returned when a caller other than the owner invokes
	// an owner-gated operation.
	ErrUnauthorized = errors.New("ido: caller is not the owner")
	// ErrProjectNotFound is returned for project ids outside the registry range.
	ErrProjectNotFound = errors.New("ido: project id out of range")
	// ErrNotStarted is returned for purchases before the project window opens.
	ErrNotStarted = errors.New("ido: project has not started yet")
	// ErrEnded is returned for purchases after the project window closed.
	ErrEnded = errors.New("ido: project ended already")
	// ErrZeroAmount is returned when a purchase requests zero tokens.
	ErrZeroAmount = errors.New("ido: token amount must be greater than 0")
	// ErrSoldOut is returned when a project has no allocatable supply left.
	ErrSoldOut = errors.New("ido: token amount is not available")
	// ErrUnsupportedCurrency is returned when the payment token is neither of
	// the two configured stablecoins.
	ErrUnsupportedCurrency = errors.New("ido: unsupported payment token")
	// ErrInsufficientPayment is returned when the attached native value does
	// not cover the computed cost.
	ErrInsufficientPayment = errors.New("ido: attached value is not enough for payment")
	// ErrInvalidPriceFeed is returned when the oracle has no usable price. A
	// reported price of exactly zero means "no price", never a legitimate
	// quote.
	ErrInvalidPriceFeed = errors.New("ido: oracle price must be greater than 0")
	// ErrTransferFailed is returned when an outbound or inbound fund transfer
	// is rejected by the counterparty.
	ErrTransferFailed = errors.New("ido: transfer failed")

	// ErrInvalidProjectParams is the base error for every project validation
	// failure; the wrapped variants below carry the specific reason.
	ErrInvalidProjectParams = errors.New("ido: invalid project parameters")

	errPayoutAddressZero  = fmt.Errorf("%w: funds address must not be zero", ErrInvalidProjectParams)
	errStartTimePassed    = fmt.Errorf("%w: start time should be after the current time", ErrInvalidProjectParams)
	errEndBeforeStart     = fmt.Errorf("%w: end time should come after the start time", ErrInvalidProjectParams)
	errMaxAllocateZero    = fmt.Errorf("%w: maximum allocatable amount should be greater than 0", ErrInvalidProjectParams)
	errUSDPriceZero       = fmt.Errorf("%w: usd price per token should be greater than 0", ErrInvalidProjectParams)
	errDiscountOutOfRange = fmt.Errorf("%w: discount multiplier should be between 0 and 9999", ErrInvalidProjectParams)
)

var errNilState = errors.New("ido: engine state not configured")
