package ido

import "math/big"

// Currency identifies one of the three supported payment currencies.
type Currency uint8

const (
	// CurrencyUSDC is the first configured stablecoin.
	CurrencyUSDC Currency = iota
	// CurrencyUSDT is the second configured stablecoin.
	CurrencyUSDT
	// CurrencyNative is the chain's base currency (ASTR), priced via oracle.
	CurrencyNative
)

// nativeDecimals is the base-unit scale of the native currency.
const nativeDecimals = 18

// Project describes one configured token sale. Projects are append-only:
// once registered their index in the registry is their permanent identifier
// and no field is ever mutated.
type Project struct {
	Name                 string
	StartTime            int64
	EndTime              int64
	TokenDecimals        uint8
	MaxAllocateAmount    *big.Int
	USDPricePerTokenE6   *big.Int
	DiscountMultiplierE4 uint32
	PayoutAddress        [20]byte
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	clone := *p
	if p.MaxAllocateAmount != nil {
		clone.MaxAllocateAmount = new(big.Int).Set(p.MaxAllocateAmount)
	}
	if p.USDPricePerTokenE6 != nil {
		clone.USDPricePerTokenE6 = new(big.Int).Set(p.USDPricePerTokenE6)
	}
	return &clone
}

// AllocationRecord tracks one buyer's cumulative position in one project.
type AllocationRecord struct {
	Buyer       [20]byte
	TokenAmount *big.Int
	PaidUSDC    *big.Int
	PaidUSDT    *big.Int
	PaidNative  *big.Int
}

// Clone returns a deep copy of the allocation record.
func (r *AllocationRecord) Clone() *AllocationRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.TokenAmount = cloneBigInt(r.TokenAmount)
	clone.PaidUSDC = cloneBigInt(r.PaidUSDC)
	clone.PaidUSDT = cloneBigInt(r.PaidUSDT)
	clone.PaidNative = cloneBigInt(r.PaidNative)
	return &clone
}

func newAllocationRecord(buyer [20]byte) *AllocationRecord {
	return &AllocationRecord{
		Buyer:       buyer,
		TokenAmount: big.NewInt(0),
		PaidUSDC:    big.NewInt(0),
		PaidUSDT:    big.NewInt(0),
		PaidNative:  big.NewInt(0),
	}
}

// ProjectTotals aggregates a project's allocation and per-currency raised
// amounts. It mirrors the sum over all allocation records and exists for
// cheap external reporting.
type ProjectTotals struct {
	Allocated    *big.Int
	RaisedUSDC   *big.Int
	RaisedUSDT   *big.Int
	RaisedNative *big.Int
}

// Clone returns a deep copy of the totals.
func (t *ProjectTotals) Clone() *ProjectTotals {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Allocated = cloneBigInt(t.Allocated)
	clone.RaisedUSDC = cloneBigInt(t.RaisedUSDC)
	clone.RaisedUSDT = cloneBigInt(t.RaisedUSDT)
	clone.RaisedNative = cloneBigInt(t.RaisedNative)
	return &clone
}

func newProjectTotals() *ProjectTotals {
	return &ProjectTotals{
		Allocated:    big.NewInt(0),
		RaisedUSDC:   big.NewInt(0),
		RaisedUSDT:   big.NewInt(0),
		RaisedNative: big.NewInt(0),
	}
}

// CommittedAmount reports the cumulative payment a user made in one currency,
// keyed by the payment token address. The zero address denotes the native
// currency.
type CommittedAmount struct {
	PayToken [20]byte
	Amount   *big.Int
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}
