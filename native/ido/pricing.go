package ido

import "math/big"

var (
	e4 = big.NewInt(10_000)
	e6 = new(big.Int).Exp(big.NewInt(10), big.NewInt(6), nil)
	e8 = new(big.Int).Exp(big.NewInt(10), big.NewInt(8), nil)
)

// ceilDiv divides a by b rounding any remainder up by one unit. Charges are
// always rounded against the buyer so a purchase can never underpay.
func ceilDiv(a, b *big.Int) *big.Int {
	quo, rem := new(big.Int).QuoRem(a, b, new(big.Int))
	if rem.Sign() != 0 {
		quo = quo.Add(quo, big.NewInt(1))
	}
	return quo
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// StablePayment returns the stablecoin charge for tokenAmount base units of
// the project token. The project price is a 6-decimal USD fixed point, which
// is also the base-unit scale of both stablecoins, so the result is directly
// denominated in stablecoin units.
func StablePayment(p *Project, tokenAmount *big.Int) *big.Int {
	cost := new(big.Int).Mul(p.USDPricePerTokenE6, tokenAmount)
	return ceilDiv(cost, pow10(p.TokenDecimals))
}

// NativePayment returns the native-currency charge for tokenAmount base units
// of the project token, given the oracle price of the native currency in USD
// scaled by 1e8. The project's discount multiplier (basis 10000) is applied
// to the USD price first. All multiplications happen before the single
// ceiling division so no intermediate truncation can leak value.
func NativePayment(p *Project, tokenAmount, nativePriceE8 *big.Int) *big.Int {
	num := new(big.Int).Mul(p.USDPricePerTokenE6, big.NewInt(int64(p.DiscountMultiplierE4)))
	num = num.Mul(num, tokenAmount)
	num = num.Mul(num, pow10(nativeDecimals))
	num = num.Mul(num, e8)

	den := new(big.Int).Mul(e4, pow10(p.TokenDecimals))
	den = den.Mul(den, e6)
	den = den.Mul(den, nativePriceE8)
	return ceilDiv(num, den)
}
