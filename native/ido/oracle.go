package ido

import (
	"math/big"
	"time"
)

// NativePriceKey is the fixed lookup key for the native asset's USD quote.
const NativePriceKey = "ASTR/USD"

// PriceFeed exposes the external oracle read: the most recently published
// value for a key, scaled by 1e8, together with its publication timestamp.
type PriceFeed interface {
	Value(key string) (*big.Int, int64, error)
}

// PriceSource wraps a PriceFeed with the fixed native-asset key and validates
// returned quotes. A value of zero is treated as "no valid price available"
// rather than a legitimate zero price.
type PriceSource struct {
	feed   PriceFeed
	maxAge time.Duration
	nowFn  func() int64
}

// NewPriceSource constructs a price source over the supplied feed.
func NewPriceSource(feed PriceFeed) *PriceSource {
	return &PriceSource{
		feed:  feed,
		nowFn: func() int64 { return time.Now().Unix() },
	}
}

// SetMaxAge configures an optional staleness bound. Quotes older than maxAge
// are rejected the same way a missing price is. Zero disables the check.
func (s *PriceSource) SetMaxAge(maxAge time.Duration) {
	if s == nil {
		return
	}
	if maxAge < 0 {
		maxAge = 0
	}
	s.maxAge = maxAge
}

// SetNowFunc overrides the time source used for staleness checks.
func (s *PriceSource) SetNowFunc(now func() int64) {
	if s == nil || now == nil {
		return
	}
	s.nowFn = now
}

// NativePriceE8 returns the latest USD price of the native currency scaled by
// 1e8. It never averages or interpolates; the most recently published value
// wins. Fails with ErrInvalidPriceFeed when the feed is unset, errors, is
// stale, or reports zero.
func (s *PriceSource) NativePriceE8() (*big.Int, error) {
	if s == nil || s.feed == nil {
		return nil, ErrInvalidPriceFeed
	}
	value, publishedAt, err := s.feed.Value(NativePriceKey)
	if err != nil {
		return nil, ErrInvalidPriceFeed
	}
	if value == nil || value.Sign() == 0 {
		return nil, ErrInvalidPriceFeed
	}
	if s.maxAge > 0 {
		age := s.nowFn() - publishedAt
		if age > int64(s.maxAge/time.Second) {
			return nil, ErrInvalidPriceFeed
		}
	}
	return new(big.Int).Set(value), nil
}
