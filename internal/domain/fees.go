package domain

import (
	"math/big"
	"time"
)

// FeeConfig carries the platform fee parameters. Amounts are in base units
// (1 XLM = 10_000_000); all arithmetic truncates toward zero.
type FeeConfig struct {
	PlatformFeePercent  int64 `json:"platform_fee_percent"`
	MinFeeAmount        int64 `json:"min_fee_amount"`
	MaxFeeAmount        int64 `json:"max_fee_amount"`
	CollectionThreshold int64 `json:"collection_threshold"`
	CreationFee         int64 `json:"creation_fee"`
}

// DefaultFeeConfig returns the platform defaults: 2% fee clamped to
// [0.1 XLM, 100 XLM], 10 XLM collection threshold, 1 XLM creation fee.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		PlatformFeePercent:  2,
		MinFeeAmount:        1_000_000,
		MaxFeeAmount:        1_000_000_000,
		CollectionThreshold: 100_000_000,
		CreationFee:         10_000_000,
	}
}

// Validate rejects nonsensical fee parameters.
func (c FeeConfig) Validate() error {
	if c.PlatformFeePercent < 0 || c.PlatformFeePercent > 100 {
		return ErrInvalidConfig
	}
	if c.MinFeeAmount < 0 || c.MaxFeeAmount < c.MinFeeAmount {
		return ErrInvalidConfig
	}
	if c.CollectionThreshold < 0 || c.CreationFee < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// PlatformFee computes the fee owed on a market's total pool.
func (c FeeConfig) PlatformFee(totalStaked int64) int64 {
	return totalStaked * c.PlatformFeePercent / 100
}

// CollectionFee is the amount actually swept at collection time: the
// platform fee clamped to the configured bounds. Pools below
// CollectionThreshold must be rejected before this is charged, otherwise
// the minimum clamp would take more than the fee withheld from payouts.
func (c FeeConfig) CollectionFee(totalStaked int64) int64 {
	fee := c.PlatformFee(totalStaked)
	if fee < c.MinFeeAmount {
		fee = c.MinFeeAmount
	}
	if fee > c.MaxFeeAmount {
		fee = c.MaxFeeAmount
	}
	return fee
}

// GrossPayout computes floor(stake * totalPool / winningTotal). The
// intermediate product can exceed int64 on large pools, so the math runs
// in big integers.
func GrossPayout(stake, winningTotal, totalPool int64) int64 {
	if winningTotal == 0 {
		return 0
	}
	num := new(big.Int).Mul(big.NewInt(stake), big.NewInt(totalPool))
	num.Quo(num, big.NewInt(winningTotal))
	return num.Int64()
}

// PayoutAfterFees applies the fee percentage to a gross payout.
func (c FeeConfig) PayoutAfterFees(gross int64) int64 {
	return gross * (100 - c.PlatformFeePercent) / 100
}

// DynamicFee is the discounted fee projection shown on the analytics
// surface: large pools earn a percentage discount, clamped to the
// configured bounds. Collection itself charges CollectionFee.
//
//	pool ≥ 100 XLM → 80% of base fee
//	pool ≥  10 XLM → 90% of base fee
//	otherwise full base fee
func (c FeeConfig) DynamicFee(totalStaked int64) int64 {
	fee := c.PlatformFee(totalStaked)
	switch {
	case totalStaked >= 1_000_000_000:
		fee = fee * 80 / 100
	case totalStaked >= 100_000_000:
		fee = fee * 90 / 100
	}
	if fee < c.MinFeeAmount {
		fee = c.MinFeeAmount
	}
	if fee > c.MaxFeeAmount {
		fee = c.MaxFeeAmount
	}
	return fee
}

// FeeBreakdown is the queryable fee analysis for one market.
type FeeBreakdown struct {
	MarketID      string `json:"market_id"`
	TotalStaked   int64  `json:"total_staked"`
	FeePercent    int64  `json:"fee_percent"`
	PlatformFee   int64  `json:"platform_fee"`
	DiscountedFee int64  `json:"discounted_fee"`
	UserPayouts   int64  `json:"user_payouts"`
	Collected     bool   `json:"collected"`
	Collectible   bool   `json:"collectible"`
}

// Breakdown computes the fee analysis for a market's current pool.
func (c FeeConfig) Breakdown(m *Market) FeeBreakdown {
	fee := c.PlatformFee(m.TotalStaked)
	return FeeBreakdown{
		MarketID:      m.ID,
		TotalStaked:   m.TotalStaked,
		FeePercent:    c.PlatformFeePercent,
		PlatformFee:   fee,
		DiscountedFee: c.DynamicFee(m.TotalStaked),
		UserPayouts:   m.TotalStaked - fee,
		Collected:     m.FeeCollected,
		Collectible:   m.TotalStaked >= c.CollectionThreshold,
	}
}

// FeeCollection is one append-only fee audit entry.
type FeeCollection struct {
	ID          string    `json:"id"`
	MarketID    string    `json:"market_id"`
	Amount      int64     `json:"amount"`
	CollectedBy string    `json:"collected_by"`
	CollectedAt time.Time `json:"collected_at"`
}

// ExtensionFeeConfig carries the market-extension fee parameters.
type ExtensionFeeConfig struct {
	BaseFee   int64 `json:"base_fee"`
	FeePerDay int64 `json:"fee_per_day"`
	MinFee    int64 `json:"min_fee"`
	MaxFee    int64 `json:"max_fee"`
	MaxDays   int   `json:"max_days"`
}

// DefaultExtensionFeeConfig returns the extension defaults: 10 XLM base plus
// 1 XLM per day, clamped to [10 XLM, 100 XLM], 30-day per-call cap.
func DefaultExtensionFeeConfig() ExtensionFeeConfig {
	return ExtensionFeeConfig{
		BaseFee:   100_000_000,
		FeePerDay: 10_000_000,
		MinFee:    100_000_000,
		MaxFee:    1_000_000_000,
		MaxDays:   30,
	}
}

// Fee computes the clamped extension fee for the requested days.
func (c ExtensionFeeConfig) Fee(days int) int64 {
	fee := c.BaseFee + int64(days)*c.FeePerDay
	if fee < c.MinFee {
		fee = c.MinFee
	}
	if fee > c.MaxFee {
		fee = c.MaxFee
	}
	return fee
}
