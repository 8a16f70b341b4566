package payout

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FeePolicy charges a percentage plus a fixed amount, in minor units.
type FeePolicy struct {
	Percent decimal.Decimal
	Fixed   int64
}

// NewFeePolicy parses a percentage such as "2.5".
func NewFeePolicy(percent string, fixed int64) (FeePolicy, error) {
	percent = strings.TrimSpace(percent)
	if percent == "" {
		percent = "0"
	}
	p, err := decimal.NewFromString(percent)
	if err != nil {
		return FeePolicy{}, fmt.Errorf("payout fee percent %q: %w", percent, err)
	}
	if p.IsNegative() || p.GreaterThan(decimal.NewFromInt(100)) {
		return FeePolicy{}, fmt.Errorf("payout fee percent %s out of range", p)
	}
	if fixed < 0 {
		return FeePolicy{}, fmt.Errorf("payout fixed fee %d is negative", fixed)
	}
	return FeePolicy{Percent: p, Fixed: fixed}, nil
}

// Fee returns the fee for amount, rounded half away from zero and never
// larger than the amount itself.
func (f FeePolicy) Fee(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	fee := decimal.NewFromInt(amount).
		Mul(f.Percent).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart() + f.Fixed
	if fee > amount {
		return amount
	}
	return fee
}
