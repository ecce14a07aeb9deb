package provider

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ToMinor converts a major-unit amount into integral minor units with exp
// decimal places (2 for kobo/cents). Amounts finer than the minor unit are
// rejected rather than rounded, as are values outside the int64 range.
func ToMinor(amount decimal.Decimal, exp int32) (int64, error) {
	shifted := amount.Shift(exp)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", amount.String(), exp)
	}
	if shifted.GreaterThan(maxMinor) || shifted.LessThan(minMinor) {
		return 0, fmt.Errorf("amount %s is out of range", amount.String())
	}
	return shifted.IntPart(), nil
}

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// FromMinor is the inverse of ToMinor.
func FromMinor(minor int64, exp int32) decimal.Decimal {
	return decimal.New(minor, -exp)
}
