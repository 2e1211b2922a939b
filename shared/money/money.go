// Package money converts between provider decimal amounts and int64 minor units.
// All totals in the booking pipeline are kept in minor units so sums never drift.
package money

import (
	"chalet/shared/constant"
	"fmt"
	"math"
	"strings"
)

// ToMinor converts a major-unit amount (e.g. 249.95) to minor units (24995), rounding half away from zero.
func ToMinor(major float64) int64 {
	return int64(math.Round(major * constant.MinorUnitsFactor))
}

// ToMajor converts minor units back to a major-unit amount.
func ToMajor(minor int64) float64 {
	return float64(minor) / constant.MinorUnitsFactor
}

// Percent returns rate percent of amount, rounded half up to the minor unit.
func Percent(amount int64, rate float64) int64 {
	return int64(math.Round(float64(amount) * rate / 100)) //nolint:mnd
}

// Format renders minor units with their currency, e.g. "CHF 249.95".
func Format(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}

	return fmt.Sprintf("%s %s%d.%02d", strings.ToUpper(currency), sign, minor/constant.MinorUnitsFactor, minor%constant.MinorUnitsFactor)
}
