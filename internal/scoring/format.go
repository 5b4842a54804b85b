package scoring

import (
	"fmt"
	"math"
	"math/big"

	"github.com/opensource-finance/tamweel/internal/domain"
	"github.com/shopspring/decimal"
)

// DisplayPlaces is the number of decimals shown for a score.
const DisplayPlaces = 3

// FormatScore renders a score with three decimals, rounding the exact
// binary value half to even (the same digits as "%.3f").
func FormatScore(score float64) string {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return fmt.Sprintf("%.3f", score)
	}
	return exactDecimal(score).StringFixedBank(DisplayPlaces)
}

// RoundScore rounds a score to three decimals for display.
func RoundScore(score float64) float64 {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return score
	}
	f, _ := exactDecimal(score).RoundBank(DisplayPlaces).Float64()
	return f
}

// exactDecimal converts a finite float64 without passing through its
// shortest decimal form: f = m * 2^e = m * 5^-e * 10^e for e < 0.
func exactDecimal(f float64) decimal.Decimal {
	frac, exp := math.Frexp(f)
	m := big.NewInt(int64(frac * (1 << 53)))
	e := exp - 53

	if e >= 0 {
		return decimal.NewFromBigInt(m.Lsh(m, uint(e)), 0)
	}
	five := new(big.Int).Exp(big.NewInt(5), big.NewInt(int64(-e)), nil)
	return decimal.NewFromBigInt(m.Mul(m, five), int32(e))
}

// Summary renders the two-line Arabic result shown to the user.
func Summary(score float64, class domain.Classification) string {
	return fmt.Sprintf("درجة المخاطر: %s\nالتصنيف: %s %s", FormatScore(score), class.Marker(), class.Label())
}
