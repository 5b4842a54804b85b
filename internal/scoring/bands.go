package scoring

import (
	"math"

	"github.com/opensource-finance/tamweel/internal/domain"
)

// Band is one row of the classification table: scores strictly below
// UpperBound (and not captured by an earlier row) get Label.
type Band struct {
	UpperBound float64               `json:"upperBound"`
	Label      domain.Classification `json:"classification"`
}

// Band thresholds.
const (
	MediumThreshold = 0.30
	HighThreshold   = 0.60
)

var bands = []Band{
	{UpperBound: MediumThreshold, Label: domain.RiskLow},
	{UpperBound: HighThreshold, Label: domain.RiskMedium},
	{UpperBound: math.Inf(1), Label: domain.RiskHigh},
}

// Bands returns a copy of the ordered classification table.
func Bands() []Band {
	return append([]Band(nil), bands...)
}

// Classify maps a score to its band. Intervals are half-open, so a
// boundary value belongs to the higher band. NaN falls through to high.
func Classify(score float64) domain.Classification {
	for _, b := range bands {
		if score < b.UpperBound {
			return b.Label
		}
	}
	return domain.RiskHigh
}
