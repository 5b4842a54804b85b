package domain

// Classification is the risk band derived from a score.
type Classification string

const (
	RiskLow    Classification = "low"
	RiskMedium Classification = "medium"
	RiskHigh   Classification = "high"
)

// Rank orders bands from least (0) to most (2) risky; -1 if unknown.
func (c Classification) Rank() int {
	switch c {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return -1
	}
}

// Label returns the Arabic band name.
func (c Classification) Label() string {
	switch c {
	case RiskLow:
		return "منخفض"
	case RiskMedium:
		return "متوسط"
	case RiskHigh:
		return "مرتفع"
	default:
		return ""
	}
}

// Marker returns the colored glyph shown before the label.
func (c Classification) Marker() string {
	switch c {
	case RiskLow:
		return "🔵"
	case RiskMedium:
		return "🟡"
	case RiskHigh:
		return "🔴"
	default:
		return ""
	}
}

// Color returns the display color for the band.
func (c Classification) Color() string {
	switch c {
	case RiskLow:
		return "#00BFFF"
	case RiskMedium:
		return "#FFA500"
	case RiskHigh:
		return "#FF0000"
	default:
		return ""
	}
}

// Contribution is one attribute's term in the weighted sum.
type Contribution struct {
	Attribute    Attribute `json:"attribute"`
	Raw          float64   `json:"raw"`
	Ceiling      float64   `json:"ceiling"`
	Normalized   float64   `json:"normalized"`
	Weight       float64   `json:"weight"`
	Contribution float64   `json:"contribution"` // normalized * weight
}

// RiskResult is the outcome of scoring one request.
type RiskResult struct {
	ProfileID      string         `json:"profileId"`
	ProfileName    string         `json:"profileName"`
	Score          float64        `json:"score"`        // unrounded
	ScoreDisplay   string         `json:"scoreDisplay"` // 3 decimals
	Classification Classification `json:"classification"`
	Label          string         `json:"label"`
	Color          string         `json:"color"`
	Summary        string         `json:"summary"`
	Contributions  []Contribution `json:"contributions"`
}
