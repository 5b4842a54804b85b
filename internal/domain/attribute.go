package domain

// Attribute names one of the nine inputs of a financing request.
type Attribute string

const (
	AttrContractType  Attribute = "contract_type"
	AttrLoanAmount    Attribute = "loan_amount"
	AttrDuration      Attribute = "duration"
	AttrProfitability Attribute = "profitability"
	AttrCashflow      Attribute = "cashflow"
	AttrEquityShare   Attribute = "equity_share"
	AttrSectorRisk    Attribute = "sector_risk"
	AttrStartupAge    Attribute = "startup_age"
	AttrDebtRatio     Attribute = "debt_ratio"
)

// Attributes returns the nine attributes in canonical order.
// Scores are always summed in this order.
func Attributes() []Attribute {
	return []Attribute{
		AttrContractType,
		AttrLoanAmount,
		AttrDuration,
		AttrProfitability,
		AttrCashflow,
		AttrEquityShare,
		AttrSectorRisk,
		AttrStartupAge,
		AttrDebtRatio,
	}
}

// AttributeSet holds the raw values of one financing request.
type AttributeSet struct {
	ContractType  ContractType `json:"contractType"`
	LoanAmount    float64      `json:"loanAmount"`    // dinars
	Duration      float64      `json:"duration"`      // months
	Profitability float64      `json:"profitability"` // expected profit, dinars
	Cashflow      float64      `json:"cashflow"`      // expected cash flow, dinars
	EquityShare   float64      `json:"equityShare"`   // owner contribution, dinars
	SectorRisk    float64      `json:"sectorRisk"`    // 1-10
	StartupAge    float64      `json:"startupAge"`    // months
	DebtRatio     float64      `json:"debtRatio"`     // current debt, dinars
}

// Value returns the raw value of an attribute.
func (s AttributeSet) Value(attr Attribute) (float64, bool) {
	switch attr {
	case AttrContractType:
		return float64(s.ContractType), true
	case AttrLoanAmount:
		return s.LoanAmount, true
	case AttrDuration:
		return s.Duration, true
	case AttrProfitability:
		return s.Profitability, true
	case AttrCashflow:
		return s.Cashflow, true
	case AttrEquityShare:
		return s.EquityShare, true
	case AttrSectorRisk:
		return s.SectorRisk, true
	case AttrStartupAge:
		return s.StartupAge, true
	case AttrDebtRatio:
		return s.DebtRatio, true
	default:
		return 0, false
	}
}

// Values returns the raw values keyed by attribute name.
func (s AttributeSet) Values() map[Attribute]float64 {
	out := make(map[Attribute]float64, 9)
	for _, attr := range Attributes() {
		v, _ := s.Value(attr)
		out[attr] = v
	}
	return out
}

// Scale returns a copy with every numeric value multiplied by k.
// The contract type is categorical and is left untouched.
func (s AttributeSet) Scale(k float64) AttributeSet {
	s.LoanAmount *= k
	s.Duration *= k
	s.Profitability *= k
	s.Cashflow *= k
	s.EquityShare *= k
	s.SectorRisk *= k
	s.StartupAge *= k
	s.DebtRatio *= k
	return s
}
