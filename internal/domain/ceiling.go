package domain

import "fmt"

// MaxValueTable maps each attribute to its normalization ceiling.
type MaxValueTable struct {
	ceilings map[Attribute]float64
}

// NewMaxValueTable builds a table, rejecting missing or zero ceilings
// for any of the nine attributes.
func NewMaxValueTable(ceilings map[Attribute]float64) (MaxValueTable, error) {
	c := make(map[Attribute]float64, len(ceilings))
	for k, v := range ceilings {
		c[k] = v
	}
	for _, attr := range Attributes() {
		v, ok := c[attr]
		if !ok {
			return MaxValueTable{}, fmt.Errorf("%w: %s", ErrMissingAttribute, attr)
		}
		if v == 0 {
			return MaxValueTable{}, fmt.Errorf("%w: %s", ErrZeroCeiling, attr)
		}
	}
	return MaxValueTable{ceilings: c}, nil
}

// DefaultMaxValues returns the built-in ceiling table.
func DefaultMaxValues() MaxValueTable {
	t, err := NewMaxValueTable(map[Attribute]float64{
		AttrContractType:  4,
		AttrLoanAmount:    100000,
		AttrDuration:      60,
		AttrProfitability: 50000,
		AttrCashflow:      50000,
		AttrEquityShare:   50000,
		AttrSectorRisk:    10,
		AttrStartupAge:    60,
		AttrDebtRatio:     50000,
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Ceiling returns the ceiling for attr.
func (t MaxValueTable) Ceiling(attr Attribute) (float64, error) {
	v, ok := t.ceilings[attr]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingAttribute, attr)
	}
	if v == 0 {
		return 0, fmt.Errorf("%w: %s", ErrZeroCeiling, attr)
	}
	return v, nil
}

// Ceilings returns a copy of the table.
func (t MaxValueTable) Ceilings() map[Attribute]float64 {
	out := make(map[Attribute]float64, len(t.ceilings))
	for k, v := range t.ceilings {
		out[k] = v
	}
	return out
}
