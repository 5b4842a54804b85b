package domain

import (
	"fmt"
	"sort"
	"strings"
)

// WeightProfile is one risk-modeling hypothesis: a fixed weight per attribute.
// Profiles are immutable once built; accessors hand out copies.
type WeightProfile struct {
	id      string
	name    string
	weights map[Attribute]float64
}

// NewWeightProfile builds a profile from a weight map. The map is copied.
func NewWeightProfile(id, name string, weights map[Attribute]float64) WeightProfile {
	w := make(map[Attribute]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return WeightProfile{id: id, name: name, weights: w}
}

// ID returns the stable identifier, e.g. "hypothesis-1".
func (p WeightProfile) ID() string { return p.id }

// Name returns the display name, e.g. "الفرضية 1".
func (p WeightProfile) Name() string { return p.name }

// Weight returns the weight for attr. Attributes absent from the profile weigh 0.
func (p WeightProfile) Weight(attr Attribute) float64 {
	return p.weights[attr]
}

// Weights returns a copy of the weight map.
func (p WeightProfile) Weights() map[Attribute]float64 {
	out := make(map[Attribute]float64, len(p.weights))
	for k, v := range p.weights {
		out[k] = v
	}
	return out
}

// Sum returns the total of all weights. Not required to be exactly 1.
func (p WeightProfile) Sum() float64 {
	var total float64
	for _, attr := range Attributes() {
		total += p.weights[attr]
	}
	return total
}

// Profile identifiers.
const (
	ProfileHypothesis1 = "hypothesis-1"
	ProfileHypothesis2 = "hypothesis-2"
	ProfileHypothesis3 = "hypothesis-3"
)

// DefaultProfiles returns the three built-in hypotheses in display order.
func DefaultProfiles() []WeightProfile {
	return []WeightProfile{
		NewWeightProfile(ProfileHypothesis1, "الفرضية 1", map[Attribute]float64{
			AttrContractType:  0.20,
			AttrLoanAmount:    0.15,
			AttrDuration:      0.10,
			AttrProfitability: 0.18,
			AttrCashflow:      0.18,
			AttrEquityShare:   0.05,
			AttrSectorRisk:    0.05,
			AttrStartupAge:    0.03,
			AttrDebtRatio:     0.06,
		}),
		NewWeightProfile(ProfileHypothesis2, "الفرضية 2", map[Attribute]float64{
			AttrContractType:  0.10,
			AttrLoanAmount:    0.15,
			AttrDuration:      0.08,
			AttrProfitability: 0.25,
			AttrCashflow:      0.20,
			AttrEquityShare:   0.05,
			AttrSectorRisk:    0.05,
			AttrStartupAge:    0.05,
			AttrDebtRatio:     0.07,
		}),
		NewWeightProfile(ProfileHypothesis3, "الفرضية 3", map[Attribute]float64{
			AttrContractType:  0.08,
			AttrLoanAmount:    0.10,
			AttrDuration:      0.06,
			AttrProfitability: 0.20,
			AttrCashflow:      0.25,
			AttrEquityShare:   0.05,
			AttrSectorRisk:    0.05,
			AttrStartupAge:    0.05,
			AttrDebtRatio:     0.15,
		}),
	}
}

// ProfileCatalog is a read-only lookup over a fixed set of profiles.
type ProfileCatalog struct {
	ordered []WeightProfile
	byKey   map[string]WeightProfile
}

// NewProfileCatalog indexes profiles by ID and by display name.
func NewProfileCatalog(profiles []WeightProfile) *ProfileCatalog {
	c := &ProfileCatalog{
		ordered: append([]WeightProfile(nil), profiles...),
		byKey:   make(map[string]WeightProfile, len(profiles)*2),
	}
	for _, p := range profiles {
		c.byKey[p.id] = p
		c.byKey[p.name] = p
	}
	return c
}

// Lookup finds a profile by ID or display name.
func (c *ProfileCatalog) Lookup(name string) (WeightProfile, error) {
	if p, ok := c.byKey[strings.TrimSpace(name)]; ok {
		return p, nil
	}
	return WeightProfile{}, fmt.Errorf("%w: %q", ErrInvalidProfileName, name)
}

// List returns the profiles in their original order.
func (c *ProfileCatalog) List() []WeightProfile {
	return append([]WeightProfile(nil), c.ordered...)
}

// IDs returns the sorted profile identifiers.
func (c *ProfileCatalog) IDs() []string {
	ids := make([]string, 0, len(c.ordered))
	for _, p := range c.ordered {
		ids = append(ids, p.id)
	}
	sort.Strings(ids)
	return ids
}
