// Package scoring implements the financing risk scorer: min-max
// normalization, a weighted sum per weight profile, and band classification.
package scoring

import (
	"fmt"

	"github.com/opensource-finance/tamweel/internal/domain"
)

// Scorer computes risk scores. It holds only immutable tables and is
// safe for concurrent use.
type Scorer struct {
	profiles *domain.ProfileCatalog
	ceilings domain.MaxValueTable
}

// NewScorer creates a scorer over the given profiles and ceiling table.
func NewScorer(profiles []domain.WeightProfile, ceilings domain.MaxValueTable) *Scorer {
	return &Scorer{
		profiles: domain.NewProfileCatalog(profiles),
		ceilings: ceilings,
	}
}

// NewDefaultScorer creates a scorer with the three built-in hypotheses.
func NewDefaultScorer() *Scorer {
	return NewScorer(domain.DefaultProfiles(), domain.DefaultMaxValues())
}

// Profiles returns the profile catalog.
func (s *Scorer) Profiles() *domain.ProfileCatalog {
	return s.profiles
}

// Ceilings returns the normalization table.
func (s *Scorer) Ceilings() domain.MaxValueTable {
	return s.ceilings
}

// Normalize divides raw by the attribute's ceiling. Values above the
// ceiling yield results greater than 1; nothing is clamped.
func (s *Scorer) Normalize(attr domain.Attribute, raw float64) (float64, error) {
	ceiling, err := s.ceilings.Ceiling(attr)
	if err != nil {
		return 0, err
	}
	return raw / ceiling, nil
}

// Contributions returns the weighted term of every attribute in canonical order.
func (s *Scorer) Contributions(profile domain.WeightProfile, attrs domain.AttributeSet) ([]domain.Contribution, error) {
	out := make([]domain.Contribution, 0, 9)
	for _, attr := range domain.Attributes() {
		raw, ok := attrs.Value(attr)
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingAttribute, attr)
		}
		ceiling, err := s.ceilings.Ceiling(attr)
		if err != nil {
			return nil, err
		}
		normalized := raw / ceiling
		weight := profile.Weight(attr)
		out = append(out, domain.Contribution{
			Attribute:    attr,
			Raw:          raw,
			Ceiling:      ceiling,
			Normalized:   normalized,
			Weight:       weight,
			Contribution: normalized * weight,
		})
	}
	return out, nil
}

// ComputeScore returns the unrounded weighted sum of normalized attributes.
func (s *Scorer) ComputeScore(profile domain.WeightProfile, attrs domain.AttributeSet) (float64, error) {
	terms, err := s.Contributions(profile, attrs)
	if err != nil {
		return 0, err
	}
	return sum(terms), nil
}

// Evaluate looks up the profile, scores the attributes and classifies the result.
func (s *Scorer) Evaluate(profileName string, attrs domain.AttributeSet) (*domain.RiskResult, error) {
	profile, err := s.profiles.Lookup(profileName)
	if err != nil {
		return nil, err
	}

	terms, err := s.Contributions(profile, attrs)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", profile.ID(), err)
	}

	score := sum(terms)
	class := Classify(score)

	return &domain.RiskResult{
		ProfileID:      profile.ID(),
		ProfileName:    profile.Name(),
		Score:          score,
		ScoreDisplay:   FormatScore(score),
		Classification: class,
		Label:          class.Label(),
		Color:          class.Color(),
		Summary:        Summary(score, class),
		Contributions:  terms,
	}, nil
}

// ConvertContractType maps a contract label to its integer code.
func ConvertContractType(label string) (int, error) {
	ct, err := domain.ParseContractType(label)
	if err != nil {
		return 0, err
	}
	return ct.Code(), nil
}

func sum(terms []domain.Contribution) float64 {
	var total float64
	for _, t := range terms {
		total += t.Contribution
	}
	return total
}
