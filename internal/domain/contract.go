package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContractType is one of the four Islamic financing contracts.
// The numeric value is the code fed to the scorer.
type ContractType int

const (
	ContractMurabaha  ContractType = 1
	ContractMusharaka ContractType = 2
	ContractMudaraba  ContractType = 3
	ContractIjara     ContractType = 4
)

var contractLabels = map[ContractType]string{
	ContractMurabaha:  "مرابحة",
	ContractMusharaka: "مشاركة",
	ContractMudaraba:  "مضاربة",
	ContractIjara:     "إيجارة",
}

var contractSlugs = map[ContractType]string{
	ContractMurabaha:  "murabaha",
	ContractMusharaka: "musharaka",
	ContractMudaraba:  "mudaraba",
	ContractIjara:     "ijara",
}

// ContractTypes returns the four contract types ordered by code.
func ContractTypes() []ContractType {
	return []ContractType{ContractMurabaha, ContractMusharaka, ContractMudaraba, ContractIjara}
}

// ParseContractType maps an Arabic label (or its transliteration) to its code.
func ParseContractType(label string) (ContractType, error) {
	label = strings.TrimSpace(label)
	for ct, l := range contractLabels {
		if l == label {
			return ct, nil
		}
	}
	lower := strings.ToLower(label)
	for ct, s := range contractSlugs {
		if s == lower {
			return ct, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidContractLabel, label)
}

// Valid reports whether c is one of the four known codes.
func (c ContractType) Valid() bool {
	_, ok := contractLabels[c]
	return ok
}

// Code returns the integer code (1-4).
func (c ContractType) Code() int {
	return int(c)
}

// Label returns the Arabic label, or "" for an unknown code.
func (c ContractType) Label() string {
	return contractLabels[c]
}

// Slug returns the lowercase transliteration.
func (c ContractType) Slug() string {
	return contractSlugs[c]
}

func (c ContractType) String() string {
	if s, ok := contractSlugs[c]; ok {
		return s
	}
	return fmt.Sprintf("contract(%d)", int(c))
}

// UnmarshalJSON accepts either the numeric code or a label string.
func (c *ContractType) UnmarshalJSON(data []byte) error {
	var code int
	if err := json.Unmarshal(data, &code); err == nil {
		*c = ContractType(code)
		return nil
	}

	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidContractLabel, string(data))
	}
	ct, err := ParseContractType(label)
	if err != nil {
		return err
	}
	*c = ct
	return nil
}
