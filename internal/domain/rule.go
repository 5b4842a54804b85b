package domain

import "time"

// RuleConfig defines an advisory screening rule.
// Rules never change a score or classification; they only add findings.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression over the request; must return bool
	Expression string `json:"expression"`

	Severity string `json:"severity"` // info, warning, critical
	Message  string `json:"message"`

	// Whether rule is active
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Finding is the output of a triggered screening rule.
type Finding struct {
	RuleID    string `json:"ruleId"`
	RuleName  string `json:"ruleName,omitempty"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	ProcessMs int64  `json:"processMs"`
}

// Rule severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}
