package domain

import "time"

// Assessment is the full response for one scored financing request:
// the core result plus advisory findings and processing metadata.
type Assessment struct {
	ID        string      `json:"assessmentId"`
	Result    *RiskResult `json:"result"`
	Findings  []Finding   `json:"findings,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Metadata  Metadata    `json:"metadata"`
}

// Metadata contains processing information.
type Metadata struct {
	TraceID        string `json:"traceId"`
	Fingerprint    string `json:"fingerprint"`
	CacheHit       bool   `json:"cacheHit"`
	ScoreMs        int64  `json:"scoreMs"`
	RulesMs        int64  `json:"rulesMs"`
	TotalMs        int64  `json:"totalMs"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	EngineVersion  string `json:"engineVersion"`
}

// AssessmentRequest is the payload carried on TopicAssessmentRequested.
type AssessmentRequest struct {
	Profile    string       `json:"profile"`
	Attributes AttributeSet `json:"attributes"`
	TraceID    string       `json:"traceId,omitempty"`
}

// AssessmentReply is the reply to an AssessmentRequest.
type AssessmentReply struct {
	Assessment *Assessment `json:"assessment,omitempty"`
	Error      string      `json:"error,omitempty"`
}
