//go:build integration
// +build integration

// Package integration provides end-to-end tests against a running Tamweel server.
//
// These tests verify the complete assessment pipeline:
//
//	Request → Normalize → Weighted sum → Classify → Screening rules → Response
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
//  1. ATTRIBUTES: nine inputs describing a financing request (contract type,
//     loan amount, duration, profitability, cashflow, equity share, sector
//     risk, start-up age, debt ratio). Each is divided by a fixed ceiling.
//
//  2. PROFILE: one of three weighting hypotheses. The score is the weighted
//     sum of the normalized attributes.
//
// 3. BANDS:
//   - Score < 0.30        → low    (منخفض)
//   - 0.30 <= score < 0.60 → medium (متوسط)
//   - Score >= 0.60       → high   (مرتفع)
//
//  4. SCREENING RULES: optional CEL expressions that add advisory findings.
//     They never change the score or the classification.
//
// The server may already hold operator rules; tests only assert on the rule
// they create themselves.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("TAMWEEL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// ============================================================================
// API Request/Response Types
// ============================================================================

// AssessRequest is the body sent to POST /assess
type AssessRequest struct {
	Profile       string  `json:"profile"`
	ContractType  any     `json:"contractType"`
	LoanAmount    float64 `json:"loanAmount"`
	Duration      float64 `json:"duration"`
	Profitability float64 `json:"profitability"`
	Cashflow      float64 `json:"cashflow"`
	EquityShare   float64 `json:"equityShare"`
	SectorRisk    float64 `json:"sectorRisk"`
	StartupAge    float64 `json:"startupAge"`
	DebtRatio     float64 `json:"debtRatio"`
}

// AssessResponse is what POST /assess returns
type AssessResponse struct {
	AssessmentID   string    `json:"assessmentId"`
	Profile        string    `json:"profile"`
	Score          float64   `json:"score"`
	ScoreDisplay   string    `json:"scoreDisplay"`
	Classification string    `json:"classification"`
	Label          string    `json:"label"`
	Color          string    `json:"color"`
	Summary        string    `json:"summary"`
	Findings       []Finding `json:"findings"`
	Metadata       struct {
		TraceID  string `json:"traceId"`
		CacheHit bool   `json:"cacheHit"`
		TotalMs  int64  `json:"totalMs"`
	} `json:"metadata"`
}

type Finding struct {
	RuleID   string `json:"ruleId"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func call(t *testing.T, method, url string, payload any) (int, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

func assess(t *testing.T, config TestConfig, req AssessRequest) AssessResponse {
	t.Helper()

	status, body := call(t, http.MethodPost, config.BaseURL+"/assess", req)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, string(body))
	}

	var result AssessResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(body))
	}
	return result
}

// halfway puts every numeric attribute at half its ceiling.
func halfway(profile string, contract any) AssessRequest {
	return AssessRequest{
		Profile:       profile,
		ContractType:  contract,
		LoanAmount:    50000,
		Duration:      30,
		Profitability: 25000,
		Cashflow:      25000,
		EquityShare:   25000,
		SectorRisk:    5,
		StartupAge:    30,
		DebtRatio:     25000,
	}
}

// ============================================================================
// SCENARIO 1: Reference request
// ============================================================================

func TestHalfwayRequest_Medium(t *testing.T) {
	/*
	   SCENARIO: hypothesis-1, every numeric attribute at half its ceiling,
	   Musharaka (code 2, normalized 0.5)

	   EXPECTED: every normalized value is 0.5 and the weights sum to 1.0,
	   so the score is 0.500 → medium
	*/
	config := getTestConfig()

	result := assess(t, config, halfway("hypothesis-1", 2))

	if result.ScoreDisplay != "0.500" {
		t.Errorf("Expected score 0.500, got %s", result.ScoreDisplay)
	}
	if result.Classification != "medium" {
		t.Errorf("Expected medium, got %s", result.Classification)
	}
	if result.Color != "#FFA500" {
		t.Errorf("Expected #FFA500, got %s", result.Color)
	}
	if result.Summary != "درجة المخاطر: 0.500\nالتصنيف: 🟡 متوسط" {
		t.Errorf("Unexpected summary %q", result.Summary)
	}

	t.Logf("✓ Reference request: score=%s, classification=%s", result.ScoreDisplay, result.Classification)
}

func TestContractLabel_Murabaha(t *testing.T) {
	/*
	   SCENARIO: same request with the Murabaha label instead of a code

	   EXPECTED: Murabaha is code 1, normalized 0.25, so the contract term
	   drops from 0.10 to 0.05: score 0.450 → medium
	*/
	config := getTestConfig()

	result := assess(t, config, halfway("الفرضية 1", "مرابحة"))

	if result.ScoreDisplay != "0.450" {
		t.Errorf("Expected score 0.450, got %s", result.ScoreDisplay)
	}
	if result.Profile != "hypothesis-1" {
		t.Errorf("Expected profile hypothesis-1, got %s", result.Profile)
	}
}

// ============================================================================
// SCENARIO 2: Band boundaries
// ============================================================================

func TestBands(t *testing.T) {
	config := getTestConfig()

	t.Run("all zeros is low", func(t *testing.T) {
		req := AssessRequest{Profile: "hypothesis-2", ContractType: 1}
		result := assess(t, config, req)

		// Only the contract term remains: 0.25 * 0.10
		if math.Abs(result.Score-0.025) > 1e-9 {
			t.Errorf("Expected score 0.025, got %v", result.Score)
		}
		if result.Classification != "low" {
			t.Errorf("Expected low, got %s", result.Classification)
		}
	})

	t.Run("all ceilings is high", func(t *testing.T) {
		req := AssessRequest{
			Profile:       "hypothesis-1",
			ContractType:  4,
			LoanAmount:    100000,
			Duration:      60,
			Profitability: 50000,
			Cashflow:      50000,
			EquityShare:   50000,
			SectorRisk:    10,
			StartupAge:    60,
			DebtRatio:     50000,
		}
		result := assess(t, config, req)

		if result.ScoreDisplay != "1.000" {
			t.Errorf("Expected score 1.000, got %s", result.ScoreDisplay)
		}
		if result.Classification != "high" {
			t.Errorf("Expected high, got %s", result.Classification)
		}
	})
}

// ============================================================================
// SCENARIO 3: Profiles differ
// ============================================================================

func TestProfilesDiffer(t *testing.T) {
	config := getTestConfig()

	req := halfway("hypothesis-1", 2)
	req.Cashflow = 50000
	h1 := assess(t, config, req)

	req.Profile = "hypothesis-3"
	h3 := assess(t, config, req)

	if h1.Score == h3.Score {
		t.Errorf("Expected different scores across profiles, both %v", h1.Score)
	}
	t.Logf("✓ H1=%s H3=%s", h1.ScoreDisplay, h3.ScoreDisplay)
}

// ============================================================================
// SCENARIO 4: Repeated request hits the cache
// ============================================================================

func TestRepeatedRequest_CacheHit(t *testing.T) {
	config := getTestConfig()

	req := halfway("hypothesis-2", 3)
	req.LoanAmount = float64(time.Now().UnixNano()%90000) + 1

	first := assess(t, config, req)
	second := assess(t, config, req)

	if first.Metadata.CacheHit {
		t.Error("Expected first request to miss the cache")
	}
	if !second.Metadata.CacheHit {
		t.Error("Expected second request to hit the cache")
	}
	if first.Score != second.Score {
		t.Errorf("Expected identical scores, got %v and %v", first.Score, second.Score)
	}
	if first.AssessmentID == second.AssessmentID {
		t.Error("Expected distinct assessment IDs")
	}
}

// ============================================================================
// SCENARIO 5: Screening rule adds a finding without moving the score
// ============================================================================

func TestScreeningRule_Advisory(t *testing.T) {
	config := getTestConfig()
	ruleID := fmt.Sprintf("itest-young-%d", time.Now().UnixNano())

	rule := map[string]any{
		"id":         ruleID,
		"name":       "Young start-up",
		"expression": "startup_age < 12.0",
		"severity":   "warning",
		"message":    "start-up younger than a year",
		"enabled":    true,
	}
	status, body := call(t, http.MethodPost, config.BaseURL+"/rules", rule)
	if status != http.StatusCreated {
		t.Fatalf("Expected 201 creating rule, got %d: %s", status, string(body))
	}
	defer call(t, http.MethodDelete, config.BaseURL+"/rules/"+ruleID, nil)

	req := halfway("hypothesis-1", 2)
	req.StartupAge = 6
	result := assess(t, config, req)

	found := false
	for _, f := range result.Findings {
		if f.RuleID == ruleID {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected finding from %s, got %v", ruleID, result.Findings)
	}

	// 6/60 * 0.03 instead of 30/60 * 0.03
	expected := 0.5 - 0.012
	if math.Abs(result.Score-expected) > 1e-9 {
		t.Errorf("Expected score %v, got %v", expected, result.Score)
	}
}

// ============================================================================
// SCENARIO 6: Invalid input
// ============================================================================

func TestInvalidInput(t *testing.T) {
	config := getTestConfig()

	cases := []struct {
		name string
		req  any
	}{
		{"unknown profile", halfway("hypothesis-9", 1)},
		{"unknown contract label", halfway("hypothesis-1", "qard")},
		{"contract code out of range", halfway("hypothesis-1", 7)},
		{"missing attributes", map[string]any{"profile": "hypothesis-1", "contractType": 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := call(t, http.MethodPost, config.BaseURL+"/assess", tc.req)
			if status != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", status, string(body))
			}
		})
	}
}

// ============================================================================
// SCENARIO 7: Health
// ============================================================================

func TestHealth(t *testing.T) {
	config := getTestConfig()

	status, body := call(t, http.MethodGet, config.BaseURL+"/health", nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, string(body))
	}

	var health map[string]any
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("Failed to unmarshal health: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("Expected healthy, got %v", health["status"])
	}
}
