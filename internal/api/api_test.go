package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/opensource-finance/tamweel/internal/assessment"
	"github.com/opensource-finance/tamweel/internal/bus"
	"github.com/opensource-finance/tamweel/internal/cache"
	"github.com/opensource-finance/tamweel/internal/domain"
	"github.com/opensource-finance/tamweel/internal/metrics"
	"github.com/opensource-finance/tamweel/internal/repository"
	"github.com/opensource-finance/tamweel/internal/rules"
	"github.com/opensource-finance/tamweel/internal/scoring"
)

// createTestServer creates a server backed by a temporary SQLite rule store.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "rules.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	engine, err := rules.NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	m := metrics.New()
	resultCache := cache.NewLRUCache(100)

	service := assessment.NewService(scoring.NewDefaultScorer(),
		assessment.WithRules(engine),
		assessment.WithCache(resultCache, time.Minute),
		assessment.WithMetrics(m),
	)

	return NewServer(cfg, service, Deps{
		Repo:    repo,
		Cache:   resultCache,
		Engine:  engine,
		Metrics: m,
		Platform: domain.PlatformConfig{
			Bank:    "البنك الأول",
			Release: "0.1.3",
		},
		Version: "test-v1",
	})
}

func halfwayBody(profile string, contract any) map[string]any {
	return map[string]any{
		"profile":       profile,
		"contractType":  contract,
		"loanAmount":    50000,
		"duration":      30,
		"profitability": 25000,
		"cashflow":      25000,
		"equityShare":   25000,
		"sectorRisk":    5,
		"startupAge":    30,
		"debtRatio":     25000,
	}
}

func do(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = &bytes.Buffer{}
	case string:
		buf = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		buf = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestAssessEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("SuccessfulAssessment", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/assess", halfwayBody("hypothesis-1", 2))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp AssessResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.AssessmentID == "" {
			t.Error("expected assessmentId in response")
		}
		if resp.ScoreDisplay != "0.500" {
			t.Errorf("expected score 0.500, got %s", resp.ScoreDisplay)
		}
		if resp.Classification != "medium" {
			t.Errorf("expected medium, got %s", resp.Classification)
		}
		if resp.Label != "متوسط" {
			t.Errorf("expected label متوسط, got %s", resp.Label)
		}
		if resp.Color != "#FFA500" {
			t.Errorf("expected color #FFA500, got %s", resp.Color)
		}
		if resp.Summary != "درجة المخاطر: 0.500\nالتصنيف: 🟡 متوسط" {
			t.Errorf("unexpected summary %q", resp.Summary)
		}
		if len(resp.Contributions) != 9 {
			t.Errorf("expected 9 contributions, got %d", len(resp.Contributions))
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
		if rr.Header().Get(TraceIDHeader) == "" {
			t.Error("expected X-Trace-ID header")
		}
	})

	t.Run("ContractLabelAndArabicProfile", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/assess", halfwayBody("الفرضية 1", "مرابحة"))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp AssessResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp.Profile != "hypothesis-1" {
			t.Errorf("expected profile hypothesis-1, got %s", resp.Profile)
		}
		if resp.ScoreDisplay != "0.450" {
			t.Errorf("expected score 0.450, got %s", resp.ScoreDisplay)
		}
	})

	t.Run("SecondCallHitsCache", func(t *testing.T) {
		do(t, server, http.MethodPost, "/assess", halfwayBody("hypothesis-3", 4))
		rr := do(t, server, http.MethodPost, "/assess", halfwayBody("hypothesis-3", 4))

		var resp AssessResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if !resp.Metadata.CacheHit {
			t.Error("expected cache hit on repeated request")
		}
	})

	t.Run("UnknownProfile", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/assess", halfwayBody("hypothesis-4", 1))

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownContractLabel", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/assess", halfwayBody("hypothesis-1", "قرض"))

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ContractCodeOutOfRange", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/assess", halfwayBody("hypothesis-1", 7))

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "contractType") {
			t.Errorf("expected contractType error, got %s", rr.Body.String())
		}
	})

	t.Run("MissingAttribute", func(t *testing.T) {
		body := halfwayBody("hypothesis-1", 1)
		delete(body, "debtRatio")

		rr := do(t, server, http.MethodPost, "/assess", body)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "debtRatio is required") {
			t.Errorf("expected debtRatio error, got %s", rr.Body.String())
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/assess", "not-json")

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestReferenceEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("ListProfiles", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/profiles", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Profiles []ProfileView `json:"profiles"`
			Count    int           `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp.Count != 3 {
			t.Errorf("expected 3 profiles, got %d", resp.Count)
		}
		if resp.Profiles[2].Sum != 0.99 {
			t.Errorf("expected hypothesis-3 weights to sum to 0.99, got %v", resp.Profiles[2].Sum)
		}
	})

	t.Run("GetProfile", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/profiles/hypothesis-2", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var p ProfileView
		json.Unmarshal(rr.Body.Bytes(), &p)
		if p.Weights["profitability"] != 0.25 {
			t.Errorf("expected profitability weight 0.25, got %v", p.Weights["profitability"])
		}
	})

	t.Run("GetProfileNotFound", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/profiles/nope", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("ContractTypes", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/contract-types", nil)
		if !strings.Contains(rr.Body.String(), "إيجارة") {
			t.Errorf("expected Ijara label in response, got %s", rr.Body.String())
		}
	})

	t.Run("Bands", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/bands", nil)

		var resp struct {
			Bands []BandView `json:"bands"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if len(resp.Bands) != 3 {
			t.Fatalf("expected 3 bands, got %d", len(resp.Bands))
		}
		if resp.Bands[0].UpperBound == nil || *resp.Bands[0].UpperBound != 0.30 {
			t.Error("expected low band to end at 0.30")
		}
		if resp.Bands[2].UpperBound != nil {
			t.Error("expected high band to be open-ended")
		}
	})

	t.Run("Ceilings", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/ceilings", nil)
		if !strings.Contains(rr.Body.String(), `"loan_amount":100000`) {
			t.Errorf("expected loan_amount ceiling, got %s", rr.Body.String())
		}
	})
}

func TestRulesEndpoints(t *testing.T) {
	server := createTestServer(t)

	rule := CreateRuleRequest{
		ID:         "loan-above-ceiling",
		Name:       "Loan above ceiling",
		Expression: "normalized['loan_amount'] > 1.0",
		Severity:   domain.SeverityCritical,
		Message:    "loan amount exceeds the reference ceiling",
		Enabled:    true,
	}

	t.Run("CreateRule", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/rules", rule)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("RuleProducesFinding", func(t *testing.T) {
		body := halfwayBody("hypothesis-1", 2)
		body["loanAmount"] = 250000

		rr := do(t, server, http.MethodPost, "/assess", body)

		var resp AssessResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if len(resp.Findings) != 1 || resp.Findings[0].RuleID != rule.ID {
			t.Fatalf("expected one finding from %s, got %+v", rule.ID, resp.Findings)
		}
		if resp.Findings[0].Message != rule.Message {
			t.Errorf("unexpected finding message %q", resp.Findings[0].Message)
		}
	})

	t.Run("InvalidExpression", func(t *testing.T) {
		bad := rule
		bad.ID = "bad"
		bad.Expression = "loan_amount +"

		rr := do(t, server, http.MethodPost, "/rules", bad)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NonBoolExpression", func(t *testing.T) {
		bad := rule
		bad.ID = "not-bool"
		bad.Expression = "loan_amount * 2.0"

		rr := do(t, server, http.MethodPost, "/rules", bad)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidSeverity", func(t *testing.T) {
		bad := rule
		bad.ID = "bad-severity"
		bad.Severity = "fatal"

		rr := do(t, server, http.MethodPost, "/rules", bad)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/rules", map[string]string{"id": "x"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ListAndGet", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/rules", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count  int    `json:"count"`
			Source string `json:"source"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 || resp.Source != "database" {
			t.Errorf("expected 1 rule from database, got %d from %s", resp.Count, resp.Source)
		}

		rr = do(t, server, http.MethodGet, "/rules/"+rule.ID, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		rr = do(t, server, http.MethodGet, "/rules/missing", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("Reload", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/rules/reload", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 loaded rule, got %d", resp.Count)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		rr := do(t, server, http.MethodDelete, "/rules/"+rule.ID, nil)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d", rr.Code)
		}

		rr = do(t, server, http.MethodDelete, "/rules/"+rule.ID, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 on second delete, got %d", rr.Code)
		}

		body := halfwayBody("hypothesis-1", 2)
		body["loanAmount"] = 250000
		rr = do(t, server, http.MethodPost, "/assess", body)

		var resp AssessResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if len(resp.Findings) != 0 {
			t.Errorf("expected no findings after delete, got %+v", resp.Findings)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("Health", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/health", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]any
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status healthy, got %v", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version test-v1, got %v", resp["version"])
		}
		if resp["bank"] != "البنك الأول" {
			t.Errorf("expected bank name, got %v", resp["bank"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/ready", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		do(t, server, http.MethodPost, "/assess", halfwayBody("hypothesis-2", 3))

		rr := do(t, server, http.MethodGet, "/metrics", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `tamweel_assessments_total{classification="medium",profile="hypothesis-2"} 1`) {
			t.Errorf("expected assessments counter in metrics output")
		}
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		rr := do(t, server, http.MethodOptions, "/assess", nil)
		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rr.Code)
		}
	})
}

func TestRuleChangesAreAnnounced(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	events := make(chan domain.RulesChangedEvent, 4)
	_, err := eventBus.Subscribe(context.Background(), domain.TopicRulesReloaded, func(ctx context.Context, msg *domain.Message) error {
		var event domain.RulesChangedEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			return err
		}
		events <- event
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	engine, err := rules.NewEngine(2)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	server := NewServer(domain.ServerConfig{Host: "localhost", Port: 8080}, assessment.NewService(scoring.NewDefaultScorer()), Deps{
		Bus:        eventBus,
		Engine:     engine,
		InstanceID: "replica-a",
	})

	next := func() domain.RulesChangedEvent {
		t.Helper()
		select {
		case event := <-events:
			return event
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for rules event")
		}
		return domain.RulesChangedEvent{}
	}

	rr := do(t, server, http.MethodPost, "/rules", map[string]any{
		"id":         "big-loan",
		"name":       "Big loan",
		"expression": "loan_amount > 90000.0",
		"enabled":    true,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	event := next()
	if event.Origin != "replica-a" || event.Action != domain.RulesSaved || event.RuleID != "big-loan" || event.Count != 1 {
		t.Errorf("unexpected saved event %+v", event)
	}

	rr = do(t, server, http.MethodDelete, "/rules/big-loan", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	event = next()
	if event.Action != domain.RulesDeleted || event.RuleID != "big-loan" || event.Count != 0 {
		t.Errorf("unexpected deleted event %+v", event)
	}
}

func TestContractValidation(t *testing.T) {
	v := newValidator()

	for _, ct := range domain.ContractTypes() {
		if err := v.Var(ct, "contract"); err != nil {
			t.Errorf("contract %d rejected: %v", ct, err)
		}
	}
	for _, code := range []int{0, 5, -1} {
		if err := v.Var(domain.ContractType(code), "contract"); err == nil {
			t.Errorf("contract %d accepted", code)
		}
	}
}

func TestTracingContinuesIncomingTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if got := rr.Header().Get(TraceIDHeader); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("expected incoming trace ID, got %q", got)
	}

	rr = do(t, server, http.MethodGet, "/health", nil)
	if got, reqID := rr.Header().Get(TraceIDHeader), rr.Header().Get(RequestIDHeader); got != reqID {
		t.Errorf("expected request ID as trace ID without a trace, got %q and %q", got, reqID)
	}
}
