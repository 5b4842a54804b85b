package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opensource-finance/tamweel/internal/assessment"
	"github.com/opensource-finance/tamweel/internal/domain"
	"github.com/opensource-finance/tamweel/internal/metrics"
	"github.com/opensource-finance/tamweel/internal/repository"
	"github.com/opensource-finance/tamweel/internal/rules"
	"github.com/opensource-finance/tamweel/internal/scoring"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	service  *assessment.Service
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *rules.Engine
	metrics  *metrics.Metrics
	platform domain.PlatformConfig
	version  string
	instance string
	validate *validator.Validate
}

// Deps groups the optional collaborators of the API.
type Deps struct {
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Engine   *rules.Engine
	Metrics  *metrics.Metrics
	Platform domain.PlatformConfig
	Version  string

	// InstanceID tags rule-change events so this replica skips its own.
	InstanceID string
}

// newValidator returns a validator with the "contract" tag registered.
func newValidator() *validator.Validate {
	v := validator.New()
	err := v.RegisterValidation("contract", func(fl validator.FieldLevel) bool {
		return domain.ContractType(fl.Field().Int()).Valid()
	})
	if err != nil {
		panic(fmt.Sprintf("register contract validation: %v", err))
	}
	return v
}

// NewHandler creates a new API handler.
func NewHandler(service *assessment.Service, deps Deps) *Handler {
	v := newValidator()

	return &Handler{
		service:  service,
		repo:     deps.Repo,
		cache:    deps.Cache,
		bus:      deps.Bus,
		engine:   deps.Engine,
		metrics:  deps.Metrics,
		platform: deps.Platform,
		version:  deps.Version,
		instance: deps.InstanceID,
		validate: v,
	}
}

// AssessRequest is the request body for POST /assess.
// contractType accepts the code (1-4) or the contract label.
type AssessRequest struct {
	Profile       string              `json:"profile" validate:"required"`
	ContractType  domain.ContractType `json:"contractType" validate:"contract"`
	LoanAmount    *float64            `json:"loanAmount" validate:"required"`
	Duration      *float64            `json:"duration" validate:"required"`
	Profitability *float64            `json:"profitability" validate:"required"`
	Cashflow      *float64            `json:"cashflow" validate:"required"`
	EquityShare   *float64            `json:"equityShare" validate:"required"`
	SectorRisk    *float64            `json:"sectorRisk" validate:"required"`
	StartupAge    *float64            `json:"startupAge" validate:"required"`
	DebtRatio     *float64            `json:"debtRatio" validate:"required"`
}

// Attributes converts the request into the scorer's input.
func (req *AssessRequest) Attributes() domain.AttributeSet {
	return domain.AttributeSet{
		ContractType:  req.ContractType,
		LoanAmount:    deref(req.LoanAmount),
		Duration:      deref(req.Duration),
		Profitability: deref(req.Profitability),
		Cashflow:      deref(req.Cashflow),
		EquityShare:   deref(req.EquityShare),
		SectorRisk:    deref(req.SectorRisk),
		StartupAge:    deref(req.StartupAge),
		DebtRatio:     deref(req.DebtRatio),
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// AssessResponse is the response for POST /assess.
type AssessResponse struct {
	AssessmentID   string                `json:"assessmentId"`
	Profile        string                `json:"profile"`
	ProfileName    string                `json:"profileName"`
	Score          float64               `json:"score"`
	ScoreDisplay   string                `json:"scoreDisplay"`
	Classification string                `json:"classification"`
	Label          string                `json:"label"`
	Color          string                `json:"color"`
	Summary        string                `json:"summary"`
	Contributions  []domain.Contribution `json:"contributions"`
	Findings       []domain.Finding      `json:"findings"`
	Metadata       domain.Metadata       `json:"metadata"`
}

// Assess handles POST /assess requests.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.Error("invalid_body")
		msg := "invalid JSON request body"
		if errors.Is(err, domain.ErrInvalidContractLabel) {
			msg = err.Error()
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		h.metrics.Error("validation")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validationMessage(err)})
		return
	}

	a, err := h.service.Assess(ctx, req.Profile, req.Attributes(), GetTraceID(ctx))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			slog.Error("assessment failed", "error", err, "trace_id", GetTraceID(ctx))
			writeJSON(w, status, map[string]string{"error": "assessment failed"})
			return
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	findings := a.Findings
	if findings == nil {
		findings = []domain.Finding{}
	}

	writeJSON(w, http.StatusOK, AssessResponse{
		AssessmentID:   a.ID,
		Profile:        a.Result.ProfileID,
		ProfileName:    a.Result.ProfileName,
		Score:          a.Result.Score,
		ScoreDisplay:   a.Result.ScoreDisplay,
		Classification: string(a.Result.Classification),
		Label:          a.Result.Label,
		Color:          a.Result.Color,
		Summary:        a.Result.Summary,
		Contributions:  a.Result.Contributions,
		Findings:       findings,
		Metadata:       a.Metadata,
	})
}

// statusFor maps scoring errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidProfileName), errors.Is(err, domain.ErrInvalidContractLabel):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "contract":
			fields = append(fields, "contractType must be one of 1-4 or a contract label")
		default:
			fields = append(fields, lowerFirst(fe.Field())+" is required")
		}
	}
	return strings.Join(fields, "; ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// ProfileView is the JSON form of a weight profile.
type ProfileView struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	Weights map[string]float64 `json:"weights"`
	Sum     float64            `json:"sum"`
}

func profileView(p domain.WeightProfile) ProfileView {
	weights := make(map[string]float64, len(domain.Attributes()))
	for attr, w := range p.Weights() {
		weights[string(attr)] = w
	}
	return ProfileView{
		ID:      p.ID(),
		Name:    p.Name(),
		Weights: weights,
		Sum:     scoring.RoundScore(p.Sum()),
	}
}

// ListProfiles handles GET /profiles.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := h.service.Scorer().Profiles().List()

	views := make([]ProfileView, len(profiles))
	for i, p := range profiles {
		views[i] = profileView(p)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profiles": views,
		"count":    len(views),
	})
}

// GetProfile handles GET /profiles/{id}. The id may also be the Arabic name.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Scorer().Profiles().Lookup(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "profile not found"})
		return
	}
	writeJSON(w, http.StatusOK, profileView(p))
}

// ListContractTypes handles GET /contract-types.
func (h *Handler) ListContractTypes(w http.ResponseWriter, r *http.Request) {
	types := make([]map[string]interface{}, 0, 4)
	for _, ct := range domain.ContractTypes() {
		types = append(types, map[string]interface{}{
			"code":  ct.Code(),
			"label": ct.Label(),
			"slug":  ct.Slug(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"contractTypes": types})
}

// ListCeilings handles GET /ceilings.
func (h *Handler) ListCeilings(w http.ResponseWriter, r *http.Request) {
	ceilings := make(map[string]float64, len(domain.Attributes()))
	for attr, v := range h.service.Scorer().Ceilings().Ceilings() {
		ceilings[string(attr)] = v
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ceilings": ceilings})
}

// BandView is the JSON form of a classification band. The last band is
// open-ended and has no upper bound.
type BandView struct {
	Classification string   `json:"classification"`
	UpperBound     *float64 `json:"upperBound"`
	Label          string   `json:"label"`
	Marker         string   `json:"marker"`
	Color          string   `json:"color"`
}

// ListBands handles GET /bands.
func (h *Handler) ListBands(w http.ResponseWriter, r *http.Request) {
	bands := scoring.Bands()
	views := make([]BandView, len(bands))
	for i, b := range bands {
		v := BandView{
			Classification: string(b.Label),
			Label:          b.Label.Label(),
			Marker:         b.Label.Marker(),
			Color:          b.Label.Color(),
		}
		if !math.IsInf(b.UpperBound, 1) {
			ub := b.UpperBound
			v.UpperBound = &ub
		}
		views[i] = v
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bands": views})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	checks := map[string]string{}

	if h.repo != nil {
		checks["repository"] = "ok"
		if err := h.repo.Ping(ctx); err != nil {
			status = "degraded"
			checks["repository"] = err.Error()
		}
	}

	if h.cache != nil {
		checks["cache"] = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			status = "degraded"
			checks["cache"] = err.Error()
		}
	}

	if h.bus != nil {
		checks["bus"] = "ok"
		if err := h.bus.Ping(ctx); err != nil {
			status = "degraded"
			checks["bus"] = err.Error()
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   status,
		"version":  h.version,
		"bank":     h.platform.Bank,
		"release":  h.platform.Release,
		"notes":    h.platform.Notes,
		"profiles": h.service.Scorer().Profiles().IDs(),
		"checks":   checks,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"error": "repository unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns stored screening rules, or the loaded ones when no
// repository is configured.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		loaded := h.loadedRules()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"rules":  loaded,
			"count":  len(loaded),
			"loaded": len(loaded),
			"source": "engine",
		})
		return
	}

	stored, err := h.repo.ListRules(r.Context())
	if err != nil {
		slog.Error("failed to list rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rules",
		})
		return
	}
	if stored == nil {
		stored = []*domain.RuleConfig{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  stored,
		"count":  len(stored),
		"loaded": h.rulesCount(),
		"source": "database",
	})
}

// GetRule retrieves a screening rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if h.repo != nil {
		rule, err := h.repo.GetRule(r.Context(), ruleID)
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "rule not found"})
			return
		}
		if err != nil {
			slog.Error("failed to get rule", "id", ruleID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get rule"})
			return
		}
		writeJSON(w, http.StatusOK, rule)
		return
	}

	for _, rule := range h.loadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{"error": "rule not found"})
}

// CreateRuleRequest is the request body for creating a screening rule.
type CreateRuleRequest struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	Expression  string `json:"expression" validate:"required"`
	Severity    string `json:"severity,omitempty"`
	Message     string `json:"message,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule validates a rule, persists it and loads it when enabled.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "rule engine not available"})
		return
	}

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	if req.Severity == "" {
		req.Severity = domain.SeverityWarning
	}
	if !domain.ValidSeverity(req.Severity) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("severity must be %s, %s or %s", domain.SeverityInfo, domain.SeverityWarning, domain.SeverityCritical),
		})
		return
	}
	if req.Version == "" {
		req.Version = "1.0.0"
	}

	rule := &domain.RuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Expression:  req.Expression,
		Severity:    req.Severity,
		Message:     req.Message,
		Enabled:     req.Enabled,
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRule(ctx, rule); err != nil {
			slog.Error("failed to save rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	if rule.Enabled {
		if err := h.engine.LoadRule(rule); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load rule"})
			return
		}
	} else {
		h.engine.UnloadRule(rule.ID)
	}
	h.metrics.SetRulesLoaded(h.engine.RulesCount())
	h.announceRules(ctx, domain.RulesSaved, rule.ID)

	slog.Info("screening rule saved", "id", rule.ID, "name", rule.Name, "enabled", rule.Enabled)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":   rule,
		"loaded": rule.Enabled,
	})
}

// DeleteRule removes a screening rule from storage and from the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if h.repo != nil {
		err := h.repo.DeleteRule(r.Context(), ruleID)
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "rule not found"})
			return
		}
		if err != nil {
			slog.Error("failed to delete rule", "id", ruleID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete rule"})
			return
		}
	}

	if h.engine != nil {
		h.engine.UnloadRule(ruleID)
		h.metrics.SetRulesLoaded(h.engine.RulesCount())
	}
	h.announceRules(r.Context(), domain.RulesDeleted, ruleID)

	slog.Info("screening rule deleted", "id", ruleID)
	w.WriteHeader(http.StatusNoContent)
}

// ReloadRules reloads all rules from the database into the engine.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil || h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	stored, err := h.repo.ListRules(ctx)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(stored); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	loaded := h.engine.RulesCount()
	h.metrics.SetRulesLoaded(loaded)

	h.announceRules(ctx, domain.RulesReloaded, "")

	slog.Info("rules reloaded from database", "stored", len(stored), "loaded", loaded)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   loaded,
	})
}

func (h *Handler) loadedRules() []*domain.RuleConfig {
	if h.engine == nil {
		return []*domain.RuleConfig{}
	}
	return h.engine.GetLoadedRules()
}

func (h *Handler) rulesCount() int {
	if h.engine == nil {
		return 0
	}
	return h.engine.RulesCount()
}

// announceRules tells other replicas that the stored rules changed.
func (h *Handler) announceRules(ctx context.Context, action, ruleID string) {
	if h.bus == nil {
		return
	}

	payload, err := json.Marshal(domain.RulesChangedEvent{
		Origin: h.instance,
		Action: action,
		RuleID: ruleID,
		Count:  h.rulesCount(),
	})
	if err != nil {
		return
	}
	if err := h.bus.Publish(ctx, domain.TopicRulesReloaded, payload); err != nil {
		slog.Warn("failed to publish rules change", "action", action, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
