// Package assessment orchestrates one scored financing request: result
// memoization, scoring, advisory screening, metrics and event publication.
package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/opensource-finance/tamweel/internal/domain"
	"github.com/opensource-finance/tamweel/internal/metrics"
	"github.com/opensource-finance/tamweel/internal/rules"
	"github.com/opensource-finance/tamweel/internal/scoring"
)

// EngineVersion is reported in every assessment's metadata.
const EngineVersion = "tamweel-0.1.3"

const defaultResultTTL = time.Hour

var tracer = otel.Tracer("tamweel-assessment")

// Service produces assessments. All dependencies except the scorer are optional.
type Service struct {
	scorer    *scoring.Scorer
	engine    *rules.Engine
	cache     domain.Cache
	bus       domain.EventBus
	metrics   *metrics.Metrics
	resultTTL time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithRules attaches the screening rule engine.
func WithRules(engine *rules.Engine) Option {
	return func(s *Service) { s.engine = engine }
}

// WithCache enables result memoization. A non-positive ttl keeps the default.
func WithCache(cache domain.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		if ttl > 0 {
			s.resultTTL = ttl
		}
	}
}

// WithBus publishes completion events on the given bus.
func WithBus(bus domain.EventBus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates an assessment service around a scorer.
func NewService(scorer *scoring.Scorer, opts ...Option) *Service {
	s := &Service{
		scorer:    scorer,
		resultTTL: defaultResultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scorer returns the underlying scorer.
func (s *Service) Scorer() *scoring.Scorer {
	return s.scorer
}

// Assess scores one request and runs the screening rules over it.
// The contract type must be one of the four known codes.
// Scoring errors (unknown profile, bad ceiling table) are returned as-is
// so callers can match them with errors.Is. Cache and bus failures are
// logged and never fail the request.
func (s *Service) Assess(ctx context.Context, profileName string, attrs domain.AttributeSet, traceID string) (*domain.Assessment, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "Assess")
	defer span.End()

	profile, err := s.scorer.Profiles().Lookup(profileName)
	if err != nil {
		s.metrics.Error("invalid_profile")
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid profile")
		return nil, err
	}

	if !attrs.ContractType.Valid() {
		err := fmt.Errorf("%w: code %d", domain.ErrInvalidContractLabel, attrs.ContractType.Code())
		s.metrics.Error("invalid_contract")
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid contract type")
		return nil, err
	}

	fp := Fingerprint(profile.ID(), attrs)
	span.SetAttributes(
		attribute.String("profile", profile.ID()),
		attribute.String("fingerprint", fp),
	)

	a := &domain.Assessment{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Metadata: domain.Metadata{
			TraceID:       traceID,
			Fingerprint:   fp,
			EngineVersion: EngineVersion,
		},
	}

	// 1. Score, from cache when possible
	scoreStart := time.Now()
	result := s.cachedResult(ctx, fp)
	if result != nil {
		a.Metadata.CacheHit = true
	} else {
		result, err = s.scorer.Evaluate(profile.ID(), attrs)
		if err != nil {
			s.metrics.Error("scoring")
			span.RecordError(err)
			span.SetStatus(codes.Error, "scoring failed")
			return nil, fmt.Errorf("scoring failed: %w", err)
		}
		s.storeResult(ctx, fp, result)
	}
	a.Result = result
	a.Metadata.ScoreMs = time.Since(scoreStart).Milliseconds()

	// 2. Advisory screening
	if s.engine != nil && s.engine.RulesCount() > 0 {
		rulesStart := time.Now()
		findings, err := s.engine.EvaluateAll(ctx, &rules.EvaluateInput{Attributes: attrs, Result: result})
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("screening failed: %w", err)
		}
		a.Findings = findings
		a.Metadata.RulesEvaluated = s.engine.RulesCount()
		a.Metadata.RulesMs = time.Since(rulesStart).Milliseconds()
	}

	elapsed := time.Since(start)
	a.Metadata.TotalMs = elapsed.Milliseconds()

	span.SetAttributes(
		attribute.Float64("score", result.Score),
		attribute.String("classification", string(result.Classification)),
		attribute.Int("findings", len(a.Findings)),
		attribute.Bool("cache_hit", a.Metadata.CacheHit),
	)

	s.metrics.ObserveAssessment(a, elapsed)
	s.publish(ctx, a)

	slog.Debug("assessment completed",
		"assessment_id", a.ID,
		"trace_id", traceID,
		"profile", result.ProfileID,
		"score", result.ScoreDisplay,
		"classification", result.Classification,
		"findings", len(a.Findings),
		"cache_hit", a.Metadata.CacheHit,
	)

	return a, nil
}

func (s *Service) cachedResult(ctx context.Context, fp string) *domain.RiskResult {
	if s.cache == nil {
		return nil
	}
	result, err := s.cache.GetResult(ctx, fp)
	if err != nil {
		slog.Warn("result cache lookup failed", "fingerprint", fp, "error", err)
		s.metrics.CacheMiss()
		return nil
	}
	if result == nil {
		s.metrics.CacheMiss()
		return nil
	}
	s.metrics.CacheHit()
	return result
}

func (s *Service) storeResult(ctx context.Context, fp string, result *domain.RiskResult) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetResult(ctx, fp, result, s.resultTTL); err != nil {
		slog.Warn("result cache store failed", "fingerprint", fp, "error", err)
	}
}

// publish emits the completed event and, for escalations, a second event.
func (s *Service) publish(ctx context.Context, a *domain.Assessment) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(a)
	if err != nil {
		slog.Error("failed to marshal assessment", "assessment_id", a.ID, "error", err)
		return
	}

	if err := s.bus.Publish(ctx, domain.TopicAssessmentCompleted, payload); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("failed to publish assessment",
			"assessment_id", a.ID,
			"error", err,
		)
	}

	if ShouldEscalate(a) {
		if err := s.bus.Publish(ctx, domain.TopicAssessmentEscalated, payload); err != nil {
			slog.Error("failed to publish escalation",
				"assessment_id", a.ID,
				"error", err,
			)
		}
	}
}

// ShouldEscalate reports whether an assessment needs manual review: a high
// classification or at least one critical finding.
func ShouldEscalate(a *domain.Assessment) bool {
	if a == nil || a.Result == nil {
		return false
	}
	if a.Result.Classification == domain.RiskHigh {
		return true
	}
	for _, f := range a.Findings {
		if f.Severity == domain.SeverityCritical {
			return true
		}
	}
	return false
}

// Fingerprint is a stable 64-bit hash of the profile and the nine inputs,
// used as the result cache key.
func Fingerprint(profileID string, attrs domain.AttributeSet) string {
	d := xxhash.New()
	_, _ = d.WriteString(profileID)
	for _, attr := range domain.Attributes() {
		v, _ := attrs.Value(attr)
		_, _ = d.WriteString("|")
		_, _ = d.WriteString(formatFloat(v))
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

func formatFloat(v float64) string {
	// Collapse -0 onto 0 so equal inputs hash equally.
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
