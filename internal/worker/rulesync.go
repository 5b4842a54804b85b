package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/opensource-finance/tamweel/internal/domain"
	"github.com/opensource-finance/tamweel/internal/metrics"
	"github.com/opensource-finance/tamweel/internal/rules"
)

// RuleSync keeps a replica's rule engine in step with the shared rule
// store. Every rule change published by another replica triggers a full
// reload from the repository.
type RuleSync struct {
	bus      domain.EventBus
	repo     domain.Repository
	engine   *rules.Engine
	metrics  *metrics.Metrics
	instance string

	mu  sync.Mutex
	sub domain.Subscription
}

// NewRuleSync creates a rule synchronizer. instanceID must match the one
// the local API stamps on its own events.
func NewRuleSync(bus domain.EventBus, repo domain.Repository, engine *rules.Engine, m *metrics.Metrics, instanceID string) *RuleSync {
	return &RuleSync{
		bus:      bus,
		repo:     repo,
		engine:   engine,
		metrics:  m,
		instance: instanceID,
	}
}

// Start subscribes to rule change events.
func (s *RuleSync) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		return fmt.Errorf("rule sync already started")
	}

	sub, err := s.bus.Subscribe(ctx, domain.TopicRulesReloaded, s.handle)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *RuleSync) handle(ctx context.Context, msg *domain.Message) error {
	var event domain.RulesChangedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("invalid rules event: %w", err)
	}
	if event.Origin != "" && event.Origin == s.instance {
		return nil
	}

	if err := s.Reload(ctx); err != nil {
		return err
	}

	slog.Info("screening rules synced",
		"origin", event.Origin,
		"action", event.Action,
		"rule_id", event.RuleID,
		"loaded", s.engine.RulesCount(),
	)
	return nil
}

// Reload replaces the engine's rules with the stored ones.
func (s *RuleSync) Reload(ctx context.Context) error {
	stored, err := s.repo.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}
	if err := s.engine.ReloadRules(stored); err != nil {
		return fmt.Errorf("failed to reload rules: %w", err)
	}
	s.metrics.SetRulesLoaded(s.engine.RulesCount())
	return nil
}

// Stop unsubscribes from rule change events.
func (s *RuleSync) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub == nil {
		return nil
	}
	err := s.sub.Unsubscribe()
	s.sub = nil
	return err
}
