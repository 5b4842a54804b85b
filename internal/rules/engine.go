// Package rules provides the CEL-Go based screening engine.
// Screening rules are advisory: they add findings to an assessment but
// never change its score or classification.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/tamweel/internal/domain"
)

// Engine is the CEL-based screening engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a new screening engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	opts := []cel.EnvOption{
		cel.Variable("profile", cel.StringType),
		cel.Variable("contract", cel.StringType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("classification", cel.StringType),
		cel.Variable("normalized", cel.MapType(cel.StringType, cel.DoubleType)),
	}
	for _, attr := range domain.Attributes() {
		if attr == domain.AttrContractType {
			opts = append(opts, cel.Variable(string(attr), cel.IntType))
			continue
		}
		opts = append(opts, cel.Variable(string(attr), cel.DoubleType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// UnloadRule removes a rule from the engine. Unknown IDs are ignored.
func (e *Engine) UnloadRule(ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.compiledRules, ruleID)
}

// EvaluateInput holds a scored request for screening.
type EvaluateInput struct {
	Attributes domain.AttributeSet
	Result     *domain.RiskResult
}

// activation builds the CEL variables for one input.
func (in *EvaluateInput) activation() map[string]any {
	act := map[string]any{
		"profile":        "",
		"contract":       in.Attributes.ContractType.Slug(),
		"score":          0.0,
		"classification": "",
	}
	for attr, v := range in.Attributes.Values() {
		act[string(attr)] = v
	}
	act[string(domain.AttrContractType)] = int64(in.Attributes.ContractType)

	normalized := make(map[string]float64, 9)
	if in.Result != nil {
		act["profile"] = in.Result.ProfileID
		act["score"] = in.Result.Score
		act["classification"] = string(in.Result.Classification)
		for _, c := range in.Result.Contributions {
			normalized[string(c.Attribute)] = c.Normalized
		}
	}
	act["normalized"] = normalized
	return act
}

// EvaluateAll evaluates all loaded rules in parallel and returns the
// findings of triggered rules ordered by rule ID.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.Finding, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	activation := input.activation()

	// Parallel evaluation using worker pool pattern
	results := make([]*domain.Finding, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			if ctx.Err() != nil {
				return
			}
			results[idx] = e.evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	findings := make([]domain.Finding, 0, len(results))
	for _, f := range results {
		if f != nil {
			findings = append(findings, *f)
		}
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].RuleID < findings[j].RuleID })

	return findings, nil
}

// evaluateRule returns a finding when the rule triggers, nil otherwise.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) *domain.Finding {
	start := time.Now()

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		slog.Warn("screening rule evaluation failed",
			"rule_id", rule.Config.ID,
			"error", err,
		)
		return nil
	}

	triggered, ok := out.(types.Bool)
	if !ok || !bool(triggered) {
		return nil
	}

	message := rule.Config.Message
	if message == "" {
		message = rule.Config.Name
	}

	return &domain.Finding{
		RuleID:    rule.Config.ID,
		RuleName:  rule.Config.Name,
		Severity:  rule.Config.Severity,
		Message:   message,
		ProcessMs: time.Since(start).Milliseconds(),
	}
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// Either every enabled rule compiles and the set is swapped, or nothing changes.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
