// Package rules provides the CEL-Go based risk-factor rule engine.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-health/harrier/internal/domain"
)

// Engine compiles and evaluates risk-factor rules against subject
// profiles. Rules are hot-reloadable; evaluation is read-locked.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds the pre-compiled condition and label programs.
type CompiledRule struct {
	Config    *domain.RiskFactorRule
	Condition cel.Program
	Label     cel.Program // nil when the rule has no label expression
}

// NewEngine creates a rule engine with the subject-profile variable set.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("npi", cel.StringType),
		cel.Variable("total_services", cel.IntType),
		cel.Variable("unique_beneficiaries", cel.IntType),
		cel.Variable("services_per_beneficiary", cel.DoubleType),
		cel.Variable("total_charges", cel.DoubleType),
		cel.Variable("total_payments", cel.DoubleType),
		cel.Variable("charge_to_payment_ratio", cel.DoubleType),
		cel.Variable("excluded", cel.BoolType),
		cel.Variable("exclusion_type", cel.StringType),
		cel.Variable("exclusion_description", cel.StringType),
		cel.Variable("state", cel.StringType),
		cel.Variable("specialty", cel.StringType),
		cel.Variable("missing_sources", cel.IntType),
		cel.Variable("legal_findings", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.RiskFactorRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads one rule.
func (e *Engine) LoadRule(cfg *domain.RiskFactorRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}
	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads all enabled rules.
func (e *Engine) LoadRules(configs []*domain.RiskFactorRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces the loaded rule set.
func (e *Engine) ReloadRules(configs []*domain.RiskFactorRule) error {
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

// Evaluate runs every loaded rule against a profile and returns the
// fired risk-factor labels, ordered by rule ID so output is stable.
func (e *Engine) Evaluate(ctx context.Context, profile *domain.SubjectProfile, missingSources int) []string {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, r := range e.compiledRules {
		rules = append(rules, r)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Config.ID < rules[j].Config.ID
	})

	activation := activationFor(profile, missingSources)

	type outcome struct {
		fired bool
		label string
	}
	outcomes := make([]outcome, len(rules))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			fired, label := e.evaluateRule(r, activation, profile.NPI)
			outcomes[idx] = outcome{fired: fired, label: label}
		}(i, rule)
	}
	wg.Wait()

	var factors []string
	for _, o := range outcomes {
		if o.fired {
			factors = append(factors, o.label)
		}
	}
	return factors
}

func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any, npi string) (bool, string) {
	out, _, err := rule.Condition.Eval(activation)
	if err != nil {
		slog.Warn("rule evaluation failed",
			"rule_id", rule.Config.ID,
			"npi", npi,
			"error", err,
		)
		return false, ""
	}
	if !toBool(out) {
		return false, ""
	}

	label := rule.Config.Name
	if rule.Label != nil {
		if lv, _, err := rule.Label.Eval(activation); err == nil {
			if s, ok := lv.Value().(string); ok && s != "" {
				label = s
			}
		}
	}
	return true, label
}

func activationFor(profile *domain.SubjectProfile, missingSources int) map[string]any {
	u := profile.Utilization
	return map[string]any{
		"npi":                      profile.NPI,
		"total_services":           u.TotalServices,
		"unique_beneficiaries":     u.UniqueBeneficiaries,
		"services_per_beneficiary": u.ServicesPerBeneficiary(),
		"total_charges":            u.TotalCharges,
		"total_payments":           u.TotalPayments,
		"charge_to_payment_ratio":  u.ChargeToPaymentRatio(),
		"excluded":                 profile.Exclusion.Excluded,
		"exclusion_type":           profile.Exclusion.ExclusionType,
		"exclusion_description":    profile.Exclusion.Description,
		"state":                    profile.PracticeLocation.State,
		"specialty":                profile.Specialty,
		"missing_sources":          int64(missingSources),
		"legal_findings":           int64(len(profile.LegalFindings)),
	}
}

func toBool(val ref.Val) bool {
	if b, ok := val.(types.Bool); ok {
		return bool(b)
	}
	return false
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RiskFactorRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RiskFactorRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RiskFactorRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	condition, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	compiled := &CompiledRule{Config: cfg, Condition: condition}

	if cfg.Label != "" {
		labelAst, issues := e.env.Compile(cfg.Label)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile label for rule %s: %w", cfg.ID, issues.Err())
		}
		if labelAst.OutputType() != cel.StringType {
			return nil, fmt.Errorf("rule %s: label must return string, got %s", cfg.ID, labelAst.OutputType())
		}
		labelProgram, err := e.env.Program(labelAst)
		if err != nil {
			return nil, fmt.Errorf("failed to create label program for rule %s: %w", cfg.ID, err)
		}
		compiled.Label = labelProgram
	}

	return compiled, nil
}
