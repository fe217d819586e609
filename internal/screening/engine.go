// Package screening provides the CEL-based watch-rule engine that runs
// over each freshly composed risk score.
package screening

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/openclinic/arpa/internal/domain"
)

// Engine compiles screening rules once and evaluates them against
// score records. Safe for concurrent use.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*compiledRule
}

type compiledRule struct {
	rule    *domain.ScreeningRule
	program cel.Program
}

// NewEngine creates a screening engine. Expressions see the composed
// score, its tier, and the evidence payload as a map.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("score", cel.DoubleType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("patient_id", cel.StringType),
		cel.Variable("evidence", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]*compiledRule),
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(rule *domain.ScreeningRule) error {
	if rule == nil {
		return fmt.Errorf("screening rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compile(rule)
	return err
}

// LoadRule compiles and loads one rule into the engine.
func (e *Engine) LoadRule(rule *domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(rule)
	if err != nil {
		return err
	}

	e.compiled[rule.ID] = compiled
	return nil
}

// ReloadRules replaces the loaded set with the given enabled rules.
// On a compile failure the previously loaded set stays active.
func (e *Engine) ReloadRules(rules []*domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*compiledRule)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		compiled, err := e.compile(rule)
		if err != nil {
			return err
		}
		next[rule.ID] = compiled
	}

	e.compiled = next
	return nil
}

// Evaluate runs every loaded rule against a score record and returns
// one match per triggered rule. A single rule's evaluation error is
// reported but does not stop the remaining rules.
func (e *Engine) Evaluate(score *domain.RiskScore) ([]domain.ScreeningMatch, error) {
	e.mu.RLock()
	rules := make([]*compiledRule, 0, len(e.compiled))
	for _, cr := range e.compiled {
		rules = append(rules, cr)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	evidence, err := evidenceMap(score.RiskFactors)
	if err != nil {
		return nil, fmt.Errorf("failed to build evidence activation: %w", err)
	}

	activation := map[string]any{
		"score":      score.Score,
		"risk_level": score.RiskLevel,
		"patient_id": score.PatientID,
		"evidence":   evidence,
	}

	var matches []domain.ScreeningMatch
	var firstErr error

	for _, cr := range rules {
		out, _, err := cr.program.Eval(activation)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("rule %s: %w", cr.rule.ID, err)
			}
			continue
		}

		if triggered, ok := out.(types.Bool); ok && bool(triggered) {
			matches = append(matches, domain.ScreeningMatch{
				RuleID:    cr.rule.ID,
				RuleName:  cr.rule.Name,
				Severity:  cr.rule.Severity,
				PatientID: score.PatientID,
				ScoreID:   score.ID,
				Score:     score.Score,
				RiskLevel: score.RiskLevel,
			})
		}
	}

	return matches, firstErr
}

// RuleCount returns the number of loaded rules.
func (e *Engine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// GetLoadedRules returns the currently loaded rule definitions.
func (e *Engine) GetLoadedRules() []*domain.ScreeningRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.ScreeningRule, 0, len(e.compiled))
	for _, cr := range e.compiled {
		rules = append(rules, cr.rule)
	}
	return rules
}

// Close drops all loaded rules.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*compiledRule)
	return nil
}

func (e *Engine) compile(rule *domain.ScreeningRule) (*compiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &compiledRule{rule: rule, program: program}, nil
}

// evidenceMap exposes the evidence payload to CEL under its wire keys.
func evidenceMap(factors domain.RiskFactors) (map[string]any, error) {
	data, err := json.Marshal(factors)
	if err != nil {
		return nil, err
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
