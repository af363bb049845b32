package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Engine evaluates admission policies against experiment descriptions.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy represents a parsed Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	builtins := GetBuiltinPolicies()
	for i := range builtins {
		if err := e.compileAndStorePolicy(&builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	e.logger.Info().Int("count", len(builtins)).Msg("Built-in policies loaded")
	return e, nil
}

// Evaluate runs every enabled policy against the input document.
func (e *Engine) Evaluate(ctx context.Context, input *Input) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var allViolations []Violation
	var warnings []string

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).Str("policy", cp.policy.Name).Msg("Policy evaluation failed")
			warnings = append(warnings, fmt.Sprintf("Policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}
		allViolations = append(allViolations, violations...)
	}

	allowed := true
	for i := range allViolations {
		if allViolations[i].Severity == SeverityError {
			allowed = false
			break
		}
	}

	return &Result{
		Allowed:     allowed,
		Violations:  allViolations,
		Warnings:    warnings,
		EvaluatedAt: time.Now(),
	}, nil
}

// LoadPolicies loads policy files from the given paths on top of the
// built-in set.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.ReplacePolicies(policies)
}

// ReplacePolicies installs the given policies, keeping the built-in set.
// It is the reload target for the loader's file watcher.
func (e *Engine) ReplacePolicies(policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := make(map[string]*compiledPolicy)
	builtinNames := make(map[string]bool)
	for _, builtin := range GetBuiltinPolicies() {
		builtinNames[builtin.Name] = true
	}
	for name, cp := range e.policies {
		if builtinNames[name] {
			kept[name] = cp
		}
	}
	e.policies = kept

	for i := range policies {
		if err := e.compileAndStorePolicy(&policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().Int("count", len(policies)).Msg("Policies loaded")
	return nil
}

// evaluatePolicy evaluates a single policy's deny rules.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	query := fmt.Sprintf("data.%s.deny", extractPackageName(cp.policy.Rego))

	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, createViolation(cp.policy, d))
			}
		}
	}
	return violations, nil
}

// extractPackageName extracts the package name from Rego code.
func extractPackageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "dioptra.policies"
}

// createViolation builds a Violation from one deny result.
func createViolation(policy *Policy, result interface{}) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
		if step, ok := v["step"].(string); ok {
			violation.Step = step
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compileAndStorePolicy parses a policy and stores it.
func (e *Engine) compileAndStorePolicy(policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		compiled: time.Now(),
	}

	e.logger.Debug().Str("policy", policy.Name).Msg("Policy compiled")
	return nil
}

// sortedNames returns policy names in a deterministic order. Callers must
// hold the lock.
func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}
