package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/storage"
	"github.com/open-policy-agent/opa/v1/storage/inmem"
	"github.com/rs/zerolog"

	"github.com/openfroyo/partsync/pkg/engine"
)

var _ engine.PolicyEngine = (*Engine)(nil)

var settingsPath = storage.MustParsePath("/partsync/settings")

// Engine evaluates Rego policies against partition plans.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	store    storage.Store
	logger   zerolog.Logger
	settings Settings
	builtins bool
}

// compiledPolicy is a policy with its prepared deny query.
type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSettings sets the data published to policies.
func WithSettings(s Settings) Option {
	return func(e *Engine) {
		e.settings = s
	}
}

// WithoutBuiltins skips loading the built-in policies.
func WithoutBuiltins() Option {
	return func(e *Engine) {
		e.builtins = false
	}
}

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
		settings: DefaultSettings(),
		builtins: true,
	}
	for _, opt := range opts {
		opt(e)
	}

	data, err := settingsDocument(e.settings)
	if err != nil {
		return nil, err
	}
	e.store = inmem.NewFromObject(map[string]interface{}{
		"partsync": map[string]interface{}{"settings": data},
	})

	if e.builtins {
		if err := e.loadBuiltinPolicies(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to load built-in policies: %w", err)
		}
	}

	return e, nil
}

// EvaluatePlan evaluates all enabled policies against a plan. A policy that
// fails to evaluate is reported as a warning and does not block the plan.
func (e *Engine) EvaluatePlan(ctx context.Context, plan *engine.Plan, req *engine.Request) (*engine.PolicyResult, error) {
	if plan == nil || req == nil {
		return nil, fmt.Errorf("plan and request are required")
	}
	startTime := time.Now()

	input, err := buildInput(plan, req)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var violations []engine.PolicyViolation
	var warnings []string

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}

		found, err := e.evaluatePolicy(ctx, cp, input, req.Target())
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", name).
				Str("plan_id", plan.ID).
				Msg("Policy evaluation failed")
			warnings = append(warnings, fmt.Sprintf("policy %s evaluation failed: %v", name, err))
			continue
		}
		violations = append(violations, found...)
	}

	allowed := true
	for i := range violations {
		if Severity(violations[i].Severity).Blocking() {
			allowed = false
			break
		}
	}

	e.logger.Debug().
		Str("plan_id", plan.ID).
		Str("partition", req.Target()).
		Int("violations", len(violations)).
		Dur("duration", time.Since(startTime)).
		Msg("Plan policy evaluation completed")

	return &engine.PolicyResult{
		Allowed:     allowed,
		Violations:  violations,
		Warnings:    warnings,
		EvaluatedAt: time.Now(),
	}, nil
}

// buildInput converts the plan into the generic document OPA evaluates.
func buildInput(plan *engine.Plan, req *engine.Request) (map[string]interface{}, error) {
	ops := make([]string, 0, len(plan.Steps))
	for _, op := range plan.Operations() {
		ops = append(ops, string(op))
	}
	in := PolicyInput{
		Partition: PartitionInput{
			CPC:        req.CPCName,
			Name:       req.Name,
			State:      string(req.State),
			Properties: req.Properties,
		},
		Plan:       plan,
		Operations: ops,
		Context: PolicyContext{
			Timestamp: time.Now().UTC(),
			CheckMode: req.CheckMode,
		},
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy input: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode policy input: %w", err)
	}
	return doc, nil
}

// evaluatePolicy runs the deny query of a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input map[string]interface{}, target string) ([]engine.PolicyViolation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []engine.PolicyViolation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(cp.policy, d, target))
		}
	}

	return violations, nil
}

// createViolation creates a PolicyViolation from one deny element.
func createViolation(policy *Policy, result interface{}, target string) engine.PolicyViolation {
	violation := engine.PolicyViolation{
		Policy:   policy.Name,
		Severity: string(policy.Severity),
		Resource: target,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = sev
		}
		if res, ok := v["resource"].(string); ok {
			violation.Resource = res
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// LoadPolicies loads policy files and directories, replacing policies with
// the same name.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.AddPolicies(ctx, policies)
}

// AddPolicies compiles and registers policies. Nothing is registered when
// one of them fails to compile.
func (e *Engine) AddPolicies(ctx context.Context, policies []Policy) error {
	compiled := make([]*compiledPolicy, 0, len(policies))
	for i := range policies {
		cp, err := e.compile(ctx, &policies[i])
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", policies[i].Name).
				Msg("Failed to compile policy")
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
		compiled = append(compiled, cp)
	}

	e.mu.Lock()
	for _, cp := range compiled {
		e.policies[cp.policy.Name] = cp
	}
	e.mu.Unlock()

	e.logger.Info().Int("count", len(compiled)).Msg("Policies loaded")
	return nil
}

// compile parses a policy and prepares its deny query against the store.
func (e *Engine) compile(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	if policy.Name == "" {
		return nil, fmt.Errorf("policy name is required")
	}

	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	pkg := module.Package.Path.String()

	query, err := rego.New(
		rego.ParsedModule(module),
		rego.Store(e.store),
		rego.Query(pkg+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	p := *policy
	if p.Severity == "" {
		p.Severity = SeverityError
	}
	return &compiledPolicy{
		policy:   &p,
		query:    query,
		compiled: time.Now(),
	}, nil
}

// loadBuiltinPolicies registers the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	return e.AddPolicies(ctx, GetBuiltinPolicies())
}

// UpdateSettings replaces the data published to policies.
func (e *Engine) UpdateSettings(ctx context.Context, s Settings) error {
	data, err := settingsDocument(s)
	if err != nil {
		return err
	}
	if err := storage.WriteOne(ctx, e.store, storage.ReplaceOp, settingsPath, data); err != nil {
		return fmt.Errorf("failed to write policy settings: %w", err)
	}

	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()
	return nil
}

// Settings returns the data currently published to policies.
func (e *Engine) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

func settingsDocument(s Settings) (map[string]interface{}, error) {
	if s.ProtectedPrefixes == nil {
		s.ProtectedPrefixes = []string{}
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy settings: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode policy settings: %w", err)
	}
	return doc, nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	p := *cp.policy
	return &p, nil
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

// ReloadPolicies drops every loaded policy, restores the built-ins and loads
// the given paths again.
func (e *Engine) ReloadPolicies(ctx context.Context, paths []string) error {
	var loaded []Policy
	if len(paths) > 0 {
		var err error
		loaded, err = NewLoader(e.logger).LoadFromPaths(ctx, paths)
		if err != nil {
			return fmt.Errorf("failed to load policies: %w", err)
		}
	}
	return e.ReplacePolicies(ctx, loaded)
}

// ReplacePolicies swaps the loaded policies for the built-ins plus the given
// ones. The previous set stays in place when any policy fails to compile.
func (e *Engine) ReplacePolicies(ctx context.Context, policies []Policy) error {
	var all []Policy
	if e.builtins {
		all = append(all, GetBuiltinPolicies()...)
	}
	all = append(all, policies...)

	next := make(map[string]*compiledPolicy, len(all))
	for i := range all {
		cp, err := e.compile(ctx, &all[i])
		if err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", all[i].Name, err)
		}
		next[cp.policy.Name] = cp
	}

	e.mu.Lock()
	e.policies = next
	e.mu.Unlock()

	e.logger.Info().Int("count", len(next)).Msg("Policies replaced")
	return nil
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

// sortedNames returns policy names in evaluation order. Callers hold mu.
func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
