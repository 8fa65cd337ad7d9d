package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/partsync/pkg/engine"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop(), opts...)
	require.NoError(t, err)
	return eng
}

func planFor(name string, ops ...engine.OperationType) (*engine.Plan, *engine.Request) {
	plan := &engine.Plan{ID: "plan-1", CPCName: "CPC1", PartitionName: name}
	for _, op := range ops {
		plan.Steps = append(plan.Steps, engine.Step{Operation: op})
	}
	return plan, &engine.Request{CPCName: "CPC1", Name: name, State: engine.StateAbsent}
}

func TestNewEngineLoadsBuiltins(t *testing.T) {
	eng := newTestEngine(t)

	var names []string
	for _, p := range eng.ListPolicies() {
		names = append(names, p.Name)
		assert.True(t, p.Enabled, p.Name)
	}
	assert.Equal(t, []string{"disruptive-update", "memory-limits", "protected-partitions"}, names)

	empty := newTestEngine(t, WithoutBuiltins())
	assert.Empty(t, empty.ListPolicies())
}

func TestProtectedPartitions(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		partition string
		ops       []engine.OperationType
		allowed   bool
	}{
		{"delete protected", "prod-db", []engine.OperationType{engine.OperationStop, engine.OperationDelete}, false},
		{"delete unprotected", "test-db", []engine.OperationType{engine.OperationDelete}, true},
		{"stop protected", "prod-db", []engine.OperationType{engine.OperationStop}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, req := planFor(tt.partition, tt.ops...)
			res, err := eng.EvaluatePlan(ctx, plan, req)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, res.Allowed)
			if !tt.allowed {
				require.Len(t, res.Violations, 1)
				v := res.Violations[0]
				assert.Equal(t, "protected-partitions", v.Policy)
				assert.Equal(t, "error", v.Severity)
				assert.Equal(t, "CPC1/prod-db", v.Resource)
				assert.Contains(t, v.Message, "prod-db is protected")
			}
		})
	}
}

func TestUpdateSettings(t *testing.T) {
	eng := newTestEngine(t, WithSettings(Settings{ProtectedPrefixes: []string{"core-"}}))
	ctx := context.Background()

	plan, req := planFor("prod-db", engine.OperationDelete)
	res, err := eng.EvaluatePlan(ctx, plan, req)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "prod- is not protected with custom settings")

	plan, req = planFor("core-db", engine.OperationDelete)
	res, err = eng.EvaluatePlan(ctx, plan, req)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	require.NoError(t, eng.UpdateSettings(ctx, Settings{}))
	assert.Empty(t, eng.Settings().ProtectedPrefixes)
	res, err = eng.EvaluatePlan(ctx, plan, req)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryLimits(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, WithSettings(Settings{MaxMemoryMB: 65536}))

	tests := []struct {
		name     string
		props    engine.Properties
		allowed  bool
		severity []string
	}{
		{"within limits", engine.Properties{"initial-memory": 4096, "maximum-memory": 8192}, true, nil},
		{"initial above maximum", engine.Properties{"initial-memory": 16384, "maximum-memory": 8192}, true, []string{"warning"}},
		{"above limit", engine.Properties{"initial-memory": 4096, "maximum-memory": 131072}, false, []string{"error"}},
		{"no memory properties", engine.Properties{"description": "x"}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := &engine.Plan{ID: "p", Steps: []engine.Step{{Operation: engine.OperationUpdate, Properties: tt.props}}}
			req := &engine.Request{CPCName: "CPC1", Name: "web", State: engine.StateStopped}

			res, err := eng.EvaluatePlan(ctx, plan, req)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, res.Allowed)
			var got []string
			for _, v := range res.Violations {
				assert.Equal(t, "memory-limits", v.Policy)
				got = append(got, v.Severity)
			}
			assert.Equal(t, tt.severity, got)
		})
	}
}

func TestDisruptiveUpdate(t *testing.T) {
	eng := newTestEngine(t)
	plan := &engine.Plan{ID: "p", Steps: []engine.Step{
		{Operation: engine.OperationStop},
		{Operation: engine.OperationUpdate, Properties: engine.Properties{"maximum-memory": 8192}},
		{Operation: engine.OperationStart},
	}}
	req := &engine.Request{CPCName: "CPC1", Name: "web", State: engine.StateActive}

	res, err := eng.EvaluatePlan(context.Background(), plan, req)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "disruptive-update", res.Violations[0].Policy)
	assert.Equal(t, "warning", res.Violations[0].Severity)
	assert.Equal(t, "partition web will be restarted to apply the update", res.Violations[0].Message)
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	plan, req := planFor("prod-db", engine.OperationDelete)

	require.NoError(t, eng.DisablePolicy("protected-partitions"))
	p, err := eng.GetPolicy("protected-partitions")
	require.NoError(t, err)
	assert.False(t, p.Enabled)

	res, err := eng.EvaluatePlan(ctx, plan, req)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	require.NoError(t, eng.EnablePolicy("protected-partitions"))
	res, err = eng.EvaluatePlan(ctx, plan, req)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	assert.Error(t, eng.EnablePolicy("missing"))
	_, err = eng.GetPolicy("missing")
	assert.Error(t, err)
}

func TestAddPolicies(t *testing.T) {
	eng := newTestEngine(t, WithoutBuiltins())
	ctx := context.Background()

	err := eng.AddPolicies(ctx, []Policy{
		{
			Name:     "no-check-mode-delete",
			Severity: SeverityCritical,
			Enabled:  true,
			Rego: `package custom.nodelete

import rego.v1

deny contains "deletes are frozen" if {
	"delete" in input.operations
	not input.context.check_mode
}
`,
		},
	})
	require.NoError(t, err)

	plan, req := planFor("web", engine.OperationDelete)
	res, err := eng.EvaluatePlan(ctx, plan, req)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "critical", res.Violations[0].Severity)
	assert.Equal(t, "deletes are frozen", res.Violations[0].Message)

	req.CheckMode = true
	res, err = eng.EvaluatePlan(ctx, plan, req)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	err = eng.AddPolicies(ctx, []Policy{{Name: "broken", Rego: "package broken\n\ndeny contains if {"}})
	assert.Error(t, err)
	assert.Len(t, eng.ListPolicies(), 1)

	err = eng.AddPolicies(ctx, []Policy{{Rego: "package x"}})
	assert.ErrorContains(t, err, "policy name is required")
}

func TestReplacePoliciesKeepsPreviousOnError(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	custom := Policy{Name: "custom", Enabled: true, Rego: "package custom\n\nimport rego.v1\n\ndeny contains \"no\" if false\n"}
	require.NoError(t, eng.ReplacePolicies(ctx, []Policy{custom}))
	assert.Len(t, eng.ListPolicies(), 4)

	err := eng.ReplacePolicies(ctx, []Policy{{Name: "bad", Rego: "not rego"}})
	require.Error(t, err)
	assert.Len(t, eng.ListPolicies(), 4)

	require.NoError(t, eng.ReloadPolicies(ctx, nil))
	assert.Len(t, eng.ListPolicies(), 3)
}

func TestEvaluatePlanRequiresInput(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.EvaluatePlan(context.Background(), nil, &engine.Request{})
	assert.Error(t, err)
}

func TestSeverityBlocking(t *testing.T) {
	assert.False(t, SeverityInfo.Blocking())
	assert.False(t, SeverityWarning.Blocking())
	assert.True(t, SeverityError.Blocking())
	assert.True(t, SeverityCritical.Blocking())
}
