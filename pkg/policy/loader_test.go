package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRego = `# Blocks deletes of the audit partition.
# Owned by the platform team.
package custom.audit

import rego.v1

deny contains "audit cannot be deleted" if {
	input.partition.name == "audit"
	"delete" in input.operations
}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadRegoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.rego")
	writeFile(t, path, testRego)

	p, err := loadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "audit", p.Name)
	assert.Equal(t, "Blocks deletes of the audit partition. Owned by the platform team.", p.Description)
	assert.Equal(t, SeverityError, p.Severity)
	assert.True(t, p.Enabled)
	assert.Equal(t, path, p.Source)
}

func TestLoadManifests(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "a.json"), `{"name":"json-policy","severity":"warning","rego":"package a\n"}`)
	writeFile(t, filepath.Join(dir, "b.yaml"), "name: yaml-policy\nenabled: false\ntags: [capacity]\nrego: |\n  package b\n")

	p, err := loadFile(filepath.Join(dir, "a.json"))
	require.NoError(t, err)
	assert.Equal(t, "json-policy", p.Name)
	assert.Equal(t, SeverityWarning, p.Severity)
	assert.True(t, p.Enabled, "manifests are enabled unless stated")

	p, err = loadFile(filepath.Join(dir, "b.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "yaml-policy", p.Name)
	assert.False(t, p.Enabled)
	assert.Equal(t, SeverityError, p.Severity)
	assert.Equal(t, []string{"capacity"}, p.Tags)
	assert.Equal(t, "package b\n", p.Rego)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"bad json", "x.json", "{", "failed to parse JSON policy"},
		{"bad yaml", "x.yaml", "name: [", "failed to parse YAML policy"},
		{"no name", "x.yml", "rego: package x\n", "has no name"},
		{"no rego", "y.json", `{"name":"y"}`, "has no rego code"},
		{"unsupported", "x.txt", "package x", "unsupported file type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			writeFile(t, path, tt.content)
			_, err := loadFile(path)
			assert.ErrorContains(t, err, tt.want)
		})
	}

	_, err := loadFile(filepath.Join(dir, "missing.rego"))
	assert.ErrorContains(t, err, "failed to read file")
}

func TestLoadFromPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.rego"), "package b\n")
	writeFile(t, filepath.Join(dir, "nested", "a.rego"), "package a\n")
	writeFile(t, filepath.Join(dir, "README.md"), "ignored")
	writeFile(t, filepath.Join(dir, "broken.json"), "{")

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	require.NoError(t, err)

	var names []string
	for _, p := range policies {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"b", "a"}, names, "lexical path order, broken files skipped")

	_, err = loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestEngineLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "audit.rego"), testRego)

	eng := newTestEngine(t)
	require.NoError(t, eng.LoadPolicies(context.Background(), []string{dir}))

	p, err := eng.GetPolicy("audit")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "audit.rego"), p.Source)

	plan, req := planFor("audit", "delete")
	res, err := eng.EvaluatePlan(context.Background(), plan, req)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.rego"), "package one\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 4)
	loader := NewLoader(zerolog.Nop())
	require.NoError(t, loader.Watch(ctx, []string{dir}, func(p []Policy) error {
		reloaded <- p
		return nil
	}))
	defer loader.StopWatching()

	writeFile(t, filepath.Join(dir, "two.rego"), "package two\n")

	select {
	case policies := <-reloaded:
		assert.Len(t, policies, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after a policy file was added")
	}
}

func TestWatchMissingPath(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	err := loader.Watch(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, func([]Policy) error { return nil })
	assert.Error(t, err)
}
