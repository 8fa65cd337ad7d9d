package commands

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the watcher goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// startWatcher runs a watcher on file until the returned stop function is
// called. stop fails the test unless the watcher returns nil.
func startWatcher(t *testing.T, file string, resync time.Duration) (*syncBuffer, func()) {
	t.Helper()
	dir := t.TempDir()
	inv := writeFile(t, dir, "inventory.yaml", testInventory)

	ctx, cancel := context.WithCancel(context.Background())
	a, err := newApp(ctx, &options{inventory: inv, logLevel: "error"})
	require.NoError(t, err)

	out := &syncBuffer{}
	w := &fileWatcher{app: a, out: out, resync: resync, keepGoing: true}
	done := make(chan error, 1)
	go func() { done <- w.run(ctx, file) }()

	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop after cancel")
		}
		_ = a.Close(context.Background())
	}
	t.Cleanup(stop)
	return out, stop
}

func TestWatchReconcilesOnStartAndChange(t *testing.T) {
	dir := t.TempDir()
	req := writeFile(t, dir, "api.yaml", `
cpc_name: CPC1
partitions:
  - name: api
    state: stopped
    properties:
      ifl_processors: 2
      initial_memory: 1024
      maximum_memory: 2048
`)

	out, stop := startWatcher(t, req, time.Hour)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "CPC1/api: changed (create)")
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(req, []byte(`
cpc_name: CPC1
partitions:
  - name: api
    state: active
    properties:
      ifl_processors: 2
      initial_memory: 1024
      maximum_memory: 2048
`), 0o600))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "CPC1/api: changed (start)")
	}, 5*time.Second, 20*time.Millisecond)

	stop()
	assert.Equal(t, 1, strings.Count(out.String(), "CPC1/api: changed (create)"))
}

func TestWatchResyncsWithoutChanges(t *testing.T) {
	dir := t.TempDir()
	req := writeFile(t, dir, "web.yaml", "cpc_name: CPC1\npartitions:\n  - name: web\n    state: active\n")

	out, stop := startWatcher(t, req, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "CPC1/web: ok") >= 3
	}, 5*time.Second, 20*time.Millisecond)
	stop()
}

func TestWatchRetriesFailedPasses(t *testing.T) {
	dir := t.TempDir()
	req := writeFile(t, dir, "drop.yaml", "cpc_name: CPC1\npartitions:\n  - name: prod-db\n    state: absent\n")

	out, stop := startWatcher(t, req, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "CPC1/prod-db: failed") >= 2
	}, 5*time.Second, 20*time.Millisecond)
	stop()
	assert.Contains(t, out.String(), "partition prod-db is protected")
}

func TestWatchRecoversFromInvalidFile(t *testing.T) {
	dir := t.TempDir()
	req := writeFile(t, dir, "web.yaml", "cpc_name: CPC1\npartitions: [\n")

	out, stop := startWatcher(t, req, time.Hour)

	// Nothing is reconciled while the file cannot be parsed.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, out.String())

	require.NoError(t, os.WriteFile(req, []byte("cpc_name: CPC1\npartitions:\n  - name: web\n    state: active\n"), 0o600))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "CPC1/web: ok")
	}, 5*time.Second, 20*time.Millisecond)
	stop()
}

func TestWatchStopsWhileRetrying(t *testing.T) {
	dir := t.TempDir()
	req := writeFile(t, dir, "web.yaml", "cpc_name: CPC1\npartitions: [\n")

	_, stop := startWatcher(t, req, time.Hour)
	time.Sleep(50 * time.Millisecond)
	stop()
}
