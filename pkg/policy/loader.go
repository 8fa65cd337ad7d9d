package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// reloadDelay debounces bursts of file events into one reload.
const reloadDelay = 300 * time.Millisecond

// Loader reads policies from .rego files and from .json or .yaml policy
// manifests that embed Rego code.
type Loader struct {
	logger zerolog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
	}
}

// LoadFromPaths loads policies from a list of file or directory paths.
// Directories are walked recursively in lexical order.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var all []Policy
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		policies, err := l.loadFromPath(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		all = append(all, policies...)
	}

	l.logger.Debug().
		Int("total", len(all)).
		Int("sources", len(paths)).
		Msg("Policies loaded from paths")

	return all, nil
}

func (l *Loader) loadFromPath(path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		p, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		return []Policy{*p}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isPolicyFile(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	sort.Strings(files)

	policies := make([]Policy, 0, len(files))
	for _, f := range files {
		p, err := loadFile(f)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", f).Msg("Skipping policy file")
			continue
		}
		policies = append(policies, *p)
	}
	return policies, nil
}

func isPolicyFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".rego", ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// loadFile reads one policy file.
func loadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var p Policy
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".rego":
		p = Policy{
			Name:        strings.TrimSuffix(filepath.Base(path), ext),
			Description: leadingComment(string(data)),
			Rego:        string(data),
			Severity:    SeverityError,
			Enabled:     true,
		}
	case ".json":
		p.Enabled = true
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
		}
	case ".yaml", ".yml":
		var doc struct {
			Name        string   `yaml:"name"`
			Description string   `yaml:"description"`
			Rego        string   `yaml:"rego"`
			Severity    Severity `yaml:"severity"`
			Enabled     *bool    `yaml:"enabled"`
			Tags        []string `yaml:"tags"`
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML policy: %w", err)
		}
		p = Policy{
			Name:        doc.Name,
			Description: doc.Description,
			Rego:        doc.Rego,
			Severity:    doc.Severity,
			Enabled:     doc.Enabled == nil || *doc.Enabled,
			Tags:        doc.Tags,
		}
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}

	if p.Name == "" {
		return nil, fmt.Errorf("policy in %s has no name", path)
	}
	if p.Rego == "" {
		return nil, fmt.Errorf("policy %s has no rego code", p.Name)
	}
	if p.Severity == "" {
		p.Severity = SeverityError
	}
	p.Source = path
	return &p, nil
}

// leadingComment returns the comment block at the top of a Rego file.
func leadingComment(content string) string {
	var parts []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if trimmed == "" && len(parts) == 0 {
				continue
			}
			break
		}
		if c := strings.TrimSpace(strings.TrimPrefix(trimmed, "#")); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}

// Watch watches paths and calls reloadFn with the freshly loaded policies
// after they change. It returns once the watcher is installed; watching
// stops when ctx is done.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if !info.IsDir() {
			// editors replace files; watching the parent catches renames
			path = filepath.Dir(path)
		}
		if err := addTree(watcher, path); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go l.processEvents(ctx, watcher, paths, reloadFn)

	l.logger.Info().Int("paths", len(paths)).Msg("Watching policy paths")
	return nil
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func (l *Loader) processEvents(ctx context.Context, w *fsnotify.Watcher, paths []string, reloadFn func([]Policy) error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		_ = w.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !isPolicyFile(event.Name) || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			l.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Policy file changed")

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, func() {
				if err := l.reload(ctx, paths, reloadFn); err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload policies")
				}
			})

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (l *Loader) reload(ctx context.Context, paths []string, reloadFn func([]Policy) error) error {
	policies, err := l.LoadFromPaths(ctx, paths)
	if err != nil {
		return err
	}
	if err := reloadFn(policies); err != nil {
		return fmt.Errorf("failed to apply reloaded policies: %w", err)
	}
	l.logger.Info().Int("count", len(policies)).Msg("Policies reloaded")
	return nil
}

// StopWatching stops watching for file changes.
func (l *Loader) StopWatching() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	l.watcher = nil
	return err
}
