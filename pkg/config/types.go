package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/partsync/pkg/engine"
)

// Format identifies the encoding of a request file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatCUE  Format = "cue"
)

// RequestFile is a document holding one or more partition requests.
type RequestFile struct {
	// CPCName is the default CPC for partitions that do not name one.
	CPCName string `json:"cpc_name,omitempty"`

	// CheckMode is the default check mode for all partitions.
	CheckMode bool `json:"check_mode,omitempty"`

	// Settings tune the reconciler and the policy gate.
	Settings Settings `json:"settings"`

	// Partitions are reconciled in file order.
	Partitions []PartitionRequest `json:"partitions" validate:"required,min=1,dive"`

	// Source is the file the document was loaded from.
	Source string `json:"-"`
}

// PartitionRequest is the desired state of one partition.
type PartitionRequest struct {
	CPCName              string                 `json:"cpc_name,omitempty" validate:"required"`
	Name                 string                 `json:"name" validate:"required"`
	State                string                 `json:"state" validate:"required,oneof=absent stopped active facts"`
	Properties           map[string]interface{} `json:"properties,omitempty"`
	ExpandDependents     bool                   `json:"expand_dependents,omitempty"`
	ExpandStorageGroups  bool                   `json:"expand_storage_groups,omitempty"`
	ExpandCryptoAdapters bool                   `json:"expand_crypto_adapters,omitempty"`

	// CheckMode overrides the file level default when set.
	CheckMode *bool `json:"check_mode,omitempty"`
}

// Settings holds the tunables a request file may carry.
type Settings struct {
	// PollInterval is the status poll interval after start and stop.
	PollInterval Duration `json:"poll_interval,omitempty" validate:"gte=0"`

	// WaitTimeout bounds each wait for a target status.
	WaitTimeout Duration `json:"wait_timeout,omitempty" validate:"gte=0"`

	// PolicyPaths are extra policy files or directories.
	PolicyPaths []string `json:"policy_paths,omitempty"`

	// ProtectedPrefixes are partition name prefixes that must not be deleted.
	ProtectedPrefixes []string `json:"protected_prefixes,omitempty"`

	// MaxMemoryMB caps maximum-memory in create and update payloads.
	MaxMemoryMB int `json:"max_memory_mb,omitempty" validate:"gte=0"`
}

// Requests converts the document into engine requests, applying the file
// level defaults.
func (f *RequestFile) Requests() []*engine.Request {
	reqs := make([]*engine.Request, 0, len(f.Partitions))
	for i := range f.Partitions {
		p := &f.Partitions[i]
		cpc := p.CPCName
		if cpc == "" {
			cpc = f.CPCName
		}
		check := f.CheckMode
		if p.CheckMode != nil {
			check = *p.CheckMode
		}
		reqs = append(reqs, &engine.Request{
			CPCName:              cpc,
			Name:                 p.Name,
			State:                engine.DesiredState(p.State),
			Properties:           p.Properties,
			ExpandDependents:     p.ExpandDependents,
			ExpandStorageGroups:  p.ExpandStorageGroups,
			ExpandCryptoAdapters: p.ExpandCryptoAdapters,
			CheckMode:            check,
		})
	}
	return reqs
}

// Duration is a time.Duration read from a Go duration string or a number
// of seconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "1.5s" style strings and plain seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(val * float64(time.Second))
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// ValidationError is one problem found in a request file.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line and Column locate the problem when the decoder reports it.
	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`

	// Path is the field path, e.g. "partitions.0.state".
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors collects every problem of a request file.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}
