package config

import (
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// requestSchema constrains request files of every format.
const requestSchema = `
#Partition: {
	cpc_name?:               string & !=""
	name:                    string & !=""
	state:                   "absent" | "stopped" | "active" | "facts"
	properties?:             {[string]: _}
	expand_dependents?:      bool
	expand_storage_groups?:  bool
	expand_crypto_adapters?: bool
	check_mode?:             bool
}

#Settings: {
	poll_interval?:      string | number
	wait_timeout?:       string | number
	policy_paths?:       [...string]
	protected_prefixes?: [...string]
	max_memory_mb?:      number & >=0
}

#RequestFile: {
	cpc_name?:   string
	check_mode?: bool
	settings?:   #Settings
	partitions: [#Partition, ...#Partition]
}
`

// Schema checks request documents against the built-in CUE definitions.
// A cue.Context is not safe for concurrent use, so calls are serialized.
type Schema struct {
	mu   sync.Mutex
	ctx  *cue.Context
	root cue.Value
}

// NewSchema compiles the built-in request schema.
func NewSchema() (*Schema, error) {
	ctx := cuecontext.New()
	val := ctx.CompileString(requestSchema, cue.Filename("request.cue"))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile request schema: %w", err)
	}
	root := val.LookupPath(cue.ParsePath("#RequestFile"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("failed to look up request schema: %w", err)
	}
	return &Schema{ctx: ctx, root: root}, nil
}

// ValidateDocument checks a decoded document.
func (s *Schema) ValidateDocument(file string, doc interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	val := s.ctx.Encode(doc)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	return s.check(file, val.Unify(s.root))
}

// EvaluateCUE compiles CUE source, unifies it with the schema and returns
// the concrete document.
func (s *Schema) EvaluateCUE(file string, src []byte) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	val := s.ctx.CompileBytes(src, cue.Filename(file))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(file, err)
	}
	unified := val.Unify(s.root)
	if err := s.check(file, unified); err != nil {
		return nil, err
	}

	var doc interface{}
	if err := unified.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", file, err)
	}
	return doc, nil
}

func (s *Schema) check(file string, v cue.Value) error {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(file, err)
	}
	return nil
}

// convertCUEErrors flattens a CUE error list into ValidationErrors.
func convertCUEErrors(file string, err error) ValidationErrors {
	var out ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		path := e.Path()
		if len(path) > 0 && strings.HasPrefix(path[0], "#") {
			path = path[1:]
		}
		ve := ValidationError{
			File:    file,
			Path:    strings.Join(path, "."),
			Message: fmt.Sprintf(format, args...),
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 && pos[0].Filename() == file {
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{File: file, Message: err.Error()})
	}
	return out
}
