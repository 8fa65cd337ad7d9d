package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/partsync/pkg/engine"
)

// Parser decodes and validates request files.
type Parser struct {
	schema   *Schema
	validate *validator.Validate
}

// NewParser creates a parser with the built-in request schema.
func NewParser() (*Parser, error) {
	schema, err := NewSchema()
	if err != nil {
		return nil, err
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Parser{schema: schema, validate: v}, nil
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	case ".cue":
		return FormatCUE, nil
	}
	return "", fmt.Errorf("unsupported request file %s: expected .yaml, .yml, .json, .toml or .cue", path)
}

// Load reads a request file. Problems with the content are reported as a
// ParameterError.
func (p *Parser) Load(path string) (*RequestFile, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, engine.NewParameterError("%v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}
	f, err := p.Parse(path, data, format)
	if err != nil {
		return nil, engine.NewParameterError("invalid request file %s", path).WithCause(err)
	}
	return f, nil
}

// Parse decodes data in the given format. file is used for error positions.
func (p *Parser) Parse(file string, data []byte, format Format) (*RequestFile, error) {
	var (
		doc interface{}
		err error
	)
	switch format {
	case FormatCUE:
		doc, err = p.schema.EvaluateCUE(file, data)
		if err != nil {
			return nil, err
		}
	default:
		doc, err = decode(data, format)
		if err != nil {
			return nil, ValidationErrors{{File: file, Message: err.Error()}}
		}
		if err := p.schema.ValidateDocument(file, doc); err != nil {
			return nil, err
		}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize request file: %w", err)
	}
	var f RequestFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, ValidationErrors{{File: file, Message: err.Error()}}
	}
	f.Source = file

	f.applyDefaults()
	if err := p.Validate(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// decode turns YAML, JSON or TOML into generic maps and slices.
func decode(data []byte, format Format) (interface{}, error) {
	var doc map[string]interface{}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	if doc == nil {
		return nil, errors.New("request file is empty")
	}
	return doc, nil
}

func (f *RequestFile) applyDefaults() {
	for i := range f.Partitions {
		if f.Partitions[i].CPCName == "" {
			f.Partitions[i].CPCName = f.CPCName
		}
	}
}

// Validate checks a request file with struct tags and rejects duplicate
// partitions.
func (p *Parser) Validate(f *RequestFile) error {
	var out ValidationErrors

	if err := p.validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			out = append(out, ValidationError{
				File:    f.Source,
				Path:    fieldPath(fe.Namespace()),
				Message: describe(fe),
			})
		}
	}

	seen := make(map[string]int, len(f.Partitions))
	for i, part := range f.Partitions {
		key := part.CPCName + "/" + part.Name
		if first, dup := seen[key]; dup {
			out = append(out, ValidationError{
				File:    f.Source,
				Path:    fmt.Sprintf("partitions.%d", i),
				Message: fmt.Sprintf("partition %s is already requested by partitions.%d", key, first),
			})
			continue
		}
		seen[key] = i
	}

	if len(out) > 0 {
		return out
	}
	return nil
}

// fieldPath turns "RequestFile.partitions[0].state" into "partitions.0.state".
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	ns = strings.ReplaceAll(ns, "[", ".")
	return strings.ReplaceAll(ns, "]", "")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}
