package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hengadev/errsx"
	"github.com/pocketledger/fieldcrypt/internal/config"
	"gopkg.in/yaml.v3"
)

// ErrInvalidSchema is returned for schema documents that fail validation.
var ErrInvalidSchema = errors.New("invalid schema")

// document is the on-disk layout:
//
//	version: 1
//	models:
//	  Transaction:
//	    - name: value
//	      type: number
type document struct {
	Version int                    `yaml:"version" validate:"eq=1"`
	Models  map[string][]fileField `yaml:"models" validate:"required,min=1,dive,keys,min=1,endkeys,required,min=1,dive"`
}

type fileField struct {
	Name string `yaml:"name" validate:"required"`
	Type string `yaml:"type" validate:"required,oneof=number string"`
}

// ParseYAML builds a registry from a YAML schema document.
func ParseYAML(data []byte) (*Registry, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidSchema)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	if err := config.ValidateStruct(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	var errs errsx.Map
	models := make(map[string][]Field, len(doc.Models))
	for model, fields := range doc.Models {
		seen := make(map[string]struct{}, len(fields))
		out := make([]Field, 0, len(fields))
		for _, f := range fields {
			if _, dup := seen[f.Name]; dup {
				errs.Set(model+"."+f.Name, errors.New("duplicate field"))
				continue
			}
			seen[f.Name] = struct{}{}
			out = append(out, Field{Name: f.Name, Type: FieldType(f.Type)})
		}
		models[model] = out
	}
	if !errs.IsEmpty() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, errs.AsError())
	}

	return New(models), nil
}

// LoadFile reads and parses a YAML schema file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	r, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	return r, nil
}

// MarshalYAML renders the registry as a schema document.
func (r *Registry) MarshalYAML() (any, error) {
	doc := document{Version: 1, Models: make(map[string][]fileField, len(r.fields))}
	for model, fields := range r.fields {
		out := make([]fileField, len(fields))
		for i, f := range fields {
			out[i] = fileField{Name: f.Name, Type: string(f.Type)}
		}
		doc.Models[model] = out
	}
	return doc, nil
}
