// Package schema holds the registry of encrypted fields per record model.
package schema

import (
	"sort"
)

// FieldType is the scalar type a field decrypts to.
type FieldType string

const (
	Number FieldType = "number"
	String FieldType = "string"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	return t == Number || t == String
}

// Field describes one encrypted field of a model.
type Field struct {
	Name string
	Type FieldType
}

// Registry maps model names to their encrypted fields. A Registry is never
// mutated after construction and is safe for concurrent use.
type Registry struct {
	fields map[string][]Field
	index  map[string]map[string]FieldType
}

// New builds a registry from a model -> fields table. The table is copied.
func New(models map[string][]Field) *Registry {
	r := &Registry{
		fields: make(map[string][]Field, len(models)),
		index:  make(map[string]map[string]FieldType, len(models)),
	}
	for model, fields := range models {
		copied := make([]Field, len(fields))
		copy(copied, fields)
		r.fields[model] = copied

		byName := make(map[string]FieldType, len(fields))
		for _, f := range fields {
			byName[f.Name] = f.Type
		}
		r.index[model] = byName
	}
	return r
}

// Fields returns the encrypted fields declared for model. Unknown models
// have no encrypted fields.
func (r *Registry) Fields(model string) []Field {
	fields := r.fields[model]
	if len(fields) == 0 {
		return []Field{}
	}
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// IsEncrypted reports whether field is encrypted on model.
func (r *Registry) IsEncrypted(model, field string) bool {
	_, ok := r.index[model][field]
	return ok
}

// FieldType returns the declared type of an encrypted field.
func (r *Registry) FieldType(model, field string) (FieldType, bool) {
	t, ok := r.index[model][field]
	return t, ok
}

// Models returns the registered model names in sorted order.
func (r *Registry) Models() []string {
	models := make([]string, 0, len(r.fields))
	for m := range r.fields {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}
