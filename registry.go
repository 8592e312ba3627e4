package fieldcrypt

import "github.com/pocketledger/fieldcrypt/internal/schema"

// Schema types re-exported for callers building their own registry.
type (
	Registry  = schema.Registry
	Field     = schema.Field
	FieldType = schema.FieldType
)

const (
	FieldNumber = schema.Number
	FieldString = schema.String
)

// NewRegistry builds a registry from a model to fields table.
func NewRegistry(models map[string][]Field) *Registry {
	return schema.New(models)
}

// DefaultRegistry returns the built-in finance models.
func DefaultRegistry() *Registry {
	return schema.Default()
}

// ParseSchema builds a registry from a YAML schema document.
func ParseSchema(data []byte) (*Registry, error) {
	return schema.ParseYAML(data)
}
