package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	registry   = make(map[string]ModuleImportSchema)
	registryMu sync.RWMutex
)

// Register adds a module schema to the registry.
// Panics if the schema is malformed or its key is already registered.
func Register(schema ModuleImportSchema) {
	if err := ValidateSchema(schema); err != nil {
		panic(err.Error())
	}
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[schema.ModuleKey]; exists {
		panic(fmt.Sprintf("module already registered: %s", schema.ModuleKey))
	}
	registry[schema.ModuleKey] = cloneSchema(schema)
}

// TryRegister is Register for schemas loaded at runtime: it returns an error
// instead of panicking.
func TryRegister(schema ModuleImportSchema) error {
	if err := ValidateSchema(schema); err != nil {
		return err
	}
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[schema.ModuleKey]; exists {
		return fmt.Errorf("module already registered: %s", schema.ModuleKey)
	}
	registry[schema.ModuleKey] = cloneSchema(schema)
	return nil
}

// GetFields returns the schema registered for moduleKey.
// Returns ErrUnknownModule (wrapped) if no schema exists.
func GetFields(moduleKey string) (ModuleImportSchema, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	schema, ok := registry[moduleKey]
	if !ok {
		return ModuleImportSchema{}, fmt.Errorf("%w: %q", ErrUnknownModule, moduleKey)
	}
	return cloneSchema(schema), nil
}

// All returns every registered schema sorted by module key.
func All() []ModuleImportSchema {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]ModuleImportSchema, 0, len(registry))
	for _, s := range registry {
		result = append(result, cloneSchema(s))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ModuleKey < result[j].ModuleKey
	})
	return result
}

// ModuleCount returns the number of registered modules.
func ModuleCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered modules.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]ModuleImportSchema)
}

// ValidateSchema checks that a schema is usable for templates and validation.
func ValidateSchema(schema ModuleImportSchema) error {
	if strings.TrimSpace(schema.ModuleKey) == "" {
		return fmt.Errorf("schema: module key is empty")
	}
	if len(schema.Fields) == 0 {
		return fmt.Errorf("schema %s: no fields", schema.ModuleKey)
	}

	keys := make(map[string]bool, len(schema.Fields))
	names := make(map[string]bool, len(schema.Fields))
	for i, f := range schema.Fields {
		if f.Key == "" || f.Name == "" {
			return fmt.Errorf("schema %s: field %d needs key and name", schema.ModuleKey, i)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("schema %s: field %s has unsupported type %q", schema.ModuleKey, f.Key, f.Type)
		}
		if f.Type == FieldEnum && len(f.EnumValues) == 0 {
			return fmt.Errorf("schema %s: enum field %s has no values", schema.ModuleKey, f.Key)
		}
		if f.MaxLength != nil && *f.MaxLength <= 0 {
			return fmt.Errorf("schema %s: field %s max length must be positive", schema.ModuleKey, f.Key)
		}
		if keys[f.Key] {
			return fmt.Errorf("schema %s: duplicate field key %s", schema.ModuleKey, f.Key)
		}
		lower := strings.ToLower(f.Name)
		if names[lower] {
			return fmt.Errorf("schema %s: duplicate field name %s", schema.ModuleKey, f.Name)
		}
		keys[f.Key] = true
		names[lower] = true
	}
	return nil
}

func cloneSchema(s ModuleImportSchema) ModuleImportSchema {
	out := s
	out.Fields = make([]FieldInfo, len(s.Fields))
	for i, f := range s.Fields {
		if f.MaxLength != nil {
			n := *f.MaxLength
			f.MaxLength = &n
		}
		if f.EnumValues != nil {
			f.EnumValues = append([]string(nil), f.EnumValues...)
		}
		out.Fields[i] = f
	}
	return out
}

// IntPtr is a helper for FieldInfo.MaxLength literals.
func IntPtr(n int) *int { return &n }
