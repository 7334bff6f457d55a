package modules

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// schemaFile is the on-disk shape of extra module schemas:
//
//	modules:
//	  - module_key: facilities_rooms
//	    label: Rooms
//	    fields:
//	      - {key: code, name: Code, type: string, required: true, max_length: 10}
type schemaFile struct {
	Modules []core.ModuleImportSchema `mapstructure:"modules"`
}

// LoadFile reads module schemas from a YAML, JSON, or TOML file.
// The format is chosen from the file extension.
func LoadFile(path string) ([]core.ModuleImportSchema, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read schema file %s: %w", path, err)
	}

	var f schemaFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode schema file %s: %w", path, err)
	}
	if len(f.Modules) == 0 {
		return nil, fmt.Errorf("schema file %s: no modules defined", path)
	}

	for _, m := range f.Modules {
		if err := core.ValidateSchema(m); err != nil {
			return nil, fmt.Errorf("schema file %s: %w", path, err)
		}
	}
	return f.Modules, nil
}

// RegisterFile loads path and registers every module in it. A file module
// may not reuse the key of a module that is already registered.
func RegisterFile(path string) (int, error) {
	schemas, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	for i, s := range schemas {
		if err := core.TryRegister(s); err != nil {
			return i, fmt.Errorf("schema file %s: %w", path, err)
		}
	}
	return len(schemas), nil
}
