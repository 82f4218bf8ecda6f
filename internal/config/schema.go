// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
)

// SchemaJSON returns the JSON schema of the config file, reflected from
// Config.
func SchemaJSON() string {
	return configSchema()
}

// ExampleConfigJSON returns a commented example config that LoadConfig
// accepts.
func ExampleConfigJSON() string {
	return exampleConfigJSON
}

var configSchema = sync.OnceValue(func() string {
	reflector := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	schema := reflector.Reflect(&Config{})
	schema.Title = "agenttools config"
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("config schema: %v", err))
	}
	return string(data)
})

// normalizeConfigJSON upgrades legacy keys and type-checks every field
// against Config before the strict decode.
func normalizeConfigJSON(data []byte) ([]byte, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	migrateLegacyConfig(raw)
	if err := checkObject(raw, reflect.TypeFor[Config](), ""); err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

// legacyKeys maps keys accepted by earlier releases to their current name.
// The current key wins when both are present.
var legacyKeys = map[string]string{
	"tool_rate_limits":    "rate_limits",
	"tool_output_filters": "output_filters",
	"root":                "sandbox_root",
}

func migrateLegacyConfig(raw map[string]interface{}) {
	for legacy, current := range legacyKeys {
		value, ok := raw[legacy]
		if !ok {
			continue
		}
		if _, exists := raw[current]; !exists {
			raw[current] = value
		}
		delete(raw, legacy)
	}
}

// jsonFields indexes the exported fields of a struct type by json name.
func jsonFields(t reflect.Type) map[string]reflect.Type {
	fields := make(map[string]reflect.Type, t.NumField())
	for i := range t.NumField() {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		fields[name] = field.Type
	}
	return fields
}

// checkObject rejects unknown keys and values whose JSON type cannot decode
// into the matching field. Keys are visited in order so the first error is
// stable.
func checkObject(raw map[string]interface{}, t reflect.Type, prefix string) error {
	fields := jsonFields(t)
	for _, key := range sortedKeys(raw) {
		fieldType, ok := fields[key]
		if !ok {
			return fmt.Errorf("unknown configuration field %q", prefix+key)
		}
		if err := checkValue(raw[key], fieldType, prefix+key); err != nil {
			return err
		}
	}
	return nil
}

func checkValue(value interface{}, t reflect.Type, name string) error {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%s must be a string", name)
		}
	case reflect.Bool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s must be a boolean", name)
		}
	case reflect.Int, reflect.Int64:
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("%s must be a number", name)
		}
	case reflect.Slice:
		list, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("%s must be an array of strings", name)
		}
		for _, item := range list {
			if _, ok := item.(string); !ok {
				return fmt.Errorf("%s must be an array of strings", name)
			}
		}
	case reflect.Map:
		entries, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%s must be an object of number values", name)
		}
		for _, key := range sortedKeys(entries) {
			if _, ok := entries[key].(float64); !ok {
				return fmt.Errorf("%s.%s must be a number", name, key)
			}
		}
	case reflect.Struct:
		section, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%s must be an object", name)
		}
		return checkObject(section, t, name+".")
	}
	return nil
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

const exampleConfigJSON = `{
  // Directory every tool is confined to.
  "sandbox_root": ".",
  "security_level": "moderate",
  "resource_limits": {
    "max_file_size_bytes": 10485760
  },
  "disabled_tools": ["rm"],
  "shell": {
    "type": "bash",
    "timeout_seconds": 30
  },
  "rate_limits": {
    "default_per_minute": 120,
    "cooldown_seconds": { "shell": 1 }
  },
  "output_filters": {
    "max_chars": 16000,
    "strip_ansi": true,
    "strip_control": true
  }
}`
