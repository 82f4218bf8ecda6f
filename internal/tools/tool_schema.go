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

package tools

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"sync"

	"github.com/567-labs/instructor-go/pkg/instructor"
)

// schemaCache memoizes argument schemas by type.
var schemaCache sync.Map

// mustSchemaParametersFor returns the JSON schema object describing T. It
// panics when T cannot be reflected into a schema, which is a programming
// error in the argument struct.
func mustSchemaParametersFor[T any]() map[string]interface{} {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := schemaCache.Load(t); ok {
		return maps.Clone(cached.(map[string]interface{}))
	}
	params, err := argumentSchema(t)
	if err != nil {
		panic(fmt.Sprintf("schema for %s: %v", t, err))
	}
	actual, _ := schemaCache.LoadOrStore(t, params)
	return maps.Clone(actual.(map[string]interface{}))
}

func argumentSchema(t reflect.Type) (map[string]interface{}, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("argument type must be a struct, got %s", t.Kind())
	}
	schema, err := instructor.NewSchema(t)
	if err != nil {
		return nil, err
	}

	for _, fn := range schema.Functions {
		if fn.Name != t.Name() {
			continue
		}
		raw, err := json.Marshal(fn.Parameters)
		if err != nil {
			return nil, err
		}
		var params map[string]interface{}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, err
		}
		if _, ok := params["type"]; !ok {
			params["type"] = "object"
		}
		if _, ok := params["properties"]; !ok {
			params["properties"] = map[string]interface{}{}
		}
		return params, nil
	}

	return nil, fmt.Errorf("schema definition %q not found", t.Name())
}
