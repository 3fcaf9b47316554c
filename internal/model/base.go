package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// JSONMap represents a generic JSON object
type JSONMap map[string]interface{}

// Value stores the map as JSON text so both jsonb and TEXT columns accept it.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json map: %w", err)
	}
	return string(b), nil
}

// Scan decodes a JSON column into the map
func (m *JSONMap) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json map source %T", src)
	}

	out := JSONMap{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("failed to unmarshal json map: %w", err)
		}
	}
	*m = out
	return nil
}

// Clone returns a shallow copy. A nil map clones to an empty one.
func (m JSONMap) Clone() JSONMap {
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String returns the value at key as a trimmed string, or "" when absent.
// Numbers are formatted so that numeric ids from source rows still resolve.
func (m JSONMap) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// FirstString returns the first non-empty string among keys.
func (m JSONMap) FirstString(keys ...string) string {
	for _, k := range keys {
		if s := m.String(k); s != "" {
			return s
		}
	}
	return ""
}

// Truthy follows the loose truthiness the widget used for flags such as seen.
func (m JSONMap) Truthy(key string) bool {
	switch v := m[key].(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != "" && v != "false" && v != "0"
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return true
	}
}

// Map returns the nested object at key, or an empty map.
func (m JSONMap) Map(key string) JSONMap {
	switch v := m[key].(type) {
	case JSONMap:
		return v
	case map[string]interface{}:
		return JSONMap(v)
	default:
		return JSONMap{}
	}
}
