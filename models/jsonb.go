package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB wraps json.RawMessage with Scanner/Valuer for jsonb columns.
// Empty values are stored as an empty object.
type JSONB json.RawMessage

// NewJSONB marshals v; maps with unmarshalable values degrade to "{}".
func NewJSONB(v any) JSONB {
	if v == nil {
		return JSONB("{}")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return JSONB("{}")
	}
	return JSONB(b)
}

func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	return string(j), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = JSONB("{}")
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = JSONB(v)
	default:
		return fmt.Errorf("unsupported type: %T", value)
	}
	return nil
}

func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("{}"), nil
	}
	return json.RawMessage(j).MarshalJSON()
}

func (j *JSONB) UnmarshalJSON(data []byte) error {
	if j == nil {
		return fmt.Errorf("JSONB: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// Map decodes the value into a generic map; invalid payloads yield an empty map.
func (j JSONB) Map() map[string]any {
	out := map[string]any{}
	if len(j) == 0 {
		return out
	}
	_ = json.Unmarshal(j, &out)
	return out
}
