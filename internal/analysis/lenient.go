package analysis

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Models sometimes emit "yes" for a boolean or a layer name for a layer
// index. The UnmarshalJSON methods below accept those shapes so one odd
// value does not discard the whole response.

// UnmarshalJSON accepts layer as a number, a numeric string or a layer name.
func (c *Component) UnmarshalJSON(data []byte) error {
	type plain Component
	var aux struct {
		plain
		Layer json.RawMessage `json:"layer"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Component(aux.plain)
	c.Layer = looseLayer(aux.Layer)
	return nil
}

// UnmarshalJSON accepts auth as a bool, string or number.
func (e *APIEndpoint) UnmarshalJSON(data []byte) error {
	type plain APIEndpoint
	var aux struct {
		plain
		Auth json.RawMessage `json:"auth"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = APIEndpoint(aux.plain)
	e.Auth = looseBool(aux.Auth)
	return nil
}

// UnmarshalJSON accepts required as a bool, string or number.
func (v *EnvironmentVariable) UnmarshalJSON(data []byte) error {
	type plain EnvironmentVariable
	var aux struct {
		plain
		Required json.RawMessage `json:"required"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*v = EnvironmentVariable(aux.plain)
	v.Required = looseBool(aux.Required)
	return nil
}

var truthy = map[string]bool{
	"true": true, "yes": true, "y": true, "1": true, "required": true, "on": true,
}

// looseBool reads raw as a boolean. Anything unrecognized is false.
func looseBool(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return truthy[strings.ToLower(strings.TrimSpace(s))]
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return f != 0
	}
	return false
}

// layerNames maps the names models use for layers to their index.
var layerNames = map[string]int{
	"client": 0, "frontend": 0, "ui": 0, "presentation": 0,
	"gateway": 1, "api": 1, "server": 1, "backend": 1,
	"service": 2, "services": 2, "business": 2, "logic": 2, "worker": 2,
	"data": 3, "database": 3, "storage": 3, "persistence": 3, "cache": 3,
	"external": 4, "infrastructure": 4, "third-party": 4,
}

// looseLayer reads raw as a layer index. Unknown or negative values are nil.
func looseLayer(raw json.RawMessage) *int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return layerIndex(f)
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return nil
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return layerIndex(n)
	}
	if n, ok := layerNames[s]; ok {
		return &n
	}
	return nil
}

func layerIndex(f float64) *int {
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) || f > 100 {
		return nil
	}
	n := int(f)
	return &n
}
