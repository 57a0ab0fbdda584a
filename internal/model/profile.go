// Package model defines the core domain models used throughout the application.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Value is a single optional scalar supplied for a health profile field.
// It keeps the caller's text so numeric coercion can fail with the field name
// attached instead of failing inside the JSON decoder.
type Value struct {
	raw     string
	set     bool
	numeric bool
}

// Number returns a numeric value.
func Number(f float64) Value {
	return Value{raw: strconv.FormatFloat(f, 'f', -1, 64), set: true, numeric: true}
}

// Text returns a string value.
func Text(s string) Value {
	return Value{raw: s, set: true}
}

// Null returns an absent value.
func Null() Value {
	return Value{}
}

// IsSet reports whether the value was supplied and is not blank.
func (v Value) IsSet() bool {
	return v.set && strings.TrimSpace(v.raw) != ""
}

// IsNumeric reports whether the value arrived as a JSON number.
func (v Value) IsNumeric() bool {
	return v.numeric
}

// String returns the value trimmed of surrounding whitespace.
func (v Value) String() string {
	return strings.TrimSpace(v.raw)
}

// Float parses the value as a float64.
func (v Value) Float() (float64, error) {
	return strconv.ParseFloat(v.String(), 64)
}

// UnmarshalJSON accepts null, strings, numbers and booleans.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Text(strconv.FormatBool(b))
	case '{', '[':
		return fmt.Errorf("expected scalar, got %s", string(data[:1]))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Value{raw: n.String(), set: true, numeric: true}
	}
	return nil
}

// MarshalJSON writes the value back in its original JSON kind.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	if v.numeric {
		return []byte(v.raw), nil
	}
	return json.Marshal(v.raw)
}

// HealthProfile is the incoming request record: field name to optional value,
// plus an optional caller-supplied user identifier. Field names are whatever the
// caller sent; canonicalization happens in the feature aligner.
type HealthProfile struct {
	Fields map[string]Value
	UserID string
}

// userIDKeys are the accepted spellings of the user identifier.
var userIDKeys = map[string]bool{
	"userid":  true,
	"user_id": true,
}

// NewHealthProfile returns an empty profile.
func NewHealthProfile() *HealthProfile {
	return &HealthProfile{Fields: make(map[string]Value)}
}

// Set assigns a field value and returns the profile for chaining.
func (p *HealthProfile) Set(name string, v Value) *HealthProfile {
	if p.Fields == nil {
		p.Fields = make(map[string]Value)
	}
	p.Fields[name] = v
	return p
}

// Get returns the value supplied under exactly this name.
func (p *HealthProfile) Get(name string) (Value, bool) {
	v, ok := p.Fields[name]
	return v, ok
}

// Names returns the supplied field names in sorted order.
func (p *HealthProfile) Names() []string {
	names := make([]string, 0, len(p.Fields))
	for name := range p.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnmarshalJSON decodes a flat JSON object into a profile.
func (p *HealthProfile) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fields := make(map[string]Value, len(raw))
	userID := ""
	for key, msg := range raw {
		var v Value
		if err := json.Unmarshal(msg, &v); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		if userIDKeys[strings.ToLower(key)] {
			userID = v.String()
			continue
		}
		fields[key] = v
	}

	p.Fields = fields
	p.UserID = userID
	return nil
}

// MarshalJSON encodes the profile as a flat JSON object.
func (p HealthProfile) MarshalJSON() ([]byte, error) {
	out := make(map[string]Value, len(p.Fields)+1)
	for k, v := range p.Fields {
		out[k] = v
	}
	if p.UserID != "" {
		out["userId"] = Text(p.UserID)
	}
	return json.Marshal(out)
}
