package models

import (
	"encoding/json"
	"fmt"
)

// ValueKind enumerates the closed set of shapes a preference value can take
type ValueKind string

const (
	ValueKindString ValueKind = "string"
	ValueKindBool   ValueKind = "bool"
	ValueKindNumber ValueKind = "number"
	ValueKindObject ValueKind = "object"
)

// PreferenceValue is a tagged variant over the small set of value kinds.
// Exactly one payload field is meaningful, selected by Kind.
type PreferenceValue struct {
	Kind   ValueKind         `json:"kind" bson:"kind"`
	Str    string            `json:"str,omitempty" bson:"str,omitempty"`
	Bool   bool              `json:"bool,omitempty" bson:"bool,omitempty"`
	Number float64           `json:"number,omitempty" bson:"number,omitempty"`
	Object map[string]string `json:"object,omitempty" bson:"object,omitempty"`
}

// StringValue builds a string-kind preference value
func StringValue(s string) PreferenceValue {
	return PreferenceValue{Kind: ValueKindString, Str: s}
}

// BoolValue builds a bool-kind preference value
func BoolValue(b bool) PreferenceValue {
	return PreferenceValue{Kind: ValueKindBool, Bool: b}
}

// NumberValue builds a number-kind preference value
func NumberValue(n float64) PreferenceValue {
	return PreferenceValue{Kind: ValueKindNumber, Number: n}
}

// ObjectValue builds an object-kind preference value
func ObjectValue(m map[string]string) PreferenceValue {
	return PreferenceValue{Kind: ValueKindObject, Object: m}
}

// Equal reports whether two values have the same kind and payload
func (v PreferenceValue) Equal(o PreferenceValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ValueKindString:
		return v.Str == o.Str
	case ValueKindBool:
		return v.Bool == o.Bool
	case ValueKindNumber:
		return v.Number == o.Number
	case ValueKindObject:
		if len(v.Object) != len(o.Object) {
			return false
		}
		for k, val := range v.Object {
			if o.Object[k] != val {
				return false
			}
		}
		return true
	}
	return false
}

// IsString reports whether the value is the given string
func (v PreferenceValue) IsString(s string) bool {
	return v.Kind == ValueKindString && v.Str == s
}

// Validate checks the kind tag
func (v PreferenceValue) Validate() error {
	switch v.Kind {
	case ValueKindString, ValueKindBool, ValueKindNumber, ValueKindObject:
		return nil
	}
	return fmt.Errorf("unknown preference value kind: %q", v.Kind)
}

// EncodeValue serializes a value for the preference_value JSON column
func EncodeValue(v PreferenceValue) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// DecodeValue parses a preference_value column back into a tagged value
func DecodeValue(data []byte) (PreferenceValue, error) {
	var v PreferenceValue
	if err := json.Unmarshal(data, &v); err != nil {
		return PreferenceValue{}, fmt.Errorf("failed to decode preference value: %w", err)
	}
	if err := v.Validate(); err != nil {
		return PreferenceValue{}, err
	}
	return v, nil
}
