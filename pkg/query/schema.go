// ABOUTME: Collection schema used to check field names and literal values
// ABOUTME: FieldKind classifies values; Any disables the check

package query

import (
	"math"
	"reflect"
	"regexp"
)

// FieldKind is the value class a schema field accepts.
type FieldKind int

const (
	KindAny FieldKind = iota
	KindString
	KindInt
	KindNumber
	KindBool
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	default:
		return "any"
	}
}

// Schema maps field names to their kinds. A nil Schema means the fields are
// unknown and only structural checks apply.
type Schema map[string]FieldKind

// Lookup returns the kind of a field. Unknown schemas report every field as
// KindAny.
func (s Schema) Lookup(field string) (FieldKind, bool) {
	if s == nil {
		return KindAny, true
	}
	k, ok := s[field]
	return k, ok
}

// Clone returns a copy of the schema.
func (s Schema) Clone() Schema {
	if s == nil {
		return nil
	}
	out := make(Schema, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Field names are inlined into SQL JSON paths and index expressions.
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidFieldName reports whether name can be used as a document field.
func ValidFieldName(name string) bool {
	return fieldNamePattern.MatchString(name)
}

func (s Schema) requireField(field string) (FieldKind, error) {
	if !ValidFieldName(field) {
		return KindAny, invalidf("invalid field name %q", field)
	}
	k, ok := s.Lookup(field)
	if !ok {
		return KindAny, invalidf("unknown field %q", field)
	}
	return k, nil
}

// checkValue verifies that v is acceptable for a field of kind k.
func checkValue(field string, k FieldKind, v interface{}) error {
	switch k {
	case KindAny:
		return nil
	case KindString:
		if _, ok := v.(string); ok {
			return nil
		}
	case KindBool:
		if _, ok := v.(bool); ok {
			return nil
		}
	case KindInt:
		if isInteger(v) {
			return nil
		}
	case KindNumber:
		if isNumber(v) {
			return nil
		}
	}
	return invalidf("field %q expects %s, got %T(%v)", field, k, v, v)
}

func isNumber(v interface{}) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return !math.IsNaN(float64(n)) && !math.IsInf(float64(n), 0)
	case float64:
		return !math.IsNaN(n) && !math.IsInf(n, 0)
	}
	return false
}

// isInteger accepts Go integer types and floats with no fractional part.
func isInteger(v interface{}) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		f := float64(n)
		return isNumber(n) && f == math.Trunc(f)
	case float64:
		return isNumber(n) && n == math.Trunc(n)
	}
	return false
}

func kindOf(v interface{}) FieldKind {
	switch {
	case v == nil:
		return KindAny
	case isInteger(v) && !isFloat(v):
		return KindInt
	case isNumber(v):
		return KindNumber
	}
	switch v.(type) {
	case string:
		return KindString
	case bool:
		return KindBool
	}
	return KindAny
}

func isFloat(v interface{}) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return false
}

func isNumericKind(k FieldKind) bool {
	return k == KindInt || k == KindNumber || k == KindAny
}

// asSlice returns the elements of a slice or array value. Strings and byte
// slices are not treated as lists.
func asSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case string, []byte, nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
