package record

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Value is a sealed interface over the scalar types a record field may hold.
// Only String, Int, Float and Bool implement it.
type Value interface {
	value() // Sealed
}

// String is a text field value.
type String string

func (String) value() {}

// Int is an integral numeric field value.
type Int int64

func (Int) value() {}

// Float is a non-integral numeric field value. NaN and Inf are rejected.
type Float float64

func (Float) value() {}

// Bool is a boolean field value.
type Bool bool

func (Bool) value() {}

// Record is one row of a table.
type Record map[string]Value

// Entry is an identifier paired with the record stored under it.
// It serializes as the two-element array ["<id>", {...}].
type Entry struct {
	ID     string
	Record Record
}

// Equal reports whether a and b hold the same type and the same value.
// Int(1) and Float(1) are not equal.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	default:
		return false
	}
}

// Equal reports whether both records hold exactly the same fields.
func (r Record) Equal(other Record) bool {
	if len(r) != len(other) {
		return false
	}
	for k, v := range r {
		ov, ok := other[k]
		if !ok || !Equal(v, ov) {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy. Values are immutable so this is a full copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// StringField returns the field as a Go string if it is present and a String.
func (r Record) StringField(key string) (string, bool) {
	v, ok := r[key].(String)
	if !ok {
		return "", false
	}
	return string(v), true
}

// Without returns a copy of r with key removed.
func (r Record) Without(key string) Record {
	out := make(Record, len(r))
	for k, v := range r {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// Validate reports the first key or string value that is not valid UTF-8,
// in key order.
func (r Record) Validate() error {
	for _, k := range r.SortedKeys() {
		if !utf8.ValidString(k) {
			return fmt.Errorf("key %q: %w", k, ErrInvalidUTF8)
		}
		if s, ok := r[k].(String); ok && !utf8.ValidString(string(s)) {
			return fmt.Errorf("field %q: %w", k, ErrInvalidUTF8)
		}
	}
	return nil
}

// SortedKeys returns keys ordered by UTF-16 code units.
// Go's default string ordering is by UTF-8 bytes, which differs for
// characters outside the BMP.
func (r Record) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Map converts the record to plain Go values for display and encoding
// by callers that do not know about Value.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = ToAny(v)
	}
	return out
}

// ToAny unwraps a Value to the matching Go scalar.
func ToAny(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	default:
		return nil
	}
}

// FromAny converts a decoded Go value (from JSON, YAML or CUE) into a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid field value")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of range: %d", val)
		}
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of range: %d", val)
		}
		return Int(val), nil
	case float32:
		return newFloat(float64(val))
	case float64:
		return newFloat(val)
	case json.Number:
		return parseNumber(string(val))
	default:
		return nil, fmt.Errorf("unsupported field type %T", v)
	}
}

// FromMap converts a plain Go map into a Record.
func FromMap(m map[string]any) (Record, error) {
	rec := make(Record, len(m))
	for k, v := range m {
		val, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		rec[k] = val
	}
	return rec, nil
}

func newFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float %v", f)
	}
	return Float(f), nil
}

// parseNumber keeps integral literals as Int and everything else as Float.
func parseNumber(s string) (Value, error) {
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", s, err)
		}
		return newFloat(f)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("integer out of range: %s", s)
	}
	return Int(n), nil
}
