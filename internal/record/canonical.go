package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrInvalidUTF8 is returned when a key, value or id is not valid UTF-8.
// Such strings cannot be stored without being altered.
var ErrInvalidUTF8 = errors.New("invalid UTF-8")

// MarshalCanonical encodes a record as canonical JSON.
// A nil record encodes as {}.
func MarshalCanonical(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeRecord(&buf, rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalValue encodes a single value as canonical JSON.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case String:
		return marshalString(string(val))
	case Int:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case Float:
		s, err := formatFloat(float64(val))
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	case Bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	default:
		return nil, fmt.Errorf("unknown value type %T", v)
	}
}

// MarshalEntries encodes an ordered association list as
// [["<id>",{...}],["<id>",{...}]].
func MarshalEntries(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeEntry(&buf, e); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Unmarshal decodes a flat JSON object into a Record.
func Unmarshal(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decode record: expected object")
	}
	return FromMap(raw)
}

// UnmarshalEntries decodes the association-list form written by MarshalEntries.
// Empty input decodes to an empty list.
func UnmarshalEntries(data []byte) ([]Entry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Entry{}, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for i, item := range raw {
		var e Entry
		if err := e.UnmarshalJSON(item); err != nil {
			return nil, fmt.Errorf("decode entries: entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// MarshalJSON implements json.Marshaler using the canonical encoding.
func (r Record) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(r)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	rec, err := Unmarshal(data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeEntry(&buf, e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("expected [id, record] pair, got %d elements", len(pair))
	}
	var id string
	if err := json.Unmarshal(pair[0], &id); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	rec, err := Unmarshal(pair[1])
	if err != nil {
		return err
	}
	e.ID = id
	e.Record = rec
	return nil
}

func writeEntry(buf *bytes.Buffer, e Entry) error {
	idBytes, err := marshalString(e.ID)
	if err != nil {
		return err
	}
	buf.WriteByte('[')
	buf.Write(idBytes)
	buf.WriteByte(',')
	if err := writeRecord(buf, e.Record); err != nil {
		return err
	}
	buf.WriteByte(']')
	return nil
}

func writeRecord(buf *bytes.Buffer, rec Record) error {
	buf.WriteByte('{')
	for i, k := range rec.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := marshalString(k)
		if err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalValue(rec[k])
		if err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return nil
}

// marshalString encodes s without HTML escaping. The bytes of s are kept
// as given; U+2028 and U+2029 are emitted literally.
func marshalString(s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUTF8, s)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return unescapeLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// unescapeLineSeparators rewrites the \u2028 and \u2029 escapes emitted by
// encoding/json back to literal characters, leaving \\u2028 untouched.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		c := data[i]
		if c != '\\' || i+1 >= len(data) {
			out = append(out, c)
			continue
		}
		if data[i+1] == 'u' && i+5 < len(data) && string(data[i+2:i+5]) == "202" {
			switch data[i+5] {
			case '8':
				out = append(out, "\u2028"...)
				i += 5
				continue
			case '9':
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		// Copy the escape pair verbatim so an escaped backslash is never
		// mistaken for the start of an escape.
		out = append(out, c, data[i+1])
		i++
	}
	return out
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("non-finite float %v", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s, nil
}
