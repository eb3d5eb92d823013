package record

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual_TypeSensitive(t *testing.T) {
	assert.True(t, Equal(String("a"), String("a")))
	assert.True(t, Equal(Int(1), Int(1)))
	assert.True(t, Equal(Bool(true), Bool(true)))
	assert.False(t, Equal(Int(1), Float(1)), "int and float are distinct types")
	assert.False(t, Equal(String("1"), Int(1)))
	assert.False(t, Equal(nil, String("")))
}

func TestRecord_Equal(t *testing.T) {
	a := Record{"species": String("grouper"), "count": Int(3)}
	b := Record{"count": Int(3), "species": String("grouper")}
	assert.True(t, a.Equal(b))

	b["count"] = Int(4)
	assert.False(t, a.Equal(b))

	assert.False(t, a.Equal(Record{"species": String("grouper")}))
}

func TestRecord_CloneAndWithout(t *testing.T) {
	rec := Record{"uuid": String("id-1"), "species": String("grouper")}

	clone := rec.Clone()
	clone["species"] = String("salmon")
	assert.Equal(t, String("grouper"), rec["species"], "clone must not alias the original")

	stripped := rec.Without("uuid")
	assert.Len(t, stripped, 1)
	_, ok := stripped["uuid"]
	assert.False(t, ok)
	assert.Len(t, rec, 2)
}

func TestRecord_StringField(t *testing.T) {
	rec := Record{"uuid": String("id-1"), "count": Int(2)}

	id, ok := rec.StringField("uuid")
	assert.True(t, ok)
	assert.Equal(t, "id-1", id)

	_, ok = rec.StringField("count")
	assert.False(t, ok, "non-string field is not a string")

	_, ok = rec.StringField("missing")
	assert.False(t, ok)
}

func TestSortedKeys_UTF16Order(t *testing.T) {
	// U+1F600 encodes as surrogate 0xD83D which sorts before U+FFFD in
	// UTF-16, although its UTF-8 bytes sort after.
	rec := Record{"\uFFFD": Int(1), "\U0001F600": Int(2), "a": Int(3)}
	assert.Equal(t, []string{"a", "\U0001F600", "\uFFFD"}, rec.SortedKeys())
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    Value
		wantErr bool
	}{
		{"string", "grouper", String("grouper"), false},
		{"bool", true, Bool(true), false},
		{"int", 42, Int(42), false},
		{"int64", int64(-7), Int(-7), false},
		{"uint64 in range", uint64(9), Int(9), false},
		{"uint64 overflow", uint64(math.MaxUint64), nil, true},
		{"float", 1.5, Float(1.5), false},
		{"nan", math.NaN(), nil, true},
		{"json int", json.Number("12"), Int(12), false},
		{"json float", json.Number("12.5"), Float(12.5), false},
		{"json exponent", json.Number("1e3"), Float(1000), false},
		{"already value", String("x"), String("x"), false},
		{"nil", nil, nil, true},
		{"nested map", map[string]any{"a": 1}, nil, true},
		{"slice", []any{1}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromMap_ReportsField(t *testing.T) {
	_, err := FromMap(map[string]any{"weight": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"weight"`)
}

func TestMapAndToAny(t *testing.T) {
	rec := Record{"s": String("x"), "i": Int(2), "f": Float(2.5), "b": Bool(false)}
	assert.Equal(t, map[string]any{
		"s": "x",
		"i": int64(2),
		"f": 2.5,
		"b": false,
	}, rec.Map())
}

func TestRecord_Validate(t *testing.T) {
	assert.NoError(t, Record{"name": String("Jose\u0301"), "n": Int(1)}.Validate())
	assert.NoError(t, Record(nil).Validate())

	err := Record{"ok": String("fine"), "name": String("bad\xff")}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidUTF8)
	assert.Contains(t, err.Error(), `"name"`)

	err = Record{"bad\xfe": Bool(true)}.Validate()
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}
