// Package schema parses and validates table definitions.
//
// A table is declared with a definition string listing its fields, primary
// key first:
//
//	formData: "uuid, fullName, species"
//
// Every field after the primary key is an indexed lookup field. A leading
// "&" declares a unique index ("&email"). Auto-increment ("++id") and
// multi-entry ("*tags") modifiers are not supported because primary keys
// are generated UUIDs and values are scalars.
package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/offstore/internal/storage"
)

// DefaultPrimaryKey is the primary key field used when none is declared.
const DefaultPrimaryKey = "uuid"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedPrefixes cannot start a table name; they belong to the embedded
// backend's own bookkeeping or to SQLite. The first also cannot start a
// field name.
var reservedPrefixes = []string{"offstore_", "sqlite_"}

// Index is a secondary lookup field.
type Index struct {
	Field  string
	Unique bool
}

// Table is the parsed declaration of one table.
type Table struct {
	Name       string
	PrimaryKey string
	Indexes    []Index
	Definition string // normalized definition string
}

// Store is a named, versioned collection of tables.
type Store struct {
	Name    string
	Version int
	tables  map[string]Table
}

// ParseTable parses a definition string for the named table.
func ParseTable(name, definition string) (Table, error) {
	if err := validateTableName(name); err != nil {
		return Table{}, err
	}

	parts := strings.Split(definition, ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if f := strings.TrimSpace(p); f != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return Table{}, configError(name, "definition %q declares no fields", definition)
	}

	t := Table{Name: name}
	seen := make(map[string]bool, len(fields))
	for i, raw := range fields {
		field, unique, err := parseField(name, raw)
		if err != nil {
			return Table{}, err
		}
		if seen[field] {
			return Table{}, configError(name, "field %q declared twice", field)
		}
		seen[field] = true

		if i == 0 {
			if unique {
				return Table{}, configError(name, "primary key %q is unique already; drop the & modifier", field)
			}
			t.PrimaryKey = field
			continue
		}
		t.Indexes = append(t.Indexes, Index{Field: field, Unique: unique})
	}
	t.Definition = t.normalize()
	return t, nil
}

func parseField(table, raw string) (string, bool, error) {
	switch {
	case strings.HasPrefix(raw, "++"):
		return "", false, configError(table, "auto-increment key %q is not supported", raw)
	case strings.HasPrefix(raw, "*"):
		return "", false, configError(table, "multi-entry index %q is not supported", raw)
	case strings.HasPrefix(raw, "["):
		return "", false, configError(table, "compound index %q is not supported", raw)
	}

	unique := false
	if strings.HasPrefix(raw, "&") {
		unique = true
		raw = raw[1:]
	}
	if !identPattern.MatchString(raw) {
		return "", false, configError(table, "invalid field name %q", raw)
	}
	if strings.HasPrefix(strings.ToLower(raw), reservedPrefixes[0]) {
		return "", false, configError(table, "field name %q uses reserved prefix %q", raw, reservedPrefixes[0])
	}
	return raw, unique, nil
}

func validateTableName(name string) error {
	if !identPattern.MatchString(name) {
		return configError(name, "invalid table name %q", name)
	}
	lower := strings.ToLower(name)
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(lower, p) {
			return configError(name, "table name %q uses reserved prefix %q", name, p)
		}
	}
	return nil
}

// normalize renders the table back into canonical definition form.
func (t Table) normalize() string {
	parts := make([]string, 0, len(t.Indexes)+1)
	parts = append(parts, t.PrimaryKey)
	for _, idx := range t.Indexes {
		if idx.Unique {
			parts = append(parts, "&"+idx.Field)
		} else {
			parts = append(parts, idx.Field)
		}
	}
	return strings.Join(parts, ", ")
}

// Indexed reports whether field is the primary key or a declared index.
func (t Table) Indexed(field string) bool {
	if field == t.PrimaryKey {
		return true
	}
	_, ok := t.Index(field)
	return ok
}

// Index returns the declared index for field.
func (t Table) Index(field string) (Index, bool) {
	for _, idx := range t.Indexes {
		if idx.Field == field {
			return idx, true
		}
	}
	return Index{}, false
}

// NewStore builds a store from a table-name to definition-string mapping.
// Version must be a positive integer.
func NewStore(name string, version int, definitions map[string]string) (Store, error) {
	if strings.TrimSpace(name) == "" {
		return Store{}, storage.NewError(storage.KindConfig, "schema", "", "store name is required")
	}
	if version < 1 {
		return Store{}, storage.NewError(storage.KindConfig, "schema", "", "version must be a positive integer, got %d", version)
	}
	if len(definitions) == 0 {
		return Store{}, storage.NewError(storage.KindConfig, "schema", "", "store %q declares no tables", name)
	}

	s := Store{Name: name, Version: version, tables: make(map[string]Table, len(definitions))}
	for tableName, def := range definitions {
		t, err := ParseTable(tableName, def)
		if err != nil {
			return Store{}, err
		}
		s.tables[tableName] = t
	}
	return s, nil
}

// Table looks up a declared table.
func (s Store) Table(name string) (Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Tables returns the declared tables sorted by name.
func (s Store) Tables() []Table {
	out := make([]Table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Definitions returns the normalized definition string of every table.
func (s Store) Definitions() map[string]string {
	out := make(map[string]string, len(s.tables))
	for name, t := range s.tables {
		out[name] = t.Definition
	}
	return out
}

func configError(table, format string, args ...any) error {
	return storage.NewError(storage.KindConfig, "schema", table, format, args...)
}

// String renders the store for diagnostics.
func (s Store) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s@v%d", s.Name, s.Version)
	for _, t := range s.Tables() {
		fmt.Fprintf(&b, " %s(%s)", t.Name, t.Definition)
	}
	return b.String()
}
