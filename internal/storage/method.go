package storage

import (
	"context"

	"github.com/roach88/offstore/internal/record"
)

// Method is the capability contract all storage backends implement.
type Method interface {
	// Create stores one record and returns it with its primary key populated.
	// A key is generated when the record has none.
	Create(ctx context.Context, table string, rec record.Record) (record.Record, error)

	// Find returns every record in table, or only those equal to criteria on
	// each criteria field when criteria is non-empty. No match is an empty
	// slice, never an error.
	Find(ctx context.Context, table string, criteria record.Record) ([]record.Record, error)

	// Update upserts each record by primary key.
	Update(ctx context.Context, table string, recs []record.Record) error

	// Delete removes records by primary key. Unknown ids are ignored.
	Delete(ctx context.Context, table string, ids []string) error
}

// Unimplemented can be embedded by a partial backend. Every method it
// provides fails with KindNotImplemented.
type Unimplemented struct{}

func (Unimplemented) Create(context.Context, string, record.Record) (record.Record, error) {
	return nil, NotImplemented("create")
}

func (Unimplemented) Find(context.Context, string, record.Record) ([]record.Record, error) {
	return nil, NotImplemented("find")
}

func (Unimplemented) Update(context.Context, string, []record.Record) error {
	return NotImplemented("update")
}

func (Unimplemented) Delete(context.Context, string, []string) error {
	return NotImplemented("delete")
}

// Match reports whether rec holds a value equal to every criteria field.
// Empty criteria match every record.
func Match(rec, criteria record.Record) bool {
	for k, want := range criteria {
		got, ok := rec[k]
		if !ok || !record.Equal(got, want) {
			return false
		}
	}
	return true
}
