package embedded

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/offstore/internal/record"
	"github.com/roach88/offstore/internal/schema"
	"github.com/roach88/offstore/internal/sqlitedb"
	"github.com/roach88/offstore/internal/storage"
)

// Create inserts rec into table, generating a primary key if rec has none.
func (d *DB) Create(ctx context.Context, table string, rec record.Record) (record.Record, error) {
	tbl, db, err := d.begin(ctx, "create", table)
	if err != nil {
		return nil, err
	}

	out := rec.Clone()
	if v, ok := out[tbl.PrimaryKey]; !ok || v == record.String("") {
		out[tbl.PrimaryKey] = record.String(d.ids.Generate())
	}
	args, err := rowArgs("create", tbl, out)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, insertSQL(tbl, false), args...); err != nil {
		return nil, d.fail("create", tbl.Name, err)
	}
	return out, nil
}

// Find returns the records of table matching criteria, ordered by primary key.
func (d *DB) Find(ctx context.Context, table string, criteria record.Record) ([]record.Record, error) {
	tbl, db, err := d.begin(ctx, "find", table)
	if err != nil {
		return nil, err
	}
	if err := criteria.Validate(); err != nil {
		return nil, storage.WrapError(storage.KindInvalidRecord, "find", tbl.Name, err)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", recordColumn, sqlitedb.QuoteIdent(tbl.Name))
	var (
		conds []string
		args  []any
	)
	for _, field := range criteria.SortedKeys() {
		if !tbl.Indexed(field) {
			return nil, storage.NewError(storage.KindSchemaMismatch, "find", tbl.Name,
				"field %q is not indexed; declared: %s", field, tbl.Definition)
		}
		v := criteria[field]
		if field == tbl.PrimaryKey {
			id, ok := v.(record.String)
			if !ok {
				return []record.Record{}, nil
			}
			conds = append(conds, sqlitedb.QuoteIdent(field)+" = ?")
			args = append(args, string(id))
			continue
		}
		data, err := record.MarshalValue(v)
		if err != nil {
			return nil, storage.WrapError(storage.KindInvalidRecord, "find", tbl.Name, err)
		}
		conds = append(conds, sqlitedb.QuoteIdent(field)+" = ?")
		args = append(args, string(data))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY " + sqlitedb.QuoteIdent(tbl.PrimaryKey)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, d.fail("find", tbl.Name, err)
	}
	defer rows.Close()

	out := []record.Record{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, d.fail("find", tbl.Name, err)
		}
		rec, err := record.Unmarshal([]byte(data))
		if err != nil {
			return nil, storage.WrapError(storage.KindSerialization, "find", tbl.Name, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, d.fail("find", tbl.Name, err)
	}
	return out, nil
}

// Update upserts recs in one transaction. Every record must carry its
// primary key; if any record fails, none are written.
func (d *DB) Update(ctx context.Context, table string, recs []record.Record) error {
	tbl, db, err := d.begin(ctx, "update", table)
	if err != nil {
		return err
	}

	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		if _, ok := rec[tbl.PrimaryKey]; !ok {
			return storage.NewError(storage.KindInvalidRecord, "update", tbl.Name, "record has no %q", tbl.PrimaryKey)
		}
		args, err := rowArgs("update", tbl, rec)
		if err != nil {
			return err
		}
		rows = append(rows, args)
	}
	if len(rows) == 0 {
		return nil
	}

	return d.inTx(ctx, db, "update", tbl.Name, insertSQL(tbl, true), rows)
}

// Delete removes the records whose primary key is in ids, in one
// transaction. Ids that are not stored are ignored.
func (d *DB) Delete(ctx context.Context, table string, ids []string) error {
	tbl, db, err := d.begin(ctx, "delete", table)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	rows := make([][]any, len(ids))
	for i, id := range ids {
		rows[i] = []any{id}
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ?",
		sqlitedb.QuoteIdent(tbl.Name), sqlitedb.QuoteIdent(tbl.PrimaryKey))
	return d.inTx(ctx, db, "delete", tbl.Name, stmt, rows)
}

// Version returns the schema version stored on disk, opening the database
// if needed.
func (d *DB) Version(ctx context.Context) (int, error) {
	db, err := d.conn(ctx, "version")
	if err != nil {
		return 0, err
	}
	v, err := userVersion(ctx, db)
	if err != nil {
		return 0, d.fail("version", "", err)
	}
	return v, nil
}

// begin resolves the table and an open connection, and checks that no
// other connection has upgraded the file since this one opened it.
func (d *DB) begin(ctx context.Context, op, table string) (schema.Table, *sql.DB, error) {
	tbl, ok := d.schema.Table(table)
	if !ok {
		return schema.Table{}, nil, storage.UnknownTable(op, table)
	}
	db, err := d.conn(ctx, op)
	if err != nil {
		return schema.Table{}, nil, err
	}

	v, err := userVersion(ctx, db)
	if err != nil {
		return schema.Table{}, nil, d.fail(op, table, err)
	}
	if v > d.schema.Version {
		registry.remove(d)
		d.invalidate()
		return schema.Table{}, nil, d.versionChanged(op)
	}
	return tbl, db, nil
}

// inTx runs stmt once per argument row inside a single transaction.
func (d *DB) inTx(ctx context.Context, db *sql.DB, op, table, query string, rows [][]any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return d.fail(op, table, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return d.fail(op, table, err)
	}
	defer stmt.Close()

	for _, args := range rows {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return d.fail(op, table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return d.fail(op, table, err)
	}
	return nil
}

// fail classifies err, reporting a version change if this handle was
// invalidated while the operation ran.
func (d *DB) fail(op, table string, err error) error {
	d.mu.Lock()
	invalidated := d.state == stateInvalidated
	d.mu.Unlock()
	if invalidated {
		return d.versionChanged(op)
	}
	return sqlitedb.Classify(op, table, err)
}

// rowArgs renders rec as insert arguments: primary key, record, then one
// value per index field.
func rowArgs(op string, tbl schema.Table, rec record.Record) ([]any, error) {
	if err := rec.Validate(); err != nil {
		return nil, storage.WrapError(storage.KindInvalidRecord, op, tbl.Name, err)
	}
	id, ok := rec[tbl.PrimaryKey].(record.String)
	if !ok || id == "" {
		return nil, storage.NewError(storage.KindInvalidRecord, op, tbl.Name, "%q must be a non-empty string", tbl.PrimaryKey)
	}
	data, err := record.MarshalCanonical(rec)
	if err != nil {
		return nil, storage.WrapError(storage.KindInvalidRecord, op, tbl.Name, err)
	}

	fields := make([]string, len(tbl.Indexes))
	for i, idx := range tbl.Indexes {
		fields[i] = idx.Field
	}
	vals, err := indexValues(rec, fields)
	if err != nil {
		return nil, storage.WrapError(storage.KindInvalidRecord, op, tbl.Name, err)
	}

	args := make([]any, 0, len(vals)+2)
	args = append(args, string(id), string(data))
	return append(args, vals...), nil
}

func insertSQL(tbl schema.Table, upsert bool) string {
	cols := []string{sqlitedb.QuoteIdent(tbl.PrimaryKey), recordColumn}
	for _, idx := range tbl.Indexes {
		cols = append(cols, sqlitedb.QuoteIdent(idx.Field))
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		sqlitedb.QuoteIdent(tbl.Name), strings.Join(cols, ", "), marks)
	if !upsert {
		return q
	}

	sets := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		sets = append(sets, c+" = excluded."+c)
	}
	return q + fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s",
		sqlitedb.QuoteIdent(tbl.PrimaryKey), strings.Join(sets, ", "))
}
