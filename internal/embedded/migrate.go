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

const (
	recordColumn = "offstore_record"
	metaTable    = "offstore_tables"
	indexPrefix  = "offstore_idx:"
)

const createMetaTable = `CREATE TABLE IF NOT EXISTS offstore_tables (
	name TEXT PRIMARY KEY,
	definition TEXT NOT NULL
)`

// migrate upgrades db to the declared version in a single transaction.
func (d *DB) migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return sqlitedb.Classify("upgrade", "", err)
	}
	defer tx.Rollback()

	// Another process may have upgraded between the first read and the
	// write lock taken by BEGIN IMMEDIATE.
	from, err := userVersion(ctx, tx)
	if err != nil {
		return sqlitedb.Classify("upgrade", "", err)
	}
	if from > d.schema.Version {
		return storage.NewError(storage.KindVersionConflict, "upgrade", "",
			"requested version %d is lower than existing version %d", d.schema.Version, from)
	}
	if from == d.schema.Version {
		if err := tx.Commit(); err != nil {
			return sqlitedb.Classify("upgrade", "", err)
		}
		return d.verify(ctx, db)
	}

	if _, err := tx.ExecContext(ctx, createMetaTable); err != nil {
		return sqlitedb.Classify("upgrade", metaTable, err)
	}
	stored, err := storedDefinitions(ctx, tx)
	if err != nil {
		return err
	}

	for _, tbl := range d.schema.Tables() {
		if err := migrateTable(ctx, tx, tbl, stored[tbl.Name]); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", d.schema.Version)); err != nil {
		return sqlitedb.Classify("upgrade", "", err)
	}
	if err := tx.Commit(); err != nil {
		return sqlitedb.Classify("upgrade", "", err)
	}

	d.logger.Info("schema upgraded",
		"name", d.schema.Name,
		"from", from,
		"to", d.schema.Version,
	)
	return nil
}

// verify checks that an already current database holds the declared tables.
func (d *DB) verify(ctx context.Context, db *sql.DB) error {
	stored, err := storedDefinitions(ctx, db)
	if err != nil {
		return err
	}
	for _, tbl := range d.schema.Tables() {
		def, ok := stored[tbl.Name]
		if !ok {
			return storage.NewError(storage.KindConfig, "open", tbl.Name,
				"table is not in database %q at version %d; bump the version to add it", d.schema.Name, d.schema.Version)
		}
		if def != tbl.Definition {
			return storage.NewError(storage.KindConfig, "open", tbl.Name,
				"definition %q differs from stored %q at version %d; bump the version to change it",
				tbl.Definition, def, d.schema.Version)
		}
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func storedDefinitions(ctx context.Context, q querier) (map[string]string, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", metaTable).Scan(&n)
	if err != nil {
		return nil, sqlitedb.Classify("open", metaTable, err)
	}
	out := make(map[string]string)
	if n == 0 {
		return out, nil
	}

	rows, err := q.QueryContext(ctx, "SELECT name, definition FROM offstore_tables")
	if err != nil {
		return nil, sqlitedb.Classify("open", metaTable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, def string
		if err := rows.Scan(&name, &def); err != nil {
			return nil, sqlitedb.Classify("open", metaTable, err)
		}
		out[name] = def
	}
	if err := rows.Err(); err != nil {
		return nil, sqlitedb.Classify("open", metaTable, err)
	}
	return out, nil
}

func migrateTable(ctx context.Context, tx *sql.Tx, tbl schema.Table, storedDef string) error {
	if storedDef != "" {
		prev, err := schema.ParseTable(tbl.Name, storedDef)
		if err != nil {
			return storage.WrapError(storage.KindSerialization, "upgrade", tbl.Name, err)
		}
		if prev.PrimaryKey != tbl.PrimaryKey {
			return storage.NewError(storage.KindConfig, "upgrade", tbl.Name,
				"primary key cannot change from %q to %q", prev.PrimaryKey, tbl.PrimaryKey)
		}
	}

	if _, err := tx.ExecContext(ctx, createTableSQL(tbl)); err != nil {
		return sqlitedb.Classify("upgrade", tbl.Name, err)
	}

	added, err := addIndexColumns(ctx, tx, tbl)
	if err != nil {
		return err
	}
	if len(added) > 0 {
		if err := backfill(ctx, tx, tbl, added); err != nil {
			return err
		}
	}

	if err := syncIndexes(ctx, tx, tbl); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO offstore_tables (name, definition) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET definition = excluded.definition
	`, tbl.Name, tbl.Definition)
	if err != nil {
		return sqlitedb.Classify("upgrade", metaTable, err)
	}
	return nil
}

func createTableSQL(tbl schema.Table) string {
	cols := []string{
		sqlitedb.QuoteIdent(tbl.PrimaryKey) + " TEXT PRIMARY KEY",
		recordColumn + " TEXT NOT NULL",
	}
	for _, idx := range tbl.Indexes {
		cols = append(cols, sqlitedb.QuoteIdent(idx.Field)+" TEXT")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		sqlitedb.QuoteIdent(tbl.Name), strings.Join(cols, ",\n\t"))
}

// addIndexColumns adds a column for every index field the table lacks and
// returns the added fields.
func addIndexColumns(ctx context.Context, tx *sql.Tx, tbl schema.Table) ([]string, error) {
	existing, err := columns(ctx, tx, tbl.Name)
	if err != nil {
		return nil, err
	}
	var added []string
	for _, idx := range tbl.Indexes {
		if existing[idx.Field] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT",
			sqlitedb.QuoteIdent(tbl.Name), sqlitedb.QuoteIdent(idx.Field))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, sqlitedb.Classify("upgrade", tbl.Name, err)
		}
		added = append(added, idx.Field)
	}
	return added, nil
}

func columns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, sqlitedb.Classify("upgrade", table, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, sqlitedb.Classify("upgrade", table, err)
		}
		out[name] = true
	}
	return out, rows.Err()
}

// backfill populates newly added index columns from the stored records.
func backfill(ctx context.Context, tx *sql.Tx, tbl schema.Table, fields []string) error {
	type row struct {
		id   string
		vals []any
	}

	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT %s, %s FROM %s",
		sqlitedb.QuoteIdent(tbl.PrimaryKey), recordColumn, sqlitedb.QuoteIdent(tbl.Name)))
	if err != nil {
		return sqlitedb.Classify("upgrade", tbl.Name, err)
	}

	var pending []row
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			rows.Close()
			return sqlitedb.Classify("upgrade", tbl.Name, err)
		}
		rec, err := record.Unmarshal([]byte(data))
		if err != nil {
			rows.Close()
			return storage.WrapError(storage.KindSerialization, "upgrade", tbl.Name, err)
		}
		vals, err := indexValues(rec, fields)
		if err != nil {
			rows.Close()
			return storage.WrapError(storage.KindSerialization, "upgrade", tbl.Name, err)
		}
		pending = append(pending, row{id: id, vals: vals})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return sqlitedb.Classify("upgrade", tbl.Name, err)
	}
	rows.Close()

	sets := make([]string, len(fields))
	for i, f := range fields {
		sets[i] = sqlitedb.QuoteIdent(f) + " = ?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		sqlitedb.QuoteIdent(tbl.Name), strings.Join(sets, ", "), sqlitedb.QuoteIdent(tbl.PrimaryKey)))
	if err != nil {
		return sqlitedb.Classify("upgrade", tbl.Name, err)
	}
	defer stmt.Close()

	for _, r := range pending {
		if _, err := stmt.ExecContext(ctx, append(r.vals, r.id)...); err != nil {
			return sqlitedb.Classify("upgrade", tbl.Name, err)
		}
	}
	return nil
}

// syncIndexes drops indexes that are no longer declared (or whose
// uniqueness changed) and creates the declared ones.
func syncIndexes(ctx context.Context, tx *sql.Tx, tbl schema.Table) error {
	rows, err := tx.QueryContext(ctx, `SELECT name, "unique" FROM pragma_index_list(?)`, tbl.Name)
	if err != nil {
		return sqlitedb.Classify("upgrade", tbl.Name, err)
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		var unique bool
		if err := rows.Scan(&name, &unique); err != nil {
			rows.Close()
			return sqlitedb.Classify("upgrade", tbl.Name, err)
		}
		if strings.HasPrefix(name, indexPrefix) {
			existing[name] = unique
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return sqlitedb.Classify("upgrade", tbl.Name, err)
	}
	rows.Close()

	want := make(map[string]bool, len(tbl.Indexes))
	for _, idx := range tbl.Indexes {
		want[indexName(tbl.Name, idx.Field)] = idx.Unique
	}

	for name, unique := range existing {
		if w, ok := want[name]; ok && w == unique {
			continue
		}
		if _, err := tx.ExecContext(ctx, "DROP INDEX "+sqlitedb.QuoteIdent(name)); err != nil {
			return sqlitedb.Classify("upgrade", tbl.Name, err)
		}
	}

	for _, idx := range tbl.Indexes {
		kind := "INDEX"
		if idx.Unique {
			kind = "UNIQUE INDEX"
		}
		stmt := fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)", kind,
			sqlitedb.QuoteIdent(indexName(tbl.Name, idx.Field)),
			sqlitedb.QuoteIdent(tbl.Name), sqlitedb.QuoteIdent(idx.Field))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return sqlitedb.Classify("upgrade", tbl.Name, err)
		}
	}
	return nil
}

func indexName(table, field string) string {
	return indexPrefix + table + "." + field
}

// indexValues returns the canonical JSON of each field of rec, or nil for
// fields rec does not have.
func indexValues(rec record.Record, fields []string) ([]any, error) {
	out := make([]any, len(fields))
	for i, f := range fields {
		v, ok := rec[f]
		if !ok {
			continue
		}
		data, err := record.MarshalValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f, err)
		}
		out[i] = string(data)
	}
	return out, nil
}
