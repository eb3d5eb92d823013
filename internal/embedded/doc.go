// Package embedded implements storage.Method on an embedded, versioned,
// multi-table SQLite database, in the manner of a browser IndexedDB store.
//
// # Layout
//
// Each declared table becomes one SQLite table:
//   - the primary key column (TEXT PRIMARY KEY, named after the declared key)
//   - one column per index field, holding the canonical JSON of the value,
//     with a regular or unique index
//   - offstore_record, the canonical JSON of the whole record
//
// offstore_tables records each table's definition string and
// PRAGMA user_version holds the schema version.
//
// # Versioning
//
// A DB opens lazily on its first operation. Opening with a version:
//   - lower than on disk fails with KindVersionConflict
//   - higher than on disk offers every other open handle on the same file a
//     version change; if any refuses, the open fails with KindBlocked,
//     otherwise those handles are invalidated and the schema is migrated in
//     one transaction (new tables, new index columns backfilled from stored
//     records, index changes). Data in every table is preserved.
//   - equal to disk requires the declared tables to match what was stored,
//     else KindConfig (schema changed without a version bump)
//
// Every operation re-reads the on-disk version and fails with
// KindVersionChanged once another handle or process has upgraded the file.
//
// # Semantics
//
//   - Find criteria must name the primary key or index fields; anything
//     else fails with KindSchemaMismatch instead of scanning.
//   - Update is a bulk upsert and Delete a bulk delete, each in a single
//     transaction, so either all records apply or none do.
//   - Delete of an id that is not stored is a no-op.
//   - Create with a primary key that already exists fails with KindConstraint.
//     An empty-string primary key is treated as missing and generated.
//   - Keys, values and ids are stored byte for byte, without Unicode
//     normalization. Records or criteria holding invalid UTF-8 fail with
//     KindInvalidRecord.
package embedded
