// Package sqlite is the SQLite storage backend (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ethnograph/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no boolean or sized integer types; bool and bigint map to
//     INTEGER and ref columns to INTEGER REFERENCES.
//   - The pool holds a single connection. The loader is sequential anyway,
//     and ":memory:" databases and PRAGMA foreign_keys are per connection.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN and enables foreign key enforcement.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTables creates every table with CREATE TABLE IF NOT EXISTS. It is
// safe to run on every invocation.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sqlite: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) Insert(ctx context.Context, table string, row storage.Row) (int64, error) {
	q, args := buildInsertSQL(table, row)
	var id int64
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&id); err != nil {
		return 0, wrapErr("insert", table, err)
	}
	return id, nil
}

func (r *Repo) SelectID(ctx context.Context, table string, key storage.Row) (int64, error) {
	where, args := buildKeyWhere(key)
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT 1", sqlIdent(storage.IDColumn), sqlIdent(table), where)
	var id int64
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, wrapErr("select", table, err)
	}
	return id, nil
}

func (r *Repo) Update(ctx context.Context, table string, id int64, row storage.Row) error {
	if len(row) == 0 {
		return nil
	}
	cols := row.Columns()
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = sqlIdent(c) + " = ?"
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", sqlIdent(table), strings.Join(sets, ", "), sqlIdent(storage.IDColumn))
	res, err := r.db.ExecContext(ctx, q, append(row.Values(cols), id)...)
	if err != nil {
		return wrapErr("update", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *Repo) Upsert(ctx context.Context, table string, row storage.Row, conflict []string) (int64, error) {
	if len(conflict) == 0 {
		return 0, fmt.Errorf("sqlite: upsert into %s: conflict columns are required", table)
	}
	q, args := buildUpsertSQL(table, row, conflict)
	var id int64
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&id); err != nil {
		return 0, wrapErr("upsert", table, err)
	}
	return id, nil
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func joinIdentList(columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = sqlIdent(c)
	}
	return strings.Join(out, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func buildInsertSQL(table string, row storage.Row) (string, []any) {
	cols := row.Columns()
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		sqlIdent(table), joinIdentList(cols), placeholders(len(cols)), sqlIdent(storage.IDColumn))
	return q, row.Values(cols)
}

// buildUpsertSQL renders INSERT ... ON CONFLICT DO UPDATE. When every column
// is part of the conflict target the first one is reassigned to itself, so
// RETURNING still yields the existing id.
func buildUpsertSQL(table string, row storage.Row, conflict []string) (string, []any) {
	cols := row.Columns()
	inConflict := make(map[string]bool, len(conflict))
	for _, c := range conflict {
		inConflict[c] = true
	}
	var sets []string
	for _, c := range cols {
		if !inConflict[c] {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", sqlIdent(c), sqlIdent(c)))
		}
	}
	if len(sets) == 0 {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", sqlIdent(conflict[0]), sqlIdent(conflict[0])))
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING %s",
		sqlIdent(table), joinIdentList(cols), placeholders(len(cols)),
		joinIdentList(conflict), strings.Join(sets, ", "), sqlIdent(storage.IDColumn))
	return q, row.Values(cols)
}

// buildKeyWhere matches NULL key values with IS, which SQLite accepts for
// any operand.
func buildKeyWhere(key storage.Row) (string, []any) {
	cols := key.Columns()
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = sqlIdent(c) + " IS ?"
	}
	return strings.Join(parts, " AND "), key.Values(cols)
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	var parts []string

	if t.PrimaryKey != nil {
		pkType := strings.TrimSpace(strings.ToLower(t.PrimaryKey.Type))

		// "INTEGER PRIMARY KEY" is special in sqlite: it becomes the rowid and auto-generates values.
		switch pkType {
		case "serial", "bigserial", "identity":
			parts = append(parts, fmt.Sprintf(`%s INTEGER PRIMARY KEY AUTOINCREMENT`, sqlIdent(t.PrimaryKey.Name)))
		default:
			parts = append(parts, fmt.Sprintf(`%s %s PRIMARY KEY`, sqlIdent(t.PrimaryKey.Name), t.PrimaryKey.Type))
		}
	}

	for _, c := range t.Columns {
		col := fmt.Sprintf("%s %s", sqlIdent(c.Name), columnType(c.Type))
		if !c.IsNullable() {
			col += " NOT NULL"
		}
		if c.Type == storage.KindRef {
			col += fmt.Sprintf(" REFERENCES %s(%s)", sqlIdent(c.References), sqlIdent(storage.IDColumn))
		}
		parts = append(parts, col)
	}

	for _, con := range t.Unique() {
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", joinIdentList(con)))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  ")), nil
}

func columnType(kind string) string {
	switch kind {
	case storage.KindKey, storage.KindText:
		return "TEXT"
	case storage.KindBigint, storage.KindRef, storage.KindBool:
		return "INTEGER"
	case storage.KindFloat:
		return "REAL"
	default:
		return kind
	}
}

// wrapErr converts driver errors to *storage.DBError, flagging UNIQUE and
// PRIMARY KEY violations as conflicts.
func wrapErr(op, table string, err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return &storage.DBError{Op: op, Table: table, Err: err}
	}
	code := se.Code()
	return &storage.DBError{
		Op:       op,
		Table:    table,
		Code:     fmt.Sprintf("%d", code),
		Detail:   sqlite.ErrorCodeString[code],
		Conflict: code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
		Err:      err,
	}
}
