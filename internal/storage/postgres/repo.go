// Package postgres is the PostgreSQL storage backend (pgx connection pool).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ethnograph/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

It provides:
  - INSERT ... RETURNING id with unique_violation (23505) mapped to ErrConflict
  - INSERT ... ON CONFLICT DO UPDATE for upserts
  - CREATE SCHEMA / CREATE TABLE IF NOT EXISTS for schema-qualified names
*/
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a pool for cfg.DSN and checks connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureTables creates schemas and tables that do not exist yet. This method
// is idempotent.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		schemaSQL, baseSQL, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if schemaSQL != "" {
			if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create schema for %s: %w", t.Name, err)
			}
		}
		if _, err := r.pool.Exec(ctx, baseSQL); err != nil {
			return fmt.Errorf("create base table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) Insert(ctx context.Context, table string, row storage.Row) (int64, error) {
	q, args := buildInsertSQL(table, row)
	var id int64
	if err := r.pool.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		return 0, wrapErr("insert", table, err)
	}
	return id, nil
}

func (r *Repo) SelectID(ctx context.Context, table string, key storage.Row) (int64, error) {
	cols := key.Columns()
	conds := make([]string, len(cols))
	for i, c := range cols {
		conds[i] = fmt.Sprintf("%s IS NOT DISTINCT FROM $%d", pgIdent(c), i+1)
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT 1",
		pgIdent(storage.IDColumn), pgTableIdent(table), strings.Join(conds, " AND "))

	var id int64
	err := r.pool.QueryRow(ctx, q, key.Values(cols)...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
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
		sets[i] = fmt.Sprintf("%s = $%d", pgIdent(c), i+1)
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		pgTableIdent(table), strings.Join(sets, ", "), pgIdent(storage.IDColumn), len(cols)+1)

	tag, err := r.pool.Exec(ctx, q, append(row.Values(cols), id)...)
	if err != nil {
		return wrapErr("update", table, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *Repo) Upsert(ctx context.Context, table string, row storage.Row, conflict []string) (int64, error) {
	if len(conflict) == 0 {
		return 0, fmt.Errorf("postgres: upsert into %s: conflict columns are required", table)
	}
	q, args := buildUpsertSQL(table, row, conflict)
	var id int64
	if err := r.pool.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		return 0, wrapErr("upsert", table, err)
	}
	return id, nil
}

func buildInsertSQL(table string, row storage.Row) (string, []any) {
	cols := row.Columns()
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		pgTableIdent(table), joinIdentList(cols), params(len(cols)), pgIdent(storage.IDColumn))
	return q, row.Values(cols)
}

// buildUpsertSQL renders INSERT ... ON CONFLICT DO UPDATE SET c = EXCLUDED.c.
// A row made only of conflict columns reassigns the first one, so RETURNING
// still yields the existing id.
func buildUpsertSQL(table string, row storage.Row, conflict []string) (string, []any) {
	cols := row.Columns()
	inConflict := make(map[string]bool, len(conflict))
	for _, c := range conflict {
		inConflict[c] = true
	}
	var sets []string
	for _, c := range cols {
		if !inConflict[c] {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", pgIdent(c), pgIdent(c)))
		}
	}
	if len(sets) == 0 {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", pgIdent(conflict[0]), pgIdent(conflict[0])))
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING %s",
		pgTableIdent(table), joinIdentList(cols), params(len(cols)),
		joinIdentList(conflict), strings.Join(sets, ", "), pgIdent(storage.IDColumn))
	return q, row.Values(cols)
}

func params(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(out, ", ")
}

func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// pgTableIdent quotes each part of a possibly schema-qualified name.
func pgTableIdent(name string) string {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}

func joinIdentList(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return strings.Join(out, ", ")
}

// splitQualifiedName splits a schema-qualified name into (schema, table).
//
// Examples:
//   - "public.countries" => ("public", "countries")
//   - "countries"        => ("", "countries")
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// buildCreateSQL builds DDL for the schema (when qualified) and the table.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, baseSQL string, err error) {
	if err := t.Validate(); err != nil {
		return "", "", err
	}
	if schema, _ := splitQualifiedName(t.Name); schema != "" {
		schemaSQL = fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s;", pgIdent(schema))
	}

	var defs []string
	if t.PrimaryKey != nil {
		defs = append(defs, primaryKeyDef(*t.PrimaryKey))
	}
	for _, c := range t.Columns {
		defs = append(defs, buildColumnDef(c))
	}
	for _, con := range t.Unique() {
		defs = append(defs, fmt.Sprintf("UNIQUE (%s)", joinIdentList(con)))
	}

	baseSQL = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", pgTableIdent(t.Name), strings.Join(defs, ", "))
	return schemaSQL, baseSQL, nil
}

func primaryKeyDef(pk storage.PrimaryKeySpec) string {
	switch strings.ToLower(strings.TrimSpace(pk.Type)) {
	case "serial", "bigserial", "identity":
		return fmt.Sprintf("%s BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY", pgIdent(pk.Name))
	default:
		return fmt.Sprintf("%s %s PRIMARY KEY", pgIdent(pk.Name), pk.Type)
	}
}

// buildColumnDef renders a single column definition. Foreign key references
// are expressed inline.
func buildColumnDef(c storage.ColumnSpec) string {
	var b strings.Builder
	b.WriteString(pgIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(columnType(c.Type))
	if !c.IsNullable() {
		b.WriteString(" NOT NULL")
	}
	if c.Type == storage.KindRef {
		fmt.Fprintf(&b, " REFERENCES %s(%s)", pgTableIdent(c.References), pgIdent(storage.IDColumn))
	}
	return b.String()
}

func columnType(kind string) string {
	switch kind {
	case storage.KindKey, storage.KindText:
		return "TEXT"
	case storage.KindBigint, storage.KindRef:
		return "BIGINT"
	case storage.KindFloat:
		return "DOUBLE PRECISION"
	case storage.KindBool:
		return "BOOLEAN"
	default:
		return kind
	}
}

// wrapErr maps pgconn errors to *storage.DBError. unique_violation (23505)
// is flagged as a conflict.
func wrapErr(op, table string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return &storage.DBError{Op: op, Table: table, Err: err}
	}
	return &storage.DBError{
		Op:         op,
		Table:      table,
		Code:       pgErr.Code,
		Detail:     pgErr.Detail,
		Hint:       pgErr.Hint,
		Constraint: pgErr.ConstraintName,
		Conflict:   pgErr.Code == "23505",
		Err:        err,
	}
}
