// Package mssql is the Microsoft SQL Server storage backend.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"ethnograph/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// SQL Server has no ON CONFLICT clause and MERGE is avoided; Upsert runs a
// short transaction that locks the matching row with UPDLOCK + HOLDLOCK,
// then updates it or inserts a new one.
//
// Key columns are NVARCHAR(450) so they fit in a unique index.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

// New opens cfg.DSN with the "sqlserver" driver and validates connectivity
// via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(4)
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: raw}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureTables creates missing tables. Existing tables are left untouched.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repo) Insert(ctx context.Context, table string, row storage.Row) (int64, error) {
	return insert(ctx, r.db, table, row)
}

func insert(ctx context.Context, q querier, table string, row storage.Row) (int64, error) {
	query, args := buildInsertSQL(table, row)
	var id int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, wrapErr("insert", table, err)
	}
	return id, nil
}

func (r *Repo) SelectID(ctx context.Context, table string, key storage.Row) (int64, error) {
	return selectID(ctx, r.db, table, key, "")
}

func selectID(ctx context.Context, q querier, table string, key storage.Row, hint string) (int64, error) {
	where, args := buildKeyWhere(key)
	query := fmt.Sprintf("SELECT TOP 1 %s FROM %s%s WHERE %s",
		mssqlIdent(storage.IDColumn), mssqlTableIdent(table), hint, where)
	var id int64
	err := q.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, wrapErr("select", table, err)
	}
	return id, nil
}

func (r *Repo) Update(ctx context.Context, table string, id int64, row storage.Row) error {
	return update(ctx, r.db, table, id, row)
}

func update(ctx context.Context, q querier, table string, id int64, row storage.Row) error {
	if len(row) == 0 {
		return nil
	}
	query, args := buildUpdateSQL(table, id, row)
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapErr("update", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Upsert locks the row matching the conflict columns for the duration of a
// transaction, so two writers on the same key serialize.
func (r *Repo) Upsert(ctx context.Context, table string, row storage.Row, conflict []string) (id int64, err error) {
	if len(conflict) == 0 {
		return 0, fmt.Errorf("mssql: upsert into %s: conflict columns are required", table)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql: upsert into %s: begin tx: %w", table, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	key := make(storage.Row, len(conflict))
	for _, c := range conflict {
		key[c] = row[c]
	}
	id, err = selectID(ctx, tx, table, key, " WITH (UPDLOCK, HOLDLOCK)")
	switch {
	case errors.Is(err, storage.ErrNotFound):
		id, err = insert(ctx, tx, table, row)
	case err == nil:
		rest := make(storage.Row, len(row))
		for c, v := range row {
			if _, isKey := key[c]; !isKey {
				rest[c] = v
			}
		}
		err = update(ctx, tx, table, id, rest)
	}
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: upsert into %s: commit: %w", table, err)
	}
	return id, nil
}

func buildInsertSQL(table string, row storage.Row) (string, []any) {
	cols := row.Columns()
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = "@p" + strconv.Itoa(i+1)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) OUTPUT INSERTED.%s VALUES (%s)",
		mssqlTableIdent(table), joinIdentList(cols), mssqlIdent(storage.IDColumn), strings.Join(ph, ", "))
	return q, row.Values(cols)
}

func buildUpdateSQL(table string, id int64, row storage.Row) (string, []any) {
	cols := row.Columns()
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = @p%d", mssqlIdent(c), i+1)
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = @p%d",
		mssqlTableIdent(table), strings.Join(sets, ", "), mssqlIdent(storage.IDColumn), len(cols)+1)
	return q, append(row.Values(cols), id)
}

// buildKeyWhere renders NULL key values as IS NULL without a parameter.
func buildKeyWhere(key storage.Row) (string, []any) {
	cols := key.Columns()
	parts := make([]string, 0, len(cols))
	var args []any
	for _, c := range cols {
		v := key[c]
		if v == nil {
			parts = append(parts, mssqlIdent(c)+" IS NULL")
			continue
		}
		args = append(args, v)
		parts = append(parts, fmt.Sprintf("%s = @p%d", mssqlIdent(c), len(args)))
	}
	return strings.Join(parts, " AND "), args
}

func buildCreateSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	var defs []string
	if t.PrimaryKey != nil {
		defs = append(defs, mssqlPrimaryKeyDef(*t.PrimaryKey))
	}
	for _, c := range t.Columns {
		defs = append(defs, mssqlColumnDef(c))
	}
	for _, con := range t.Unique() {
		defs = append(defs, fmt.Sprintf("UNIQUE (%s)", joinIdentList(con)))
	}
	return wrapCreateIfMissing(t.Name, strings.Join(defs, ", ")), nil
}

func wrapCreateIfMissing(tableName string, innerDefs string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(tableName, "'", "''"),
		mssqlTableIdent(tableName),
		innerDefs,
	)
}

// mssqlPrimaryKeyDef returns a column definition for an identity primary key.
func mssqlPrimaryKeyDef(pk storage.PrimaryKeySpec) string {
	switch strings.ToLower(strings.TrimSpace(pk.Type)) {
	case "serial", "bigserial", "identity":
		return fmt.Sprintf("%s BIGINT IDENTITY(1,1) PRIMARY KEY", mssqlIdent(pk.Name))
	default:
		return fmt.Sprintf("%s %s PRIMARY KEY", mssqlIdent(pk.Name), pk.Type)
	}
}

func mssqlColumnDef(c storage.ColumnSpec) string {
	var b strings.Builder
	b.WriteString(mssqlIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(columnType(c.Type))
	if !c.IsNullable() {
		b.WriteString(" NOT NULL")
	}
	if c.Type == storage.KindRef {
		fmt.Fprintf(&b, " REFERENCES %s(%s)", mssqlTableIdent(c.References), mssqlIdent(storage.IDColumn))
	}
	return b.String()
}

func columnType(kind string) string {
	switch kind {
	case storage.KindKey:
		return "NVARCHAR(450)"
	case storage.KindText:
		return "NVARCHAR(MAX)"
	case storage.KindBigint, storage.KindRef:
		return "BIGINT"
	case storage.KindFloat:
		return "FLOAT"
	case storage.KindBool:
		return "BIT"
	default:
		return kind
	}
}

// mssqlIdent returns a bracket-quoted identifier.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.countries" -> [dbo].[countries]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func joinIdentList(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = mssqlIdent(c)
	}
	return strings.Join(out, ", ")
}

// Unique index (2601) and unique constraint (2627) violations.
const (
	errDupKeyIndex      = 2601
	errDupKeyConstraint = 2627
)

func wrapErr(op, table string, err error) error {
	var me mssql.Error
	if !errors.As(err, &me) {
		return &storage.DBError{Op: op, Table: table, Err: err}
	}
	return &storage.DBError{
		Op:       op,
		Table:    table,
		Code:     strconv.Itoa(int(me.Number)),
		Detail:   me.Message,
		Conflict: me.Number == errDupKeyIndex || me.Number == errDupKeyConstraint,
		Err:      err,
	}
}
