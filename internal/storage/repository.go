// Package storage defines the relational sink the load engine writes to.
//
// Backends register themselves from init() under a kind ("postgres",
// "sqlite", "mssql", "memory") and are selected at runtime through Open.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// IDColumn is the generated primary key column of every table.
const IDColumn = "id"

// Config is the minimal configuration needed to open a Repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Row maps column names to values. Values are string, int64, float64, bool
// or nil (SQL NULL).
type Row map[string]any

// Columns returns the row's column names in sorted order, so generated SQL
// is deterministic.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Values returns the row's values aligned with cols.
func (r Row) Values(cols []string) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = r[c]
	}
	return out
}

// Repository is the write/lookup surface the load engine needs. Every call is
// a single statement (or a single short transaction); callers serialize
// writes.
type Repository interface {
	// Close releases backend resources. Call once at shutdown.
	Close()

	// EnsureTables creates tables and unique constraints that do not exist yet.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// Insert writes row and returns the generated IDColumn value.
	//
	// Errors:
	//   - A natural-key uniqueness violation returns an error matching
	//     errors.Is(err, ErrConflict). Nothing is written in that case.
	//   - Any other failure is returned as a *DBError when the driver
	//     provides a code.
	Insert(ctx context.Context, table string, row Row) (int64, error)

	// SelectID returns the IDColumn value of the row whose columns equal key.
	// Returns ErrNotFound when no row matches.
	SelectID(ctx context.Context, table string, key Row) (int64, error)

	// Update overwrites the columns in row on the row identified by id.
	Update(ctx context.Context, table string, id int64, row Row) error

	// Upsert inserts row, or updates the non-conflict columns of the row that
	// already holds the same conflict column values. Returns the row id.
	Upsert(ctx context.Context, table string, row Row, conflict []string) (int64, error)
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under kind.
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func Open(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}
