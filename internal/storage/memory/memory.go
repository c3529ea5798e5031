// Package memory is an in-process storage backend. It enforces the same
// unique constraints as the SQL backends and backs dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"ethnograph/internal/storage"
)

func init() {
	storage.Register("memory", func(_ context.Context, _ storage.Config) (storage.Repository, error) {
		return New(), nil
	})
}

type table struct {
	spec   storage.TableSpec
	nextID int64
	rows   map[int64]storage.Row
	order  []int64
	// index[i] maps the composite key of spec.Unique()[i] to a row id.
	index []map[string]int64
}

// Repo keeps rows in maps guarded by a mutex.
type Repo struct {
	mu     sync.Mutex
	tables map[string]*table
}

// New returns an empty Repo.
func New() *Repo {
	return &Repo{tables: make(map[string]*table)}
}

func (r *Repo) Close() {}

func (r *Repo) EnsureTables(_ context.Context, specs []storage.TableSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, ok := r.tables[s.Name]; ok {
			continue
		}
		t := &table{spec: s, rows: make(map[int64]storage.Row)}
		for range s.Unique() {
			t.index = append(t.index, make(map[string]int64))
		}
		r.tables[s.Name] = t
	}
	return nil
}

func (r *Repo) table(op, name string) (*table, error) {
	t, ok := r.tables[name]
	if !ok {
		return nil, &storage.DBError{Op: op, Table: name, Code: "no_table", Err: fmt.Errorf("table does not exist")}
	}
	return t, nil
}

func (r *Repo) Insert(_ context.Context, name string, row storage.Row) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.table("insert", name)
	if err != nil {
		return 0, err
	}
	return t.insert(row)
}

func (t *table) insert(row storage.Row) (int64, error) {
	if err := t.checkColumns("insert", row); err != nil {
		return 0, err
	}
	for i, cols := range t.spec.Unique() {
		if _, dup := t.index[i][storage.CompositeKey(row, cols)]; dup {
			return 0, &storage.DBError{
				Op:         "insert",
				Table:      t.spec.Name,
				Code:       "unique",
				Constraint: fmt.Sprintf("%s%v", t.spec.Name, cols),
				Conflict:   true,
				Err:        storage.ErrConflict,
			}
		}
	}
	t.nextID++
	id := t.nextID
	stored := make(storage.Row, len(row)+1)
	for k, v := range row {
		stored[k] = v
	}
	stored[storage.IDColumn] = id
	t.rows[id] = stored
	t.order = append(t.order, id)
	t.reindex(id, nil, stored)
	return id, nil
}

func (t *table) checkColumns(op string, row storage.Row) error {
	for col := range row {
		found := col == storage.IDColumn
		for _, c := range t.spec.Columns {
			if c.Name == col {
				found = true
				break
			}
		}
		if !found {
			return &storage.DBError{Op: op, Table: t.spec.Name, Code: "no_column", Err: fmt.Errorf("column %s does not exist", col)}
		}
	}
	for _, c := range t.spec.Columns {
		if !c.IsNullable() && op == "insert" && row[c.Name] == nil {
			return &storage.DBError{Op: op, Table: t.spec.Name, Code: "not_null", Err: fmt.Errorf("column %s is NOT NULL", c.Name)}
		}
	}
	return nil
}

func (t *table) reindex(id int64, before, after storage.Row) {
	for i, cols := range t.spec.Unique() {
		if before != nil {
			delete(t.index[i], storage.CompositeKey(before, cols))
		}
		if after != nil {
			t.index[i][storage.CompositeKey(after, cols)] = id
		}
	}
}

func (r *Repo) SelectID(_ context.Context, name string, key storage.Row) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.table("select", name)
	if err != nil {
		return 0, err
	}
	return t.selectID(key)
}

func (t *table) selectID(key storage.Row) (int64, error) {
	cols := key.Columns()
	want := storage.CompositeKey(key, cols)
	for _, id := range t.order {
		if storage.CompositeKey(t.rows[id], cols) == want {
			return id, nil
		}
	}
	return 0, storage.ErrNotFound
}

func (r *Repo) Update(_ context.Context, name string, id int64, row storage.Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.table("update", name)
	if err != nil {
		return err
	}
	return t.update(id, row)
}

func (t *table) update(id int64, row storage.Row) error {
	if err := t.checkColumns("update", row); err != nil {
		return err
	}
	cur, ok := t.rows[id]
	if !ok {
		return storage.ErrNotFound
	}
	next := make(storage.Row, len(cur))
	for k, v := range cur {
		next[k] = v
	}
	for k, v := range row {
		if k != storage.IDColumn {
			next[k] = v
		}
	}
	for i, cols := range t.spec.Unique() {
		if other, dup := t.index[i][storage.CompositeKey(next, cols)]; dup && other != id {
			return &storage.DBError{Op: "update", Table: t.spec.Name, Code: "unique", Conflict: true, Err: storage.ErrConflict}
		}
	}
	t.reindex(id, cur, next)
	t.rows[id] = next
	return nil
}

func (r *Repo) Upsert(_ context.Context, name string, row storage.Row, conflict []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.table("upsert", name)
	if err != nil {
		return 0, err
	}
	key := make(storage.Row, len(conflict))
	for _, c := range conflict {
		key[c] = row[c]
	}
	id, err := t.selectID(key)
	if err == storage.ErrNotFound {
		return t.insert(row)
	}
	if err != nil {
		return 0, err
	}
	return id, t.update(id, row)
}

// Rows returns a copy of the rows of name in insertion order.
func (r *Repo) Rows(name string) []storage.Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[name]
	if !ok {
		return nil
	}
	out := make([]storage.Row, 0, len(t.order))
	for _, id := range t.order {
		cp := make(storage.Row, len(t.rows[id]))
		for k, v := range t.rows[id] {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}

// Count returns the number of rows in name.
func (r *Repo) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tables[name]; ok {
		return len(t.rows)
	}
	return 0
}
