package storage

import (
	"fmt"
	"strings"
)

// Column kinds. Backends translate them to native types.
const (
	KindKey    = "key"    // short text that takes part in unique constraints
	KindText   = "text"   // unbounded text
	KindBigint = "bigint" // 64-bit integer
	KindFloat  = "float"  // double precision
	KindBool   = "bool"
	KindRef    = "ref" // 64-bit foreign key to another table's IDColumn
)

// TableSpec describes one table of the sink.
type TableSpec struct {
	Name        string           `json:"name"`
	PrimaryKey  *PrimaryKeySpec  `json:"primary_key,omitempty"`
	Columns     []ColumnSpec     `json:"columns"`
	Constraints []ConstraintSpec `json:"constraints,omitempty"`
}

type PrimaryKeySpec struct {
	Name string `json:"name"`
	Type string `json:"type"` // "serial"
}

type ColumnSpec struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	References string `json:"references,omitempty"` // table name for KindRef
	Nullable   *bool  `json:"nullable,omitempty"`
}

type ConstraintSpec struct {
	Kind    string   `json:"kind"` // "unique"
	Columns []string `json:"columns"`
}

// IsNullable reports the column's nullability. Columns are nullable unless
// stated otherwise.
func (c ColumnSpec) IsNullable() bool {
	return c.Nullable == nil || *c.Nullable
}

// Unique returns the column lists of the table's unique constraints.
func (t TableSpec) Unique() [][]string {
	var out [][]string
	for _, c := range t.Constraints {
		if strings.EqualFold(c.Kind, "unique") {
			out = append(out, c.Columns)
		}
	}
	return out
}

// Validate checks that columns are named and typed and that constraints only
// mention declared columns.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: no columns", t.Name)
	}
	declared := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Type) == "" {
			return fmt.Errorf("table %s: column name/type must be set", t.Name)
		}
		if c.Type == KindRef && c.References == "" {
			return fmt.Errorf("table %s: ref column %s has no references", t.Name, c.Name)
		}
		declared[c.Name] = true
	}
	for _, con := range t.Constraints {
		if !strings.EqualFold(con.Kind, "unique") {
			return fmt.Errorf("table %s: unsupported constraint kind %q", t.Name, con.Kind)
		}
		if len(con.Columns) == 0 {
			return fmt.Errorf("table %s: unique constraint requires columns", t.Name)
		}
		for _, c := range con.Columns {
			if !declared[c] {
				return fmt.Errorf("table %s: constraint column %s is not declared", t.Name, c)
			}
		}
	}
	return nil
}
