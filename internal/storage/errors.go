package storage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConflict reports a natural-key uniqueness violation.
	ErrConflict = errors.New("storage: unique constraint conflict")
	// ErrNotFound reports that no row matched a lookup.
	ErrNotFound = errors.New("storage: row not found")
)

// DBError carries the provider-specific details of a failed statement.
type DBError struct {
	Op         string
	Table      string
	Code       string
	Detail     string
	Hint       string
	Constraint string
	Conflict   bool
	Err        error
}

func (e *DBError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Op, e.Table)
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DBError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConflict) true for uniqueness violations.
func (e *DBError) Is(target error) bool {
	return target == ErrConflict && e.Conflict
}

// Fields flattens the error into logger key/value pairs. Errors that are not
// a *DBError yield only the message.
func Fields(err error) []any {
	var de *DBError
	if !errors.As(err, &de) {
		return []any{"error", err}
	}
	kv := []any{"error", err, "code", de.Code}
	if de.Detail != "" {
		kv = append(kv, "detail", de.Detail)
	}
	if de.Hint != "" {
		kv = append(kv, "hint", de.Hint)
	}
	if de.Constraint != "" {
		kv = append(kv, "constraint", de.Constraint)
	}
	return kv
}
