package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeKey converts a column value to a canonical string form, suitable
// for in-memory index keys (e.g. "benin" or "8429529").
//
// Backends must not assume a particular underlying type for values; this
// helper keeps lookup indexes consistent across int, int64 and string forms.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// CompositeKey joins the normalized values of cols in row, for indexes over
// multi-column unique constraints.
func CompositeKey(row Row, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = NormalizeKey(row[c])
	}
	return strings.Join(parts, "\x1f")
}
