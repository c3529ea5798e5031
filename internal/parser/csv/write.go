package csv

import "strings"

// Format serializes tokenized records back to text, ending each one with
// its own terminator.
func Format(recs []Record) string {
	var b strings.Builder
	for _, r := range recs {
		b.WriteString(formatFields(r.Fields))
		b.WriteString(r.EOL)
	}
	return b.String()
}

func formatFields(fields []string) string {
	// A lone blank field would read back as a blank line.
	if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
		return quote(fields[0])
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		if strings.ContainsAny(f, ",\"\r\n") {
			parts[i] = quote(f)
		} else {
			parts[i] = f
		}
	}
	return strings.Join(parts, ",")
}

func quote(f string) string {
	return `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
}
