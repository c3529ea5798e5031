// Package probe samples a country CSV and reports what the parser will see:
// the detected layout, the header, per-column inferred types and sample
// uniqueness.
//
// Inference is best-effort and never fails the probe; only an unreadable
// file is an error.
package probe

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"ethnograph/internal/model"
	"ethnograph/internal/parser/csv"
)

// DefaultMaxBytes bounds the sample read from the start of the file.
const DefaultMaxBytes = 64 << 10

// distinctCap bounds per-column distinct tracking.
const distinctCap = 10000

// Column types reported by inference.
const (
	TypeText    = "text"
	TypeInteger = "integer"
	TypePercent = "percent"
	TypeFloat   = "float"
	TypeEmpty   = "empty"
)

// Column describes one header column over the sampled rows.
type Column struct {
	Name     string
	Type     string
	Filled   int
	Distinct int
	Capped   bool
}

// Ratio is Distinct over Filled, or 0 when the column is empty.
func (c Column) Ratio() float64 {
	if c.Filled == 0 {
		return 0
	}
	return float64(c.Distinct) / float64(c.Filled)
}

// Result is the outcome of probing one file.
type Result struct {
	Path      string
	Bytes     int
	Truncated bool
	Schema    model.Schema
	Header    []string
	Rows      int
	Columns   []Column
	Table     csv.Table
}

// File probes the first maxBytes of path. maxBytes <= 0 uses DefaultMaxBytes.
func File(path string, maxBytes int) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	res, err := Reader(f, maxBytes)
	res.Path = path
	return res, err
}

// Reader probes the first maxBytes of r.
func Reader(r io.Reader, maxBytes int) (Result, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	buf, err := io.ReadAll(io.LimitReader(r, int64(maxBytes)+1))
	if err != nil {
		return Result{}, fmt.Errorf("read sample: %w", err)
	}
	res := Result{Truncated: len(buf) > maxBytes}
	if res.Truncated {
		buf = buf[:maxBytes]
	}
	res.Bytes = len(buf)

	recs := csv.Tokenize(string(buf))
	if res.Truncated && len(recs) > 1 && recs[len(recs)-1].EOL == "" {
		// last record is cut mid-field
		recs = recs[:len(recs)-1]
	}
	if len(recs) == 0 {
		return res, nil
	}

	res.Header = recs[0].Fields
	res.Schema = csv.Detect(res.Header)
	rows := make([][]string, 0, len(recs)-1)
	for _, rec := range recs[1:] {
		rows = append(rows, rec.Fields)
	}
	res.Rows = len(rows)
	res.Columns = inferColumns(res.Header, rows)
	res.Table = csv.Parse(csv.Format(recs))
	return res, nil
}

func inferColumns(header []string, rows [][]string) []Column {
	cols := make([]Column, len(header))
	for i, name := range header {
		cols[i] = Column{Name: strings.TrimPrefix(strings.TrimSpace(name), "\uFEFF")}

		seen := make(map[string]struct{})
		allInt, allPct, allFloat := true, true, true
		for _, r := range rows {
			if i >= len(r) {
				continue
			}
			v := strings.TrimSpace(r[i])
			if v == "" {
				continue
			}
			cols[i].Filled++

			if !cols[i].Capped {
				seen[v] = struct{}{}
				if len(seen) >= distinctCap {
					cols[i].Capped = true
				}
			}

			numeric := looksNumeric(v)
			if allInt && (!numeric || strings.Contains(v, "%") || csv.Float(v) != float64(csv.Int(v))) {
				allInt = false
			}
			if allPct && !(numeric && strings.HasSuffix(v, "%")) {
				allPct = false
			}
			if allFloat && !numeric {
				allFloat = false
			}
		}
		cols[i].Distinct = len(seen)

		switch {
		case cols[i].Filled == 0:
			cols[i].Type = TypeEmpty
		case allInt:
			cols[i].Type = TypeInteger
		case allPct:
			cols[i].Type = TypePercent
		case allFloat:
			cols[i].Type = TypeFloat
		default:
			cols[i].Type = TypeText
		}
	}
	return cols
}

// looksNumeric reports whether v consists only of digits, separators, signs
// and an optional trailing percent sign.
func looksNumeric(v string) bool {
	digits := 0
	for _, r := range strings.TrimSuffix(strings.TrimSpace(v), "%") {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ',' || r == '.' || r == ' ' || r == '\u00a0' || r == '\u202f' || r == '-' || r == '+':
		default:
			return false
		}
	}
	return digits > 0
}

// WriteReport prints res as a human-readable summary: layout, then one line
// per column ordered by ascending uniqueness.
func WriteReport(w io.Writer, res Result) error {
	fmt.Fprintf(w, "file:\t%s\n", res.Path)
	fmt.Fprintf(w, "sampled:\t%d bytes (truncated=%t)\n", res.Bytes, res.Truncated)
	if len(res.Header) == 0 {
		_, err := fmt.Fprintln(w, "uniqueness: no rows sampled")
		return err
	}
	fmt.Fprintf(w, "schema:\t%s\n", res.Schema)
	fmt.Fprintf(w, "rows:\t%d (typed %d)\n\n", res.Rows, res.Table.Len())

	cols := append([]Column(nil), res.Columns...)
	sort.SliceStable(cols, func(i, j int) bool {
		if cols[i].Ratio() == cols[j].Ratio() {
			return cols[i].Name < cols[j].Name
		}
		return cols[i].Ratio() < cols[j].Ratio()
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tTYPE\tUNIQUE\tROWS\tRATIO\tCAPPED")
	for _, c := range cols {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.1f%%\t%t\n", c.Name, c.Type, c.Distinct, c.Filled, c.Ratio()*100, c.Capped)
	}
	return tw.Flush()
}
