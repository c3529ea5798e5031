// Package artifact reads and writes the JSON documents exchanged between
// pipeline stages, and locates the input files they are built from.
package artifact

import (
	"path/filepath"
)

// Kind names one family of per-country documents.
type Kind string

const (
	Parsed       Kind = "parsed"
	Descriptions Kind = "descriptions"
	Matched      Kind = "matched"
)

var allFiles = map[Kind]string{
	Parsed:       "all_countries.json",
	Descriptions: "all_descriptions.json",
	Matched:      "all_matched.json",
}

const (
	MatchReportFile = "match_report.json"
	LoadReportFile  = "load_report.json"
)

// Layout resolves artifact paths under an output root.
type Layout struct {
	Root string
}

func (l Layout) Dir(k Kind) string {
	return filepath.Join(l.Root, string(k))
}

// Country is the per-country document of kind k.
func (l Layout) Country(k Kind, slug string) string {
	return filepath.Join(l.Dir(k), slug+".json")
}

// All is the aggregate document of kind k.
func (l Layout) All(k Kind) string {
	return filepath.Join(l.Dir(k), allFiles[k])
}

func (l Layout) MatchReport() string {
	return filepath.Join(l.Dir(Matched), MatchReportFile)
}

func (l Layout) LoadReport() string {
	return filepath.Join(l.Root, LoadReportFile)
}
