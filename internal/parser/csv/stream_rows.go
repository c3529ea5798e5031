package csv

import (
	"fmt"
	"io"
	"os"
	"strings"

	"ethnograph/internal/keys"
	"ethnograph/internal/model"
)

// Header names as they appear in the source files.
const (
	ColEthnicity        = "Ethnicity_or_Subgroup"
	ColLegacyPctCountry = "pourcentage dans la population du pays"
	ColLegacyPopulation = "population de l'ethnie estimée dans le pays"
	ColLegacyPctAfrica  = "pourcentage dans la population totale d'Afrique"
	ColGroup            = "Group"
	ColSubGroup         = "Sub_group"
	ColPopulation       = "Population_2025"
	ColPctCountry       = "Percentage_in_country"
	ColPctAfrica        = "Percentage_in_Africa"
	ColLanguage         = "Language"
	ColRegion           = "Region"
	ColSources          = "Sources"
	ColAncientName      = "Ancient_Name"
	ColDescription      = "Description"
	ColSocietyType      = "Type_de_societe"
	ColReligion         = "Religion"
	ColLinguisticFamily = "Famille_linguistique"
	ColHistoricalStatus = "Statut_historique"
	ColRegionalPresence = "Presence_regionale"
)

// LegacyRow is one row of the legacy layout.
type LegacyRow struct {
	Line                int
	Name                string
	PercentageInCountry float64
	Population          int64
	PercentageInAfrica  float64
}

// EnrichedRow is one row of the enriched layout.
type EnrichedRow struct {
	Line                int
	Group               string
	SubGroup            string
	Population          int64
	PercentageInCountry float64
	PercentageInAfrica  float64
	Language            string
	Region              string
	Sources             string
	AncientName         string
	Description         string
	SocietyType         string
	Religion            string
	LinguisticFamily    string
	HistoricalStatus    string
	RegionalPresence    string
}

// Table is a parsed country file. Exactly one of Legacy / Enriched is
// populated, according to Schema.
type Table struct {
	Schema   model.Schema
	Header   []string
	Legacy   []LegacyRow
	Enriched []EnrichedRow
}

// Len returns the number of typed rows.
func (t Table) Len() int {
	if t.Schema == model.SchemaLegacy {
		return len(t.Legacy)
	}
	return len(t.Enriched)
}

// header maps normalized column names to their position.
type header map[string]int

func newHeader(cols []string) header {
	h := make(header, len(cols))
	for i, c := range cols {
		if i == 0 {
			c = strings.TrimPrefix(c, "\uFEFF")
		}
		k := keys.Normalize(c)
		if _, dup := h[k]; !dup {
			h[k] = i
		}
	}
	return h
}

func (h header) has(col string) bool {
	_, ok := h[keys.Normalize(col)]
	return ok
}

// get returns the trimmed field for col, or the field at fallback when the
// column is absent (fallback < 0 disables it).
func (h header) get(rec []string, col string, fallback int) string {
	i, ok := h[keys.Normalize(col)]
	if !ok {
		i = fallback
	}
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// Detect selects the schema from the header row. Unrecognized headers fall
// back to enriched.
func Detect(cols []string) model.Schema {
	h := newHeader(cols)
	switch {
	case h.has(ColGroup) && h.has(ColPopulation) && h.has(ColPctCountry):
		return model.SchemaEnriched
	case h.has(ColEthnicity) && h.has(ColLegacyPctCountry) && h.has(ColLegacyPopulation):
		return model.SchemaLegacy
	default:
		return model.SchemaEnriched
	}
}

// Parse tokenizes text, detects its schema and returns typed rows. Input with
// fewer than two non-blank lines yields an empty table.
func Parse(text string) Table {
	recs := Tokenize(text)
	if len(recs) == 0 {
		return Table{Schema: model.SchemaEnriched}
	}

	cols := make([]string, len(recs[0].Fields))
	for i, c := range recs[0].Fields {
		if i == 0 {
			c = strings.TrimPrefix(c, "\uFEFF")
		}
		cols[i] = strings.TrimSpace(c)
	}
	t := Table{Schema: Detect(cols), Header: cols}
	if len(recs) < 2 {
		return t
	}

	h := newHeader(cols)
	for _, r := range recs[1:] {
		if t.Schema == model.SchemaLegacy {
			t.Legacy = append(t.Legacy, LegacyRow{
				Line:                r.Line,
				Name:                h.get(r.Fields, ColEthnicity, 0),
				PercentageInCountry: Float(h.get(r.Fields, ColLegacyPctCountry, 1)),
				Population:          Int(h.get(r.Fields, ColLegacyPopulation, 2)),
				PercentageInAfrica:  Float(h.get(r.Fields, ColLegacyPctAfrica, 3)),
			})
			continue
		}
		t.Enriched = append(t.Enriched, EnrichedRow{
			Line:                r.Line,
			Group:               h.get(r.Fields, ColGroup, 0),
			SubGroup:            h.get(r.Fields, ColSubGroup, -1),
			Population:          Int(h.get(r.Fields, ColPopulation, -1)),
			PercentageInCountry: Float(h.get(r.Fields, ColPctCountry, -1)),
			PercentageInAfrica:  Float(h.get(r.Fields, ColPctAfrica, -1)),
			Language:            h.get(r.Fields, ColLanguage, -1),
			Region:              h.get(r.Fields, ColRegion, -1),
			Sources:             h.get(r.Fields, ColSources, -1),
			AncientName:         h.get(r.Fields, ColAncientName, -1),
			Description:         h.get(r.Fields, ColDescription, -1),
			SocietyType:         h.get(r.Fields, ColSocietyType, -1),
			Religion:            h.get(r.Fields, ColReligion, -1),
			LinguisticFamily:    h.get(r.Fields, ColLinguisticFamily, -1),
			HistoricalStatus:    h.get(r.Fields, ColHistoricalStatus, -1),
			RegionalPresence:    h.get(r.Fields, ColRegionalPresence, -1),
		})
	}
	return t
}

// Read parses everything from r.
func Read(r io.Reader) (Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Table{}, fmt.Errorf("read csv: %w", err)
	}
	return Parse(string(b)), nil
}

// ReadFile parses the CSV file at path.
func ReadFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return Read(f)
}
