// Package model holds the typed records passed between pipeline stages.
//
// Every type here is serialized as an intermediate JSON artifact; field tags
// are part of the stage contract and must round-trip losslessly.
package model

// Schema identifies which CSV column layout a country file used.
type Schema string

const (
	SchemaLegacy   Schema = "legacy"
	SchemaEnriched Schema = "enriched"
)

// Region is an entry of the regions index.
type Region struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// RegionIndex is the required top-level index file.
type RegionIndex struct {
	Regions []Region `json:"regions"`
}

// Enrichment carries the optional descriptive fields of an ethnic record.
type Enrichment struct {
	AncientName      string   `json:"ancient_name,omitempty"`
	Description      string   `json:"description,omitempty"`
	SocietyType      string   `json:"society_type,omitempty"`
	Religion         string   `json:"religion,omitempty"`
	LinguisticFamily string   `json:"linguistic_family,omitempty"`
	HistoricalStatus string   `json:"historical_status,omitempty"`
	RegionsPresent   []string `json:"regions_present,omitempty"`
	Languages        []string `json:"languages,omitempty"`
	Sources          []string `json:"sources,omitempty"`
}

// EthnicRecord is one ethnic group inside one country.
//
// A record with IsParent set aggregates its Subgroups; subgroups never carry
// subgroups of their own.
type EthnicRecord struct {
	Name                string         `json:"name"`
	Key                 string         `json:"key"`
	Population          int64          `json:"population"`
	PercentageInCountry float64        `json:"percentage_in_country"`
	PercentageInAfrica  float64        `json:"percentage_in_africa"`
	IsParent            bool           `json:"is_parent"`
	Subgroups           []EthnicRecord `json:"subgroups"`
	Enrichment

	// Set by the matcher.
	MatchedDescription string  `json:"matched_description,omitempty"`
	MatchScore         float64 `json:"match_score,omitempty"`
}

// HasSubgroups reports whether r aggregates subgroups.
func (r EthnicRecord) HasSubgroups() bool {
	return r.IsParent && len(r.Subgroups) > 0
}

// CountryRecord is the parsed CSV content of one country file, later folded
// with its narrative description.
type CountryRecord struct {
	Name                string         `json:"name"`
	Slug                string         `json:"slug"`
	Region              string         `json:"region"`
	Schema              Schema         `json:"schema"`
	SourceFile          string         `json:"source_file,omitempty"`
	Ethnicities         []EthnicRecord `json:"ethnicities"`
	Description         string         `json:"description,omitempty"`
	AncientNames        []string       `json:"ancient_names,omitempty"`
	EthnicGroupsSummary string         `json:"ethnic_groups_summary,omitempty"`
	Notes               string         `json:"notes,omitempty"`
}

// EthnicityDescription is one per-ethnicity subsection of a dossier.
type EthnicityDescription struct {
	Name         string   `json:"name"`
	Key          string   `json:"key"`
	AncientNames []string `json:"ancient_names,omitempty"`
	Description  string   `json:"description,omitempty"`
}

// CountryDescription is the parsed narrative dossier of one country.
type CountryDescription struct {
	Name         string                 `json:"name"`
	Key          string                 `json:"key"`
	Region       string                 `json:"region,omitempty"`
	SourceFile   string                 `json:"source_file,omitempty"`
	AncientNames []string               `json:"ancient_names,omitempty"`
	Description  string                 `json:"description,omitempty"`
	Summary      string                 `json:"ethnic_groups_summary,omitempty"`
	Notes        string                 `json:"notes,omitempty"`
	Ethnicities  []EthnicityDescription `json:"ethnicities"`
}

// SummaryAncientNameLimit is how many ancient names a country summary shows.
const SummaryAncientNameLimit = 3

// SummaryAncientNames returns at most n ancient names for display. n <= 0
// returns every name.
func SummaryAncientNames(names []string, n int) []string {
	if n <= 0 || len(names) <= n {
		return names
	}
	return names[:n]
}
