package match

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"

	"ethnograph/internal/model"
)

// MaxSuggestions bounds the near-miss names reported per unmatched entity.
const MaxSuggestions = 3

// Unmatched is an entity no description reached Threshold for.
type Unmatched struct {
	Name        string   `json:"name"`
	Key         string   `json:"key"`
	BestScore   float64  `json:"best_score"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Stats summarizes matching for one country.
type Stats struct {
	Country        string      `json:"country"`
	HasDossier     bool        `json:"has_dossier"`
	Total          int         `json:"total"`
	Matched        int         `json:"matched"`
	Unmatched      int         `json:"unmatched"`
	Partial        bool        `json:"partial"`
	UnmatchedNames []Unmatched `json:"unmatched_names,omitempty"`
}

// Report aggregates Stats over all countries.
type Report struct {
	Countries        []Stats `json:"countries"`
	Total            int     `json:"total"`
	Matched          int     `json:"matched"`
	Unmatched        int     `json:"unmatched"`
	PartialCountries int     `json:"partial_countries"`
}

// Add folds s into the report.
func (r *Report) Add(s Stats) {
	r.Countries = append(r.Countries, s)
	r.Total += s.Total
	r.Matched += s.Matched
	r.Unmatched += s.Unmatched
	if s.Partial {
		r.PartialCountries++
	}
}

// Matcher merges descriptions into country records.
type Matcher struct {
	log *zap.SugaredLogger
}

// New returns a Matcher. A nil logger discards output.
func New(log *zap.SugaredLogger) *Matcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Matcher{log: log}
}

// Country matches every parent and subgroup of c independently against the
// flat list of d's ethnicity descriptions and merges matched text into
// fields that are still empty. d may be nil (no dossier for the country).
func (m *Matcher) Country(c model.CountryRecord, d *model.CountryDescription) (model.CountryRecord, Stats) {
	st := Stats{Country: c.Slug, HasDossier: d != nil}

	var cands []model.EthnicityDescription
	if d != nil {
		cands = d.Ethnicities
		c.Description = fill(c.Description, d.Description)
		if len(c.AncientNames) == 0 {
			c.AncientNames = append([]string(nil), d.AncientNames...)
		}
		c.EthnicGroupsSummary = fill(c.EthnicGroupsSummary, d.Summary)
		c.Notes = fill(c.Notes, d.Notes)
	}

	out := make([]model.EthnicRecord, len(c.Ethnicities))
	for i, r := range c.Ethnicities {
		r = m.record(r, cands, &st)
		if len(r.Subgroups) > 0 {
			subs := make([]model.EthnicRecord, len(r.Subgroups))
			for j, s := range r.Subgroups {
				subs[j] = m.record(s, cands, &st)
			}
			r.Subgroups = subs
		}
		out[i] = r
	}
	c.Ethnicities = out

	st.Partial = st.Matched > 0 && st.Matched < st.Total
	if st.Unmatched > 0 {
		m.log.Debugw("unmatched entities", "country", c.Slug, "unmatched", st.Unmatched, "total", st.Total)
	}
	return c, st
}

func (m *Matcher) record(r model.EthnicRecord, cands []model.EthnicityDescription, st *Stats) model.EthnicRecord {
	st.Total++
	idx, score := Best(r.Name, cands)
	if idx < 0 {
		st.Unmatched++
		st.UnmatchedNames = append(st.UnmatchedNames, Unmatched{
			Name:        r.Name,
			Key:         r.Key,
			BestScore:   score,
			Suggestions: suggest(r.Name, cands),
		})
		return r
	}
	st.Matched++

	desc := cands[idx]
	r.Description = fill(r.Description, desc.Description)
	if r.AncientName == "" && len(desc.AncientNames) > 0 {
		r.AncientName = strings.Join(desc.AncientNames, ", ")
	}
	r.MatchedDescription = desc.Name
	r.MatchScore = score
	return r
}

// suggest ranks candidate names by fuzzy subsequence match, then by edit
// distance, and returns the closest few.
func suggest(name string, cands []model.EthnicityDescription) []string {
	if len(cands) == 0 {
		return nil
	}
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.Name
	}

	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] && len(out) < MaxSuggestions {
			seen[s] = true
			out = append(out, s)
		}
	}

	ranks := fuzzy.RankFindNormalizedFold(name, names)
	sort.Sort(ranks)
	for _, rk := range ranks {
		add(names[rk.OriginalIndex])
	}

	byDistance := append([]string(nil), names...)
	lower := strings.ToLower(name)
	sort.SliceStable(byDistance, func(i, j int) bool {
		return fuzzy.LevenshteinDistance(lower, strings.ToLower(byDistance[i])) <
			fuzzy.LevenshteinDistance(lower, strings.ToLower(byDistance[j]))
	})
	for _, n := range byDistance {
		add(n)
	}
	return out
}

func fill(dst, src string) string {
	if dst != "" {
		return dst
	}
	return src
}
