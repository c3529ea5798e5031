// Package records turns typed CSV rows into per-country ethnic records,
// materializing parent/subgroup structure.
package records

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"ethnograph/internal/aggregate"
	"ethnograph/internal/keys"
	"ethnograph/internal/model"
	"ethnograph/internal/parser/csv"
)

// Builder converts parsed CSV tables into country records.
type Builder struct {
	log *zap.SugaredLogger
}

// NewBuilder returns a Builder. A nil logger discards warnings.
func NewBuilder(log *zap.SugaredLogger) *Builder {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Builder{log: log}
}

// Country builds the record for one country file. Parent totals are rolled
// up from their subgroups before returning.
func (b *Builder) Country(name, region string, t csv.Table) model.CountryRecord {
	c := model.CountryRecord{
		Name:        name,
		Slug:        keys.Normalize(name),
		Region:      region,
		Schema:      t.Schema,
		Ethnicities: []model.EthnicRecord{},
	}
	switch t.Schema {
	case model.SchemaLegacy:
		c.Ethnicities = b.legacy(c.Slug, t.Legacy)
	default:
		c.Ethnicities = b.enriched(c.Slug, t.Enriched)
	}
	aggregate.RollupAll(c.Ethnicities)
	return c
}

func (b *Builder) legacy(country string, rows []csv.LegacyRow) []model.EthnicRecord {
	out := []model.EthnicRecord{}
	seen := make(map[string]bool)

	for _, row := range rows {
		parts := splitList(row.Name, "/")
		if len(parts) == 0 {
			b.log.Warnw("skip row without name", "country", country, "line", row.Line)
			continue
		}
		rec := model.EthnicRecord{
			Name:                parts[0],
			Key:                 keys.Normalize(parts[0]),
			Population:          row.Population,
			PercentageInCountry: row.PercentageInCountry,
			PercentageInAfrica:  row.PercentageInAfrica,
			Subgroups:           []model.EthnicRecord{},
		}
		if rec.Key == "" {
			b.log.Warnw("skip row with empty key", "country", country, "line", row.Line, "name", row.Name)
			continue
		}
		if seen[rec.Key] {
			b.log.Warnw("skip duplicate group", "country", country, "line", row.Line, "key", rec.Key)
			continue
		}
		seen[rec.Key] = true

		subs := make([]subgroupSpec, 0, len(parts)-1)
		for _, p := range parts[1:] {
			subs = append(subs, subgroupSpec{name: p})
		}
		attachSubgroups(&rec, subs)
		out = append(out, rec)
	}
	return out
}

// subgroupSpec is a subgroup name with an optional explicit population.
type subgroupSpec struct {
	name     string
	explicit bool
	pop      int64
}

var explicitFigureRe = regexp.MustCompile(`^(.+?)\s*:\s*([0-9][0-9\s.,\x{00a0}\x{202f}]*)$`)

// parseSubgroupList splits "A, B: 3000, C" honoring explicit figures.
func parseSubgroupList(s string) []subgroupSpec {
	var out []subgroupSpec
	for _, item := range splitList(s, ",", ";") {
		if m := explicitFigureRe.FindStringSubmatch(item); m != nil {
			out = append(out, subgroupSpec{name: strings.TrimSpace(m[1]), explicit: true, pop: csv.Int(m[2])})
			continue
		}
		out = append(out, subgroupSpec{name: item})
	}
	return out
}

// attachSubgroups apportions rec's figures over subs and marks rec a parent.
// Explicit figures are honored; the remaining population is split equally
// among the others. Subgroups whose key equals the parent's are ignored.
func attachSubgroups(rec *model.EthnicRecord, subs []subgroupSpec) {
	seen := map[string]bool{rec.Key: true}
	kept := subs[:0:0]
	for _, s := range subs {
		k := keys.Normalize(s.name)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		return
	}

	remaining := rec.Population
	implicit := 0
	for _, s := range kept {
		if s.explicit {
			remaining -= s.pop
		} else {
			implicit++
		}
	}
	if remaining < 0 {
		remaining = 0
	}
	shares := aggregate.Split(remaining, implicit)

	rec.IsParent = true
	rec.Subgroups = make([]model.EthnicRecord, 0, len(kept))
	j := 0
	for _, s := range kept {
		pop := s.pop
		if !s.explicit {
			pop = shares[j]
			j++
		}
		rec.Subgroups = append(rec.Subgroups, model.EthnicRecord{
			Name:                s.name,
			Key:                 keys.Normalize(s.name),
			Population:          pop,
			PercentageInCountry: aggregate.ScalePercent(pop, rec.Population, rec.PercentageInCountry, len(kept)),
			PercentageInAfrica:  aggregate.ScalePercent(pop, rec.Population, rec.PercentageInAfrica, len(kept)),
			Subgroups:           []model.EthnicRecord{},
		})
	}
}

var parentheticalRe = regexp.MustCompile(`^(.*?)\s*\(([^()]*)\)\s*$`)

// splitGroupName separates "Chokwe (Lunda, Luvale)" into the group name and
// its parenthetical suffix.
func splitGroupName(s string) (name, paren string) {
	s = strings.TrimSpace(s)
	if m := parentheticalRe.FindStringSubmatch(s); m != nil && strings.TrimSpace(m[1]) != "" {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	return s, ""
}

// splitList splits s on any of seps, trims items and drops empty ones.
func splitList(s string, seps ...string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		for _, sep := range seps {
			if strings.ContainsRune(sep, r) {
				return true
			}
		}
		return false
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// union appends items not already present, comparing by key.
func union(dst []string, items ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, d := range dst {
		seen[keys.Normalize(d)] = true
	}
	for _, it := range items {
		k := keys.Normalize(it)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		dst = append(dst, it)
	}
	return dst
}
