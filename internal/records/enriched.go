package records

import (
	"strings"

	"ethnograph/internal/keys"
	"ethnograph/internal/model"
	"ethnograph/internal/parser/csv"
)

type rowGroup struct {
	name  string
	key   string
	paren string
	rows  []csv.EnrichedRow
}

// enriched groups rows by their Group field (parenthetical suffix stripped)
// and resolves each group's subgroups.
func (b *Builder) enriched(country string, rows []csv.EnrichedRow) []model.EthnicRecord {
	var order []*rowGroup
	byKey := make(map[string]*rowGroup)

	for _, row := range rows {
		name, paren := splitGroupName(row.Group)
		key := keys.Normalize(name)
		if key == "" {
			b.log.Warnw("skip row without group", "country", country, "line", row.Line)
			continue
		}
		g, ok := byKey[key]
		if !ok {
			g = &rowGroup{name: name, key: key}
			byKey[key] = g
			order = append(order, g)
		}
		if g.paren == "" {
			g.paren = paren
		}
		g.rows = append(g.rows, row)
	}

	out := make([]model.EthnicRecord, 0, len(order))
	for _, g := range order {
		out = append(out, b.group(country, g))
	}
	return out
}

// group resolves one group. Precedence:
//  1. two or more distinct Sub_group values: one subgroup per value, figures
//     summed per value, lists unioned into the parent;
//  2. a Sub_group holding a list: apportioned from the row total;
//  3. a parenthetical suffix on Group: apportioned the same way;
//  4. a single Sub_group differing from the group: one subgroup with the
//     full figures.
func (b *Builder) group(country string, g *rowGroup) model.EthnicRecord {
	parent := model.EthnicRecord{
		Name:      g.name,
		Key:       g.key,
		Subgroups: []model.EthnicRecord{},
	}

	var subOrder []string
	subs := make(map[string]*model.EthnicRecord)
	for _, row := range g.rows {
		parent.Population += row.Population
		parent.PercentageInCountry += row.PercentageInCountry
		parent.PercentageInAfrica += row.PercentageInAfrica
		mergeEnrichment(&parent.Enrichment, row)

		sk := keys.Normalize(row.SubGroup)
		if sk == "" || sk == g.key {
			continue
		}
		s, ok := subs[sk]
		if !ok {
			s = &model.EthnicRecord{Name: strings.TrimSpace(row.SubGroup), Key: sk, Subgroups: []model.EthnicRecord{}}
			subs[sk] = s
			subOrder = append(subOrder, sk)
		}
		s.Population += row.Population
		s.PercentageInCountry += row.PercentageInCountry
		s.PercentageInAfrica += row.PercentageInAfrica
		mergeEnrichment(&s.Enrichment, row)
	}

	if len(subOrder) >= 2 {
		for _, row := range g.rows {
			if sk := keys.Normalize(row.SubGroup); sk == "" || sk == g.key {
				b.log.Warnw("row without subgroup inside split group, figures not counted",
					"country", country, "group", g.key, "line", row.Line)
			}
		}
		parent.IsParent = true
		for _, sk := range subOrder {
			parent.Subgroups = append(parent.Subgroups, *subs[sk])
		}
		return parent
	}

	var specs []subgroupSpec
	switch {
	case len(subOrder) == 1 && strings.ContainsAny(subs[subOrder[0]].Name, ",;"):
		specs = parseSubgroupList(subs[subOrder[0]].Name)
	case g.paren != "":
		specs = parseSubgroupList(g.paren)
	case len(subOrder) == 1:
		specs = []subgroupSpec{{name: subs[subOrder[0]].Name}}
	}
	attachSubgroups(&parent, specs)
	return parent
}

func mergeEnrichment(dst *model.Enrichment, row csv.EnrichedRow) {
	dst.AncientName = firstNonEmpty(dst.AncientName, row.AncientName)
	dst.Description = firstNonEmpty(dst.Description, row.Description)
	dst.SocietyType = firstNonEmpty(dst.SocietyType, row.SocietyType)
	dst.Religion = firstNonEmpty(dst.Religion, row.Religion)
	dst.LinguisticFamily = firstNonEmpty(dst.LinguisticFamily, row.LinguisticFamily)
	dst.HistoricalStatus = firstNonEmpty(dst.HistoricalStatus, row.HistoricalStatus)
	dst.Languages = union(dst.Languages, splitList(row.Language, ",", ";")...)
	dst.Sources = union(dst.Sources, splitList(row.Sources, ";", "|")...)
	dst.RegionsPresent = union(dst.RegionsPresent, splitList(row.RegionalPresence, ",", ";")...)
	dst.RegionsPresent = union(dst.RegionsPresent, splitList(row.Region, ",", ";")...)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return strings.TrimSpace(b)
}
