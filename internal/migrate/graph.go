// Package migrate loads matched country records into the relational sink.
//
// BuildGraph flattens the records into one node list per table. Engine.Run
// then writes the nodes in dependency order, resolving foreign keys through
// an explicit LoadContext.
package migrate

import (
	"strings"

	"go.uber.org/zap"

	"ethnograph/internal/aggregate"
	"ethnograph/internal/keys"
	"ethnograph/internal/model"
)

// Role is an ethnic group's position in the hierarchy.
type Role int

const (
	RoleStandalone Role = iota
	RoleParent
	RoleSubgroup
)

func (r Role) String() string {
	switch r {
	case RoleParent:
		return "parent"
	case RoleSubgroup:
		return "subgroup"
	default:
		return "standalone"
	}
}

type RegionNode struct {
	Code       string
	Name       string
	Population int64
}

type CountryNode struct {
	Slug               string
	Name               string
	RegionCode         string
	Population         int64
	PercentageInRegion float64
	PercentageInAfrica float64
	Schema             model.Schema
	Description        string
	AncientNames       []string
	Summary            string
	Notes              string
}

type LanguageNode struct {
	Code string
	Name string
}

// GroupNode is one ethnic group, merged over every country it appears in.
type GroupNode struct {
	Slug               string
	Name               string
	Role               Role
	ParentSlug         string
	TotalPopulation    int64
	PercentageInAfrica float64
	model.Enrichment
}

// PresenceNode is the population of one group within one country.
type PresenceNode struct {
	GroupSlug           string
	CountrySlug         string
	Population          int64
	PercentageInCountry float64
	PercentageInRegion  float64
	PercentageInAfrica  float64
}

type LanguageLink struct {
	GroupSlug    string
	LanguageCode string
	IsPrimary    bool
}

type SourceLink struct {
	GroupSlug   string
	SourceTitle string
}

// Graph holds every row the load writes, grouped by table.
type Graph struct {
	Regions        []RegionNode
	Countries      []CountryNode
	Languages      []LanguageNode
	Sources        []string
	Groups         []*GroupNode
	Presences      []PresenceNode
	GroupLanguages []LanguageLink
	GroupSources   []SourceLink
}

type graphBuilder struct {
	log       *zap.SugaredLogger
	g         Graph
	regions   map[string]bool
	countries map[string]bool
	groups    map[string]*GroupNode
	presence  map[[2]string]bool
	languages map[string]bool
	sources   map[string]bool
}

// BuildGraph derives the load graph from the region index and the matched
// country records.
//
// Groups are global by slug: a group listed in several countries becomes one
// node with one presence per country. When a slug appears with different
// roles, parent wins over subgroup and subgroup over standalone, so the
// hierarchy stays one level deep. A group's totals are the sums over its
// presences, except a parent's, which are the sums over its final subgroups.
// A country whose region is missing from the index gets a region node named
// after its code. Region populations are the sums of their countries'
// inferred populations; duplicate countries are dropped before summing.
func BuildGraph(regions []model.Region, countries []model.CountryRecord, log *zap.SugaredLogger) Graph {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	b := &graphBuilder{
		log:       log,
		regions:   make(map[string]bool),
		countries: make(map[string]bool),
		groups:    make(map[string]*GroupNode),
		presence:  make(map[[2]string]bool),
		languages: make(map[string]bool),
		sources:   make(map[string]bool),
	}
	for _, r := range regions {
		b.addRegion(r.Code, r.Name)
	}

	kept := make([]model.CountryRecord, 0, len(countries))
	for _, c := range countries {
		if c.Slug == "" || b.countries[c.Slug] {
			log.Warnw("duplicate or unnamed country skipped", "stage", "graph", "country", c.Name, "slug", c.Slug)
			continue
		}
		b.countries[c.Slug] = true
		kept = append(kept, c)
	}

	totals := aggregate.RegionTotals(kept)
	var africa int64
	for _, t := range totals {
		africa += t
	}
	for _, c := range kept {
		if !b.regions[c.Region] {
			log.Warnw("region missing from index", "stage", "graph", "country", c.Slug, "region", c.Region)
			b.addRegion(c.Region, c.Region)
		}
		regionTotal := totals[c.Region]
		pop := aggregate.CountryPopulation(c.Ethnicities)
		b.g.Countries = append(b.g.Countries, CountryNode{
			Slug:               c.Slug,
			Name:               c.Name,
			RegionCode:         c.Region,
			Population:         pop,
			PercentageInRegion: aggregate.Percent(pop, regionTotal),
			PercentageInAfrica: aggregate.Percent(pop, africa),
			Schema:             c.Schema,
			Description:        c.Description,
			AncientNames:       c.AncientNames,
			Summary:            c.EthnicGroupsSummary,
			Notes:              c.Notes,
		})

		for _, r := range c.Ethnicities {
			role := RoleStandalone
			if r.HasSubgroups() {
				role = RoleParent
			}
			parent := b.addGroup(r, role, "")
			b.addPresence(r, parent, c.Slug, regionTotal)
			if role != RoleParent || parent == "" {
				continue
			}
			for _, s := range r.Subgroups {
				b.addPresence(s, b.addGroup(s, RoleSubgroup, parent), c.Slug, regionTotal)
			}
		}
	}

	for i := range b.g.Regions {
		b.g.Regions[i].Population = totals[b.g.Regions[i].Code]
	}
	b.settle()
	for _, gr := range b.g.Groups {
		b.link(gr)
	}
	return b.g
}

// settle restores the hierarchy invariant once roles are final. A parent
// whose subgroups were all promoted elsewhere becomes standalone, and every
// remaining parent's totals are recomputed from its subgroups.
func (b *graphBuilder) settle() {
	children := make(map[string][]*GroupNode)
	for _, gr := range b.g.Groups {
		if gr.Role == RoleSubgroup {
			children[gr.ParentSlug] = append(children[gr.ParentSlug], gr)
		}
	}
	for _, gr := range b.g.Groups {
		if gr.Role != RoleParent {
			continue
		}
		subs := children[gr.Slug]
		if len(subs) == 0 {
			b.log.Warnw("parent lost all subgroups; kept as standalone", "stage", "graph", "group", gr.Slug)
			gr.Role = RoleStandalone
			continue
		}
		gr.TotalPopulation, gr.PercentageInAfrica = 0, 0
		for _, s := range subs {
			gr.TotalPopulation += s.TotalPopulation
			gr.PercentageInAfrica += s.PercentageInAfrica
		}
	}
}

func (b *graphBuilder) addRegion(code, name string) {
	if b.regions[code] {
		return
	}
	b.regions[code] = true
	b.g.Regions = append(b.g.Regions, RegionNode{Code: code, Name: name})
}

func slugOf(r model.EthnicRecord) string {
	if r.Key != "" {
		return r.Key
	}
	return keys.Normalize(r.Name)
}

// addGroup merges r into the node for its slug and returns the slug ("" when
// the record has no usable name).
func (b *graphBuilder) addGroup(r model.EthnicRecord, role Role, parentSlug string) string {
	slug := slugOf(r)
	if slug == "" {
		b.log.Warnw("ethnic record without name skipped", "stage", "graph")
		return ""
	}
	gr, ok := b.groups[slug]
	if !ok {
		gr = &GroupNode{Slug: slug, Name: r.Name, Role: role, ParentSlug: parentSlug}
		gr.Enrichment = r.Enrichment
		gr.Languages = append([]string(nil), r.Languages...)
		gr.Sources = append([]string(nil), r.Sources...)
		gr.RegionsPresent = append([]string(nil), r.RegionsPresent...)
		b.groups[slug] = gr
		b.g.Groups = append(b.g.Groups, gr)
		return slug
	}

	switch {
	case gr.Role == role:
		if role == RoleSubgroup && gr.ParentSlug != parentSlug {
			b.log.Warnw("subgroup listed under several parents; first kept",
				"stage", "graph", "group", slug, "parent", gr.ParentSlug, "other", parentSlug)
		}
	case role == RoleParent:
		if gr.Role == RoleSubgroup {
			b.log.Warnw("group is both parent and subgroup; kept as parent", "stage", "graph", "group", slug, "parent", gr.ParentSlug)
		}
		gr.Role, gr.ParentSlug = RoleParent, ""
	case role == RoleSubgroup && gr.Role == RoleStandalone:
		gr.Role, gr.ParentSlug = RoleSubgroup, parentSlug
	}
	mergeEnrichment(&gr.Enrichment, r.Enrichment)
	return slug
}

func mergeEnrichment(dst *model.Enrichment, src model.Enrichment) {
	fill := func(d *string, s string) {
		if *d == "" {
			*d = s
		}
	}
	fill(&dst.AncientName, src.AncientName)
	fill(&dst.Description, src.Description)
	fill(&dst.SocietyType, src.SocietyType)
	fill(&dst.Religion, src.Religion)
	fill(&dst.LinguisticFamily, src.LinguisticFamily)
	fill(&dst.HistoricalStatus, src.HistoricalStatus)
	dst.RegionsPresent = appendNew(dst.RegionsPresent, src.RegionsPresent)
	dst.Languages = appendNew(dst.Languages, src.Languages)
	dst.Sources = appendNew(dst.Sources, src.Sources)
}

func appendNew(dst, src []string) []string {
	for _, s := range src {
		found := false
		for _, d := range dst {
			if strings.EqualFold(d, s) {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}

func (b *graphBuilder) addPresence(r model.EthnicRecord, slug, country string, regionTotal int64) {
	if slug == "" {
		return
	}
	k := [2]string{slug, country}
	if b.presence[k] {
		b.log.Warnw("group listed twice in one country; first kept", "stage", "graph", "group", slug, "country", country)
		return
	}
	b.presence[k] = true
	b.g.Presences = append(b.g.Presences, PresenceNode{
		GroupSlug:           slug,
		CountrySlug:         country,
		Population:          r.Population,
		PercentageInCountry: r.PercentageInCountry,
		PercentageInRegion:  aggregate.Percent(r.Population, regionTotal),
		PercentageInAfrica:  r.PercentageInAfrica,
	})
	gr := b.groups[slug]
	gr.TotalPopulation += r.Population
	gr.PercentageInAfrica += r.PercentageInAfrica
}

// link emits language and source nodes and the group's link rows. The first
// language listed for a group is its primary language.
func (b *graphBuilder) link(gr *GroupNode) {
	seen := make(map[string]bool)
	for _, name := range gr.Languages {
		name = strings.TrimSpace(name)
		code := keys.Normalize(name)
		if code == "" || seen[code] {
			continue
		}
		if !b.languages[code] {
			b.languages[code] = true
			b.g.Languages = append(b.g.Languages, LanguageNode{Code: code, Name: name})
		}
		b.g.GroupLanguages = append(b.g.GroupLanguages, LanguageLink{GroupSlug: gr.Slug, LanguageCode: code, IsPrimary: len(seen) == 0})
		seen[code] = true
	}

	linked := make(map[string]bool)
	for _, title := range gr.Sources {
		title = strings.TrimSpace(title)
		if title == "" || linked[title] {
			continue
		}
		if !b.sources[title] {
			b.sources[title] = true
			b.g.Sources = append(b.g.Sources, title)
		}
		b.g.GroupSources = append(b.g.GroupSources, SourceLink{GroupSlug: gr.Slug, SourceTitle: title})
		linked[title] = true
	}
}

// GroupsByRole returns the groups with role r in first-seen order.
func (g Graph) GroupsByRole(r Role) []*GroupNode {
	var out []*GroupNode
	for _, gr := range g.Groups {
		if gr.Role == r {
			out = append(out, gr)
		}
	}
	return out
}
