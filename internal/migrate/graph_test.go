package migrate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ethnograph/internal/model"
)

func rec(name, key string, pop int64, pct float64, subs ...model.EthnicRecord) model.EthnicRecord {
	r := model.EthnicRecord{Name: name, Key: key, Population: pop, PercentageInCountry: pct, PercentageInAfrica: pct / 100}
	if len(subs) > 0 {
		r.IsParent = true
		r.Subgroups = subs
	}
	return r
}

func fixture() ([]model.Region, []model.CountryRecord) {
	regions := []model.Region{{Code: "west", Name: "Afrique de l'Ouest"}}
	ewe := rec("Ewe", "ewe", 200, 20)
	ewe.Languages = []string{"Ewe", "Français", "ewe"}
	ewe.Sources = []string{"Ethnologue 2024", " Ethnologue 2024 "}
	ewe.Description = "Peuple du Togo."

	countries := []model.CountryRecord{
		{
			Name: "Bénin", Slug: "benin", Region: "west", Schema: model.SchemaEnriched,
			AncientNames: []string{"Dahomey"},
			Ethnicities: []model.EthnicRecord{
				rec("Fon", "fon", 500, 50, rec("Adja", "adja", 300, 30), rec("Yoruba", "yoruba", 200, 20)),
			},
		},
		{
			Name: "Togo", Slug: "togo", Region: "west", Schema: model.SchemaLegacy,
			Ethnicities: []model.EthnicRecord{rec("Adja", "adja", 100, 10), ewe},
		},
		{
			Name: "Tchad", Slug: "tchad", Region: "central",
			Ethnicities: []model.EthnicRecord{rec("Sara", "sara", 300, 30)},
		},
	}
	return regions, countries
}

func TestBuildGraph(t *testing.T) {
	t.Parallel()

	regions, countries := fixture()
	g := BuildGraph(regions, countries, nil)

	require.Equal(t, []RegionNode{
		{Code: "west", Name: "Afrique de l'Ouest", Population: 2000},
		{Code: "central", Name: "central", Population: 1000},
	}, g.Regions)
	require.Len(t, g.Countries, 3)
	require.Equal(t, int64(1000), g.Countries[0].Population)
	require.InDelta(t, 50.0, g.Countries[0].PercentageInRegion, 1e-9)
	require.InDelta(t, 100.0/3, g.Countries[0].PercentageInAfrica, 1e-9)
	require.InDelta(t, 100.0, g.Countries[2].PercentageInRegion, 1e-9)

	bySlug := map[string]*GroupNode{}
	for _, gr := range g.Groups {
		bySlug[gr.Slug] = gr
	}
	require.Equal(t, RoleParent, bySlug["fon"].Role)
	require.Equal(t, RoleSubgroup, bySlug["adja"].Role, "standalone elsewhere, subgroup wins")
	require.Equal(t, "fon", bySlug["adja"].ParentSlug)
	require.Equal(t, int64(400), bySlug["adja"].TotalPopulation)
	require.InDelta(t, 0.4, bySlug["adja"].PercentageInAfrica, 1e-9)
	require.Equal(t, int64(600), bySlug["fon"].TotalPopulation, "sum of adja and yoruba totals")
	require.Equal(t, RoleStandalone, bySlug["ewe"].Role)

	require.Len(t, g.Presences, 6)
	var adjaTogo PresenceNode
	for _, p := range g.Presences {
		if p.GroupSlug == "adja" && p.CountrySlug == "togo" {
			adjaTogo = p
		}
	}
	// west total = 1000 (benin) + 1000 (togo)
	require.InDelta(t, 5.0, adjaTogo.PercentageInRegion, 1e-9)

	require.Equal(t, []LanguageNode{{Code: "ewe", Name: "Ewe"}, {Code: "francais", Name: "Français"}}, g.Languages)
	require.Equal(t, []LanguageLink{
		{GroupSlug: "ewe", LanguageCode: "ewe", IsPrimary: true},
		{GroupSlug: "ewe", LanguageCode: "francais"},
	}, g.GroupLanguages)
	require.Equal(t, []string{"Ethnologue 2024"}, g.Sources)
	require.Len(t, g.GroupSources, 1)
}

func TestBuildGraph_ParentWinsOverSubgroup(t *testing.T) {
	t.Parallel()

	countries := []model.CountryRecord{
		{Slug: "a", Region: "south", Ethnicities: []model.EthnicRecord{
			rec("Basarwa", "basarwa", 100, 1, rec("San", "san", 100, 1)),
		}},
		{Slug: "b", Region: "south", Ethnicities: []model.EthnicRecord{
			rec("San", "san", 50, 1, rec("Khwe", "khwe", 50, 1)),
		}},
	}
	g := BuildGraph(nil, countries, nil)

	roles := map[string]Role{}
	parents := map[string]string{}
	for _, gr := range g.Groups {
		roles[gr.Slug] = gr.Role
		parents[gr.Slug] = gr.ParentSlug
	}
	require.Equal(t, RoleParent, roles["san"])
	require.Equal(t, "", parents["san"])
	require.Equal(t, "san", parents["khwe"])
	require.Equal(t, RoleStandalone, roles["basarwa"], "its only subgroup was promoted")
	require.Len(t, g.GroupsByRole(RoleParent), 1)
}

func TestBuildGraph_ParentTotalsFollowFinalSubgroups(t *testing.T) {
	t.Parallel()

	countries := []model.CountryRecord{
		{Slug: "a", Region: "central", Ethnicities: []model.EthnicRecord{
			rec("Bantu", "bantu", 100, 10, rec("Kongo", "kongo", 100, 10)),
		}},
		{Slug: "b", Region: "central", Ethnicities: []model.EthnicRecord{
			rec("Kongo", "kongo", 50, 5, rec("Vili", "vili", 50, 5)),
		}},
	}
	g := BuildGraph(nil, countries, nil)

	bySlug := map[string]*GroupNode{}
	for _, gr := range g.Groups {
		bySlug[gr.Slug] = gr
	}
	require.Equal(t, RoleStandalone, bySlug["bantu"].Role)
	require.Equal(t, int64(100), bySlug["bantu"].TotalPopulation)

	kongo := bySlug["kongo"]
	require.Equal(t, RoleParent, kongo.Role)
	require.Equal(t, int64(50), kongo.TotalPopulation)
	require.InDelta(t, bySlug["vili"].PercentageInAfrica, kongo.PercentageInAfrica, 1e-9)

	for _, p := range g.GroupsByRole(RoleParent) {
		var sum int64
		for _, sub := range g.GroupsByRole(RoleSubgroup) {
			if sub.ParentSlug == p.Slug {
				sum += sub.TotalPopulation
			}
		}
		require.Equal(t, p.TotalPopulation, sum, "parent %s", p.Slug)
	}
}

func TestBuildGraph_DuplicatesSkipped(t *testing.T) {
	t.Parallel()

	countries := []model.CountryRecord{
		{Slug: "x", Region: "r", Ethnicities: []model.EthnicRecord{rec("Fon", "fon", 1, 1), rec("Fon", "fon", 2, 1)}},
		{Slug: "x", Region: "r"},
		{Slug: "", Region: "r"},
	}
	g := BuildGraph([]model.Region{{Code: "r", Name: "R"}}, countries, nil)
	require.Len(t, g.Countries, 1)
	require.Len(t, g.Presences, 1)
	require.Equal(t, int64(1), g.Groups[0].TotalPopulation)
}

func TestBuildGraph_DuplicateCountryDoesNotInflateRegion(t *testing.T) {
	t.Parallel()

	benin := model.CountryRecord{Slug: "benin", Region: "west", Ethnicities: []model.EthnicRecord{rec("Fon", "fon", 500, 50)}}
	togo := model.CountryRecord{Slug: "togo", Region: "west", Ethnicities: []model.EthnicRecord{rec("Ewe", "ewe", 300, 30)}}
	g := BuildGraph(nil, []model.CountryRecord{benin, togo, benin}, nil)

	require.Equal(t, int64(2000), g.Regions[0].Population)
	require.InDelta(t, 50.0, g.Countries[0].PercentageInRegion, 1e-9)
	require.InDelta(t, 25.0, g.Presences[0].PercentageInRegion, 1e-9)
}

func TestRoleString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "parent", RoleParent.String())
	require.Equal(t, "subgroup", RoleSubgroup.String())
	require.Equal(t, "standalone", RoleStandalone.String())
}
