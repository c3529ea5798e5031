package records

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"ethnograph/internal/aggregate"
	"ethnograph/internal/model"
	"ethnograph/internal/parser/csv"
)

const legacyHeader = "Ethnicity_or_Subgroup,pourcentage dans la population du pays,population de l'ethnie estimée dans le pays,pourcentage dans la population totale d'Afrique\n"

const enrichedHeader = "Group,Sub_group,Population_2025,Percentage_in_country,Percentage_in_Africa,Language,Region,Sources,Ancient_Name,Description\n"

func build(t *testing.T, text string) model.CountryRecord {
	t.Helper()
	return NewBuilder(nil).Country("Pays X", "south", csv.Parse(text))
}

func requireSums(t *testing.T, recs []model.EthnicRecord) {
	t.Helper()
	for _, r := range recs {
		if !r.HasSubgroups() {
			continue
		}
		var pop int64
		var pc, pa float64
		for _, s := range r.Subgroups {
			require.False(t, s.IsParent, "subgroup %s is a parent", s.Key)
			pop += s.Population
			pc += s.PercentageInCountry
			pa += s.PercentageInAfrica
		}
		require.Equal(t, r.Population, pop, r.Key)
		require.InDelta(t, r.PercentageInCountry, pc, aggregate.Tolerance, r.Key)
		require.InDelta(t, r.PercentageInAfrica, pa, aggregate.Tolerance, r.Key)
	}
}

func TestLegacy_SlashSingleSubgroup(t *testing.T) {
	t.Parallel()

	c := build(t, legacyHeader+"Basarwa/San,2.5,150000,0.01\n")
	require.Equal(t, model.SchemaLegacy, c.Schema)
	require.Equal(t, "paysX", c.Slug)
	require.Len(t, c.Ethnicities, 1)

	p := c.Ethnicities[0]
	require.Equal(t, "Basarwa", p.Name)
	require.True(t, p.IsParent)
	require.Len(t, p.Subgroups, 1)

	s := p.Subgroups[0]
	require.Equal(t, "San", s.Name)
	require.Equal(t, "san", s.Key)
	require.Equal(t, int64(150000), s.Population)
	require.Equal(t, 2.5, s.PercentageInCountry)
	require.Equal(t, 0.01, s.PercentageInAfrica)
	requireSums(t, c.Ethnicities)
}

func TestLegacy_EqualSplitWithRemainder(t *testing.T) {
	t.Parallel()

	c := build(t, legacyHeader+"A/B/C/D,3,100,0.3\nPlain,1,10,0\n")
	require.Len(t, c.Ethnicities, 2)

	p := c.Ethnicities[0]
	require.Len(t, p.Subgroups, 3)
	require.Equal(t, []int64{34, 33, 33}, []int64{p.Subgroups[0].Population, p.Subgroups[1].Population, p.Subgroups[2].Population})
	require.InDelta(t, 1.02, p.Subgroups[0].PercentageInCountry, 1e-9)
	requireSums(t, c.Ethnicities)

	require.False(t, c.Ethnicities[1].IsParent)
	require.Empty(t, c.Ethnicities[1].Subgroups)
}

func TestLegacy_ZeroPopulationKeepsPercentages(t *testing.T) {
	t.Parallel()

	c := build(t, legacyHeader+"A/B/C,4,n/a,0.2\n")
	p := c.Ethnicities[0]
	require.Equal(t, int64(0), p.Population)
	require.InDelta(t, 4, p.PercentageInCountry, 1e-9)
	require.InDelta(t, 2, p.Subgroups[0].PercentageInCountry, 1e-9)
}

func TestLegacy_SkipsDuplicatesAndBlankNames(t *testing.T) {
	t.Parallel()

	c := build(t, legacyHeader+"Fon,1,10,0\n,2,20,0\nfon,3,30,0\nFon/Fon,1,1,0\n")
	require.Len(t, c.Ethnicities, 1)
	require.Equal(t, int64(10), c.Ethnicities[0].Population)
}

func TestEnriched_DistinctSubgroupRows(t *testing.T) {
	t.Parallel()

	c := build(t, enrichedHeader+
		"Chokwe,Chokwe proper,500000,1.5,0.03,\"Chokwe, Portuguese\",Lunda Norte,Ethnologue,,Hunters\n"+
		"Chokwe,Lunda,300000,0.9,0.02,Lunda; Chokwe,Lunda Sul,Ethnologue | CIA,Lunda Empire,\n")

	require.Len(t, c.Ethnicities, 1)
	p := c.Ethnicities[0]
	require.Equal(t, "Chokwe", p.Name)
	require.True(t, p.IsParent)
	require.Equal(t, int64(800000), p.Population)
	require.Len(t, p.Subgroups, 2)
	require.Equal(t, "chokweProper", p.Subgroups[0].Key)
	require.Equal(t, int64(300000), p.Subgroups[1].Population)
	require.Equal(t, []string{"Chokwe", "Portuguese", "Lunda"}, p.Languages)
	require.Equal(t, []string{"Ethnologue", "CIA"}, p.Sources)
	require.Equal(t, []string{"Lunda Norte", "Lunda Sul"}, p.RegionsPresent)
	require.Equal(t, "Hunters", p.Description)
	require.Equal(t, "Lunda Empire", p.AncientName)
	requireSums(t, c.Ethnicities)
}

func TestEnriched_SubgroupListWithExplicitFigures(t *testing.T) {
	t.Parallel()

	c := build(t, enrichedHeader+
		"Bemba (Bisa),\"Lunda: 300000, Bisa, Lala\",1000000,10,0.1,,,,,\n")

	p := c.Ethnicities[0]
	require.Equal(t, "Bemba", p.Name)
	require.Len(t, p.Subgroups, 3, "Sub_group list takes priority over parenthetical")
	require.Equal(t, int64(300000), p.Subgroups[0].Population)
	require.Equal(t, int64(350000), p.Subgroups[1].Population)
	require.Equal(t, int64(350000), p.Subgroups[2].Population)
	require.Equal(t, int64(1000000), p.Population)
	require.InDelta(t, 3, p.Subgroups[0].PercentageInCountry, 1e-9)
	requireSums(t, c.Ethnicities)
}

func TestEnriched_ParentheticalCandidates(t *testing.T) {
	t.Parallel()

	c := build(t, enrichedHeader+"\"Chokwe (Lunda, Luvale)\",,90,0.9,0.09,,,,,\n")

	p := c.Ethnicities[0]
	require.Equal(t, "chokwe", p.Key)
	require.Len(t, p.Subgroups, 2)
	require.Equal(t, int64(45), p.Subgroups[0].Population)
	require.Equal(t, "luvale", p.Subgroups[1].Key)
	requireSums(t, c.Ethnicities)
}

func TestEnriched_SingleDistinctSubgroup(t *testing.T) {
	t.Parallel()

	c := build(t, enrichedHeader+
		"Ovimbundu,Ovimbundu,100,1,0.1,,,,,\n"+
		"Kongo,Bakongo,50,0.5,0.05,,,,,\n")

	require.Len(t, c.Ethnicities, 2)
	require.False(t, c.Ethnicities[0].IsParent, "subgroup equal to group is ignored")

	k := c.Ethnicities[1]
	require.True(t, k.IsParent)
	require.Len(t, k.Subgroups, 1)
	require.Equal(t, int64(50), k.Subgroups[0].Population)
	require.True(t, math.Abs(k.Subgroups[0].PercentageInCountry-0.5) < 1e-9)
}

func TestEnriched_EmptyTable(t *testing.T) {
	t.Parallel()

	c := build(t, enrichedHeader)
	require.NotNil(t, c.Ethnicities)
	require.Empty(t, c.Ethnicities)
}
