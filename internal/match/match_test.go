package match

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ethnograph/internal/keys"
	"ethnograph/internal/model"
)

func descs(names ...string) []model.EthnicityDescription {
	out := make([]model.EthnicityDescription, len(names))
	for i, n := range names {
		out[i] = model.EthnicityDescription{Name: n, Key: keys.Normalize(n), Description: n + " text"}
	}
	return out
}

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want float64
	}{
		{a: "Fon", b: "Fon", want: 1},
		{a: "Fon", b: "fon", want: 1},
		{a: "Fon & apparentés", b: "Fon", want: 0.8},
		{a: "Chokwe proper", b: "Chokwe", want: 0.8},
		{a: "Peul Fulani", b: "Fulani Haoussa", want: 0.5},
		{a: "Adja Tado", b: "Ewe Mina Tado", want: 1.0 / 3},
		{a: "Fon", b: "Adja", want: 0},
		{a: "", b: "Adja", want: 0},
	}
	for _, tc := range tests {
		require.InDelta(t, tc.want, Score(tc.a, tc.b), 1e-9, "%q vs %q", tc.a, tc.b)
	}
}

func TestScore_Symmetric(t *testing.T) {
	t.Parallel()

	names := []string{"Fon", "Fon & apparentés", "Adja", "Peul Fulani", "Fulani", "Éwé Mina", "Mina", "", "Bariba Baatonu"}
	for _, a := range names {
		for _, b := range names {
			require.Equal(t, Score(a, b), Score(b, a), "%q vs %q", a, b)
		}
	}
}

func TestBest(t *testing.T) {
	t.Parallel()

	pool := descs("Fon", "Adja")

	idx, score := Best("Fon", pool)
	require.Equal(t, 0, idx)
	require.Equal(t, 1.0, score)

	idx, score = Best("Fon & apparentés", pool)
	require.Equal(t, 0, idx)
	require.Equal(t, 0.8, score)

	idx, _ = Best("Yoruba", pool)
	require.Equal(t, -1, idx)
}

func TestBest_ExactBeatsEarlierSubstring(t *testing.T) {
	t.Parallel()

	idx, score := Best("Fon", descs("Fon & apparentés", "Fon"))
	require.Equal(t, 1, idx)
	require.Equal(t, 1.0, score)
}

func TestBest_UsesStoredKey(t *testing.T) {
	t.Parallel()

	pool := []model.EthnicityDescription{{Name: "Les Fon du plateau", Key: "fon"}}
	idx, score := Best("Fon", pool)
	require.Equal(t, 0, idx)
	require.Equal(t, 1.0, score)
}

func TestCountry_MergeAndStats(t *testing.T) {
	t.Parallel()

	c := model.CountryRecord{
		Name: "Bénin",
		Slug: "benin",
		Ethnicities: []model.EthnicRecord{
			{
				Name: "Fon", Key: "fon", IsParent: true,
				Enrichment: model.Enrichment{Description: "from csv"},
				Subgroups: []model.EthnicRecord{
					{Name: "Adja", Key: "adja"},
					{Name: "Yoruba", Key: "yoruba"},
				},
			},
		},
	}
	d := &model.CountryDescription{
		Name:         "Bénin",
		Description:  "Narrative",
		AncientNames: []string{"Dahomey"},
		Summary:      "Summary",
		Ethnicities: []model.EthnicityDescription{
			{Name: "Fon", Key: "fon", Description: "Fon text", AncientNames: []string{"Fongbe", "Dahomeans"}},
			{Name: "Adja", Key: "adja", Description: "Adja text"},
			{Name: "Yorubaland", Key: "yorubaland", Description: "Yoruba text"},
		},
	}

	got, st := New(nil).Country(c, d)

	require.Equal(t, "Narrative", got.Description)
	require.Equal(t, []string{"Dahomey"}, got.AncientNames)
	require.Equal(t, "Summary", got.EthnicGroupsSummary)

	fon := got.Ethnicities[0]
	require.Equal(t, "from csv", fon.Description, "csv field must not be overwritten")
	require.Equal(t, "Fongbe, Dahomeans", fon.AncientName)
	require.Equal(t, "Fon", fon.MatchedDescription)
	require.Equal(t, "Adja text", fon.Subgroups[0].Description)
	require.Equal(t, "Yoruba text", fon.Subgroups[1].Description)
	require.Equal(t, 0.8, fon.Subgroups[1].MatchScore)

	require.Equal(t, 3, st.Total)
	require.Equal(t, 3, st.Matched)
	require.False(t, st.Partial)

	require.Equal(t, "", c.Ethnicities[0].AncientName, "input record must not be mutated")
}

func TestCountry_UnmatchedSuggestions(t *testing.T) {
	t.Parallel()

	c := model.CountryRecord{
		Slug: "x",
		Ethnicities: []model.EthnicRecord{
			{Name: "Fon", Key: "fon"},
			{Name: "Bariba", Key: "bariba"},
		},
	}
	d := &model.CountryDescription{Ethnicities: descs("Fon", "Baatombu", "Dendi", "Yom", "Lokpa")}

	_, st := New(nil).Country(c, d)
	require.Equal(t, 2, st.Total)
	require.Equal(t, 1, st.Matched)
	require.Equal(t, 1, st.Unmatched)
	require.True(t, st.Partial)
	require.Len(t, st.UnmatchedNames, 1)
	require.Equal(t, "Bariba", st.UnmatchedNames[0].Name)
	require.Len(t, st.UnmatchedNames[0].Suggestions, MaxSuggestions)

	var rep Report
	rep.Add(st)
	require.Equal(t, 1, rep.PartialCountries)
	require.Equal(t, 1, rep.Unmatched)
}

func TestCountry_NoDossier(t *testing.T) {
	t.Parallel()

	c := model.CountryRecord{Slug: "x", Ethnicities: []model.EthnicRecord{{Name: "Fon", Key: "fon"}}}
	got, st := New(nil).Country(c, nil)
	require.False(t, st.HasDossier)
	require.Equal(t, 1, st.Unmatched)
	require.Empty(t, st.UnmatchedNames[0].Suggestions)
	require.Equal(t, "", got.Ethnicities[0].Description)
}
