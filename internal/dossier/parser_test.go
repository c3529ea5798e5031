package dossier

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const algeria = `# PAYS : Algérie
Région : Afrique du Nord

## Anciens noms
- **Numidia** (203 BCE – 40 BCE)
- Maurétanie Césarienne (40 – 430)
→ Régence d'Alger
L'Algérie est un pays d'Afrique du Nord.
- Extra Name

## Description
Pays le plus vaste d'Afrique.

# ETHNIES
Les Berbères et les Arabes forment l'essentiel.

### Kabyles
**Ancien nom**: Zouaoua, Quinquegentiani
**Description**: Peuple berbère de Kabylie.
Ils vivent en montagne.

### Chaouis (Aurès)
**Description**: Berbères des Aurès.

## Notes
Chiffres 2025.
`

func TestParse_Dossier(t *testing.T) {
	t.Parallel()

	d := NewParser(DefaultRules(), nil).Parse("Algérie", "", algeria)

	require.Equal(t, "algerie", d.Key)
	require.Equal(t, "Afrique du Nord", d.Region)
	require.Equal(t, []string{"Numidia", "Maurétanie Césarienne", "Régence d'Alger"}, d.AncientNames)
	require.Equal(t, "L'Algérie est un pays d'Afrique du Nord.\nPays le plus vaste d'Afrique.", d.Description)
	require.Equal(t, "Les Berbères et les Arabes forment l'essentiel.", d.Summary)
	require.Equal(t, "Chiffres 2025.", d.Notes)

	require.Len(t, d.Ethnicities, 2)
	k := d.Ethnicities[0]
	require.Equal(t, "Kabyles", k.Name)
	require.Equal(t, "kabyles", k.Key)
	require.Equal(t, []string{"Zouaoua", "Quinquegentiani"}, k.AncientNames)
	require.Equal(t, "Peuple berbère de Kabylie.\nIls vivent en montagne.", k.Description)

	c := d.Ethnicities[1]
	require.Equal(t, "Chaouis", c.Name)
	require.Equal(t, "Berbères des Aurès.", c.Description)
	require.Empty(t, c.AncientNames)
}

func TestParse_RegionArgumentWins(t *testing.T) {
	t.Parallel()

	d := NewParser(DefaultRules(), nil).Parse("Algérie", "north", algeria)
	require.Equal(t, "north", d.Region)
}

func TestParse_LookaheadBound(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()
	rules.LookaheadLines = 2
	text := "# Pays\n## Anciens noms\n- Alpha\n- Beta\n- Gamma\n"

	d := NewParser(rules, nil).Parse("X", "", text)
	require.Equal(t, []string{"Alpha", "Beta"}, d.AncientNames)
	require.Equal(t, "- Gamma", d.Description)
}

func TestParse_NumberedHeadingEndsAncientSection(t *testing.T) {
	t.Parallel()

	text := "# 1. Pays\n### Anciens noms\n- Alpha\n## 2. Histoire\n- Beta\n"
	d := NewParser(DefaultRules(), nil).Parse("X", "", text)
	require.Equal(t, []string{"Alpha"}, d.AncientNames)
	require.Equal(t, "- Beta", d.Description)
}

func TestParse_DeeperHeadingStaysInSubsection(t *testing.T) {
	t.Parallel()

	text := "# Ethnies\n### Fon\n**Description**: Peuple du Bénin.\n#### Histoire\nRoyaume du Dahomey.\n### Adja\nTexte adja.\n"
	d := NewParser(DefaultRules(), nil).Parse("Bénin", "", text)

	require.Len(t, d.Ethnicities, 2)
	require.Equal(t, "Fon", d.Ethnicities[0].Name)
	require.Equal(t, "Peuple du Bénin.\nHistoire\nRoyaume du Dahomey.", d.Ethnicities[0].Description)
	require.Equal(t, "Adja", d.Ethnicities[1].Name)
	require.Equal(t, "Texte adja.", d.Ethnicities[1].Description)
}

func TestParse_DeeperHeadingBeforeFirstSubsection(t *testing.T) {
	t.Parallel()

	text := "# Ethnies\n#### Vue d'ensemble\nDeux grands groupes.\n### Fon\nTexte.\n"
	d := NewParser(DefaultRules(), nil).Parse("Bénin", "", text)

	require.Len(t, d.Ethnicities, 1)
	require.Equal(t, "Vue d'ensemble\nDeux grands groupes.", d.Summary)
}

func TestParse_ArrowNamesInAncientSection(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()
	rules.MaxAncientNames = 0
	text := "## Anciens noms\n➜ royaume du Kongo\n↳ Kongo dia Ntotila\n➔ royaume de Loango\n"
	d := NewParser(rules, nil).Parse("Congo", "", text)
	require.Equal(t, []string{"royaume du Kongo", "Kongo dia Ntotila", "royaume de Loango"}, d.AncientNames)
}

func TestParse_DescriptionHeadingRouting(t *testing.T) {
	t.Parallel()

	// A nested description heading ends ancient-name collection instead of
	// being read as a name, and one after the ethnic section returns to the
	// country narrative.
	text := "# Pays\n## Anciens noms\n- Dahomey\n### Histoire\nRoyaume côtier.\n# Ethnies\nIntro.\n### Fon\nTexte fon.\n## Aperçu\nFin du récit.\n"
	d := NewParser(DefaultRules(), nil).Parse("Bénin", "", text)

	require.Equal(t, []string{"Dahomey"}, d.AncientNames)
	require.Equal(t, "Royaume côtier.\nFin du récit.", d.Description)
	require.Equal(t, "Intro.", d.Summary)
	require.Len(t, d.Ethnicities, 1)
	require.Equal(t, "Texte fon.", d.Ethnicities[0].Description)
}

func TestParse_NoHeadings(t *testing.T) {
	t.Parallel()

	d := NewParser(DefaultRules(), nil).Parse("X", "", "\n\nJust prose.\nMore prose.\n")
	require.Equal(t, "Just prose.\nMore prose.", d.Description)
	require.NotNil(t, d.Ethnicities)
	require.Empty(t, d.Ethnicities)
}

func TestParse_UncappedAncientNames(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()
	rules.MaxAncientNames = 0
	d := NewParser(rules, nil).Parse("X", "", "## Anciens noms\n- A1\n- B2\n- C3\n- D4\n")
	require.Len(t, d.AncientNames, 4)
}

func TestCandidate(t *testing.T) {
	t.Parallel()

	r := DefaultRules().compile()
	tests := []struct {
		line    string
		want    string
		ok      bool
		pattern pattern
	}{
		{line: "- **Numidia** (203 BCE – 40 BCE)", want: "Numidia", ok: true, pattern: patternBold},
		{line: "**Nom officiel** : République du Bénin", want: "République du Bénin", ok: true, pattern: patternBold},
		{line: "* Royaume du Dahomey — capitale Abomey", want: "Royaume du Dahomey", ok: true, pattern: patternBullet},
		{line: "2. Ifriqiya (VIIe siècle, 670)", want: "Ifriqiya", ok: true, pattern: patternNumbered},
		{line: "-> Gold Coast", want: "Gold Coast", ok: true, pattern: patternArrow},
		{line: "→ Côte-de-l'Or", want: "Côte-de-l'Or", ok: true, pattern: patternArrow},
		{line: "=> Soudan français", want: "Soudan français", ok: true, pattern: patternArrow},
		{line: "⇒ Haut-Sénégal-Niger", want: "Haut-Sénégal-Niger", ok: true, pattern: patternArrow},
		{line: "➜ royaume du Kongo", want: "royaume du Kongo", ok: true, pattern: patternArrow},
		{line: "➔ royaume de Loango", want: "royaume de Loango", ok: true, pattern: patternArrow},
		{line: "↳ kongo dia Ntotila", want: "kongo dia Ntotila", ok: true, pattern: patternArrow},
		{line: "Dahomey : 1894-1960", want: "Dahomey", ok: true, pattern: patternColon},
		{line: "Nom officiel : Burkina Faso", want: "Burkina Faso", ok: true, pattern: patternColon},
		{line: "🏛️ Haute-Volta", want: "Haute-Volta", ok: true, pattern: patternBare},
		{line: "Le royaume était prospère", ok: false, pattern: patternBare},
		{line: "- La colonie française du Dahomey", ok: false, pattern: patternBullet},
		{line: "- The kingdom was large", ok: false, pattern: patternBullet},
		{line: "lowercase prose line", ok: false, pattern: patternNone},
		{line: "Ends with a period.", ok: false, pattern: patternNone},
		{line: "- " + strings.Repeat("x", 120), ok: false, pattern: patternBullet},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			p, _ := r.extract(tc.line)
			require.Equal(t, tc.pattern, p, "pattern")
			got, ok := r.candidate(tc.line)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				require.Equal(t, tc.want, got)
			}
		})
	}
}

func TestLoadRules(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lookahead_lines: 10\nethnic_headings: [tribus]\n"), 0o644))

	r, err := LoadRules(path)
	require.NoError(t, err)
	require.Equal(t, 10, r.LookaheadLines)
	require.Equal(t, []string{"tribus"}, r.EthnicHeadings)
	require.Equal(t, 3, r.MaxAncientNames, "absent keys keep defaults")

	d := NewParser(r, nil).Parse("X", "", "# Tribus\n### Fon\nText\n")
	require.Len(t, d.Ethnicities, 1)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("lookahead_lines: 0\n"), 0o644))
	_, err = LoadRules(bad)
	require.Error(t, err)

	r, err = LoadRules("")
	require.NoError(t, err)
	require.Equal(t, DefaultRules().LookaheadLines, r.LookaheadLines)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "collecting-ancient-names", stateAncient.String())
	require.Equal(t, "idle", stateIdle.String())
}
