package dossier

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"ethnograph/internal/keys"
)

// Rules holds the corpus conventions the scanner relies on. Keyword lists
// are compared on normalized words (lowercase, no diacritics), so
// "Ethnies", "ETHNIES" and "ethnies" are the same keyword.
type Rules struct {
	CountryHeadings     []string `yaml:"country_headings"`
	EthnicHeadings      []string `yaml:"ethnic_headings"`
	AncientHeadings     []string `yaml:"ancient_headings"`
	DescriptionHeadings []string `yaml:"description_headings"`
	NotesHeadings       []string `yaml:"notes_headings"`

	AncientLabels     []string `yaml:"ancient_labels"`
	DescriptionLabels []string `yaml:"description_labels"`
	RegionLabels      []string `yaml:"region_labels"`

	// BoilerplatePrefixes are stripped from the start of a candidate name.
	BoilerplatePrefixes []string `yaml:"boilerplate_prefixes"`

	// SentenceStarters and VerbCues reject candidates that read as prose.
	SentenceStarters []string `yaml:"sentence_starters"`
	VerbCues         []string `yaml:"verb_cues"`

	LookaheadLines  int `yaml:"lookahead_lines"`
	MaxAncientNames int `yaml:"max_ancient_names"`
	MaxNameLength   int `yaml:"max_name_length"`
	MaxNameWords    int `yaml:"max_name_words"`
}

// DefaultRules returns the conventions observed in the dossier corpus.
func DefaultRules() Rules {
	return Rules{
		CountryHeadings:     []string{"pays", "country", "presentation du pays", "fiche pays"},
		EthnicHeadings:      []string{"ethnies", "groupes ethniques", "ethnic groups", "peuples", "populations", "ethnicities"},
		AncientHeadings:     []string{"anciens noms", "ancien nom", "noms historiques", "ancient names", "historical names", "chronologie des noms"},
		DescriptionHeadings: []string{"description", "histoire", "history", "resume", "apercu"},
		NotesHeadings:       []string{"notes", "remarques", "sources et notes"},

		AncientLabels:     []string{"ancien nom", "anciens noms", "nom historique", "noms historiques", "ancient name"},
		DescriptionLabels: []string{"description", "resume"},
		RegionLabels:      []string{"region", "sous region", "region africaine"},

		BoilerplatePrefixes: []string{
			"Nom officiel", "Nom actuel", "Nom complet", "Aujourd'hui", "Actuellement",
			"Official name", "Current name", "Today",
		},
		SentenceStarters: []string{
			"le", "la", "les", "l", "un", "une", "des", "du", "de", "il", "elle", "ils", "elles",
			"ce", "cet", "cette", "ces", "on", "nous", "en", "au", "aux", "dans", "depuis", "apres", "avant",
			"the", "a", "an", "it", "this", "these", "they", "in", "during", "after", "before",
		},
		VerbCues: []string{
			"est", "sont", "etait", "etaient", "fut", "furent", "a ete", "ont ete", "devient", "devint",
			"is", "are", "was", "were", "became", "has been",
		},

		LookaheadLines:  150,
		MaxAncientNames: 3,
		MaxNameLength:   100,
		MaxNameWords:    10,
	}
}

// LoadRules reads a YAML rules file on top of DefaultRules. Keys absent from
// the file keep their defaults. An empty path returns the defaults.
func LoadRules(path string) (Rules, error) {
	r := DefaultRules()
	if path == "" {
		return r, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read dossier rules: %w", err)
	}
	if err := yaml.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("parse dossier rules %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return r, fmt.Errorf("dossier rules %s: %w", path, err)
	}
	return r, nil
}

// Validate rejects rules the scanner cannot work with.
func (r Rules) Validate() error {
	switch {
	case r.LookaheadLines <= 0:
		return fmt.Errorf("lookahead_lines must be > 0")
	case r.MaxNameLength <= 0:
		return fmt.Errorf("max_name_length must be > 0")
	case len(r.EthnicHeadings) == 0:
		return fmt.Errorf("ethnic_headings must not be empty")
	}
	return nil
}

// matcher is a compiled keyword list.
type matcher []string

func compile(words []string) matcher {
	m := make(matcher, 0, len(words))
	for _, w := range words {
		if n := normWords(w); n != "" {
			m = append(m, n)
		}
	}
	return m
}

// contains reports whether any keyword occurs as a whole-word run in text.
func (m matcher) contains(text string) bool {
	t := " " + normWords(text) + " "
	for _, k := range m {
		if strings.Contains(t, " "+k+" ") {
			return true
		}
	}
	return false
}

// equals reports whether text is exactly one of the keywords.
func (m matcher) equals(text string) bool {
	t := normWords(text)
	for _, k := range m {
		if t == k {
			return true
		}
	}
	return false
}

func normWords(s string) string {
	return strings.Join(keys.Words(s), " ")
}

// compiledRules is Rules with keyword lists ready for matching.
type compiledRules struct {
	Rules

	country          matcher
	ethnic           matcher
	ancient          matcher
	description      matcher
	notes            matcher
	ancientLabel     matcher
	descriptionLabel matcher
	regionLabel      matcher
	starters         matcher
	verbs            matcher
}

func (r Rules) compile() *compiledRules {
	return &compiledRules{
		Rules:            r,
		country:          compile(r.CountryHeadings),
		ethnic:           compile(r.EthnicHeadings),
		ancient:          compile(r.AncientHeadings),
		description:      compile(r.DescriptionHeadings),
		notes:            compile(r.NotesHeadings),
		ancientLabel:     compile(r.AncientLabels),
		descriptionLabel: compile(r.DescriptionLabels),
		regionLabel:      compile(r.RegionLabels),
		starters:         compile(r.SentenceStarters),
		verbs:            compile(r.VerbCues),
	}
}
