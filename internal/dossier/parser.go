// Package dossier extracts ancient names and narrative text from the free-form
// country dossiers.
//
// The scanner is a small state machine over lines:
//
//	idle -> inCountrySection <-> collectingAncientNames
//	     -> inEthnicitySection <-> collectingEthnicityDescription
//
// Ancient-name collection is bounded by scanning ahead (Rules.LookaheadLines)
// for the next major heading. Every keyword and bound lives in Rules.
package dossier

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"ethnograph/internal/keys"
	"ethnograph/internal/model"
)

type state int

const (
	stateIdle state = iota
	stateCountry
	stateAncient
	stateEthnic
	stateEthnicDesc
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateCountry:
		return "in-country-section"
	case stateAncient:
		return "collecting-ancient-names"
	case stateEthnic:
		return "in-ethnicity-section"
	case stateEthnicDesc:
		return "collecting-ethnicity-description"
	default:
		return "unknown"
	}
}

// Parser turns dossier text into a CountryDescription.
type Parser struct {
	rules *compiledRules
	log   *zap.SugaredLogger
}

// NewParser compiles rules. A nil logger discards debug output.
func NewParser(rules Rules, log *zap.SugaredLogger) *Parser {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Parser{rules: rules.compile(), log: log}
}

// ParseFile reads a dossier from disk. Files ending in .html or .htm are
// converted to heading/list lines first.
func (p *Parser) ParseFile(path, name, region string) (model.CountryDescription, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return model.CountryDescription{}, err
	}
	text := string(b)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		text, err = HTMLToText(strings.NewReader(text))
		if err != nil {
			return model.CountryDescription{}, err
		}
	}
	d := p.Parse(name, region, text)
	d.SourceFile = path
	return d, nil
}

// Parse scans text. It never fails; lines it cannot classify are kept as
// narrative text of the section they appear in.
func (p *Parser) Parse(name, region, text string) model.CountryDescription {
	s := &scanner{
		r:     p.rules,
		lines: strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"),
		out: model.CountryDescription{
			Name:        name,
			Key:         keys.Normalize(name),
			Region:      region,
			Ethnicities: []model.EthnicityDescription{},
		},
		seen: make(map[string]bool),
	}
	s.target = &s.desc
	s.run()

	p.log.Debugw("dossier parsed",
		"country", s.out.Key,
		"ancient_names", len(s.out.AncientNames),
		"ethnicities", len(s.out.Ethnicities),
		"final_state", s.st.String(),
	)
	return s.out
}

type scanner struct {
	r     *compiledRules
	lines []string
	out   model.CountryDescription
	st    state

	// collectingAncientNames bound
	ancientEnd   int
	ancientLevel int

	target               *[]string
	desc, notes, summary []string
	seen                 map[string]bool

	cur     *model.EthnicityDescription
	curSeen map[string]bool
	curDesc []string
}

func (s *scanner) run() {
	for i, line := range s.lines {
		// A handler returns true when the line must be handled again in the
		// state it just switched to.
		for s.step(i, line) {
		}
	}
	s.finishSubsection()
	s.out.Description = joinParagraphs(s.desc)
	s.out.Notes = joinParagraphs(s.notes)
	s.out.Summary = joinParagraphs(s.summary)
}

func (s *scanner) step(i int, line string) bool {
	switch s.st {
	case stateIdle:
		return s.idle(i, line)
	case stateCountry:
		return s.country(i, line)
	case stateAncient:
		return s.ancient(i, line)
	case stateEthnic:
		return s.ethnic(i, line)
	case stateEthnicDesc:
		return s.ethnicDesc(i, line)
	}
	return false
}

// idle waits for the first non-blank line; whatever it is, heading or text,
// opens the country section.
func (s *scanner) idle(_ int, line string) bool {
	if isBlank(line) {
		return false
	}
	s.st = stateCountry
	return true
}

func (s *scanner) country(i int, line string) bool {
	if h, ok := parseHeading(line); ok {
		switch {
		case s.r.ethnic.contains(h.text):
			s.st = stateEthnic
		case s.r.ancient.contains(h.text):
			s.enterAncient(i, h.level)
		case s.r.notes.contains(h.text):
			s.target = &s.notes
		default:
			s.target = &s.desc
		}
		return false
	}

	if name, value, ok := label(line); ok {
		switch {
		case s.r.regionLabel.equals(name):
			if s.out.Region == "" {
				s.out.Region = value
			}
			return false
		case s.r.ancientLabel.equals(name):
			s.addCountryAncient(value)
			return false
		case s.r.descriptionLabel.equals(name):
			s.desc = append(s.desc, value)
			return false
		}
	}
	*s.target = append(*s.target, strings.TrimSpace(line))
	return false
}

// enterAncient switches to ancient-name collection and fixes its bound: the
// next major heading within LookaheadLines, or the lookahead limit itself.
func (s *scanner) enterAncient(i, level int) {
	s.st = stateAncient
	s.ancientLevel = level
	s.ancientEnd = s.boundary(i, level)
}

func (s *scanner) boundary(i, level int) int {
	limit := i + 1 + s.r.LookaheadLines
	if limit > len(s.lines) {
		limit = len(s.lines)
	}
	for j := i + 1; j < limit; j++ {
		h, ok := parseHeading(s.lines[j])
		if !ok {
			continue
		}
		if h.level <= level || h.numbered() || s.r.ethnic.contains(h.text) || s.r.description.contains(h.text) {
			return j
		}
	}
	return limit
}

func (s *scanner) ancient(i int, line string) bool {
	if i >= s.ancientEnd {
		s.st = stateCountry
		s.target = &s.desc
		return true
	}
	if isBlank(line) {
		return false
	}
	if h, ok := parseHeading(line); ok {
		if h.level <= s.ancientLevel || s.r.ethnic.contains(h.text) || s.r.description.contains(h.text) {
			s.st = stateCountry
			s.target = &s.desc
			return true
		}
		if name, ok := s.r.candidate(h.text); ok {
			s.addName(&s.out.AncientNames, s.seen, name)
		}
		return false
	}
	if name, value, ok := label(line); ok && s.r.ancientLabel.equals(name) {
		s.addCountryAncient(value)
		return false
	}
	if name, ok := s.r.candidate(line); ok {
		s.addName(&s.out.AncientNames, s.seen, name)
		return false
	}
	s.desc = append(s.desc, strings.TrimSpace(line))
	return false
}

func (s *scanner) ethnic(i int, line string) bool {
	if h, ok := parseHeading(line); ok {
		switch {
		case h.level == 3:
			s.startSubsection(h.text)
		case h.level > 3:
			s.summary = append(s.summary, strings.TrimSpace(stripMarkup(h.text)))
		case s.r.ancient.contains(h.text):
			s.enterAncient(i, h.level)
		case s.r.notes.contains(h.text):
			s.st = stateCountry
			s.target = &s.notes
		case s.r.country.contains(h.text), s.r.description.contains(h.text):
			s.st = stateCountry
			s.target = &s.desc
		}
		return false
	}
	s.summary = append(s.summary, strings.TrimSpace(line))
	return false
}

func (s *scanner) ethnicDesc(_ int, line string) bool {
	if h, ok := parseHeading(line); ok {
		switch {
		case h.level > 3:
			// Deeper headings are part of the current subsection.
			s.curDesc = append(s.curDesc, strings.TrimSpace(stripMarkup(h.text)))
			return false
		case h.level == 3:
			s.finishSubsection()
			s.startSubsection(h.text)
			return false
		}
		s.finishSubsection()
		s.st = stateEthnic
		return true
	}

	if name, value, ok := label(line); ok {
		switch {
		case s.r.ancientLabel.equals(name):
			for _, v := range splitNames(value) {
				if n := s.r.clean(v); n != "" && !s.r.isSentence(n) {
					s.addName(&s.cur.AncientNames, s.curSeen, n)
				}
			}
			return false
		case s.r.descriptionLabel.equals(name):
			s.curDesc = append(s.curDesc, value)
			return false
		}
	}
	s.curDesc = append(s.curDesc, strings.TrimSpace(line))
	return false
}

func (s *scanner) startSubsection(text string) {
	name := headingName(text)
	key := keys.Normalize(name)
	if key == "" {
		s.st = stateEthnic
		return
	}
	s.cur = &model.EthnicityDescription{Name: name, Key: key}
	s.curSeen = make(map[string]bool)
	s.curDesc = nil
	s.st = stateEthnicDesc
}

func (s *scanner) finishSubsection() {
	if s.cur == nil {
		return
	}
	s.cur.Description = joinParagraphs(s.curDesc)
	s.out.Ethnicities = append(s.out.Ethnicities, *s.cur)
	s.cur = nil
	s.curDesc = nil
}

func (s *scanner) addCountryAncient(value string) {
	for _, v := range splitNames(value) {
		if n := s.r.clean(v); n != "" && !s.r.isSentence(n) {
			s.addName(&s.out.AncientNames, s.seen, n)
		}
	}
}

// addName appends a distinct name while under MaxAncientNames (0 = no cap).
func (s *scanner) addName(dst *[]string, seen map[string]bool, name string) {
	k := keys.Normalize(name)
	if k == "" || seen[k] {
		return
	}
	if s.r.MaxAncientNames > 0 && len(*dst) >= s.r.MaxAncientNames {
		return
	}
	seen[k] = true
	*dst = append(*dst, name)
}

func splitNames(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
}

// joinParagraphs joins lines with newlines, collapsing blank runs into one
// paragraph break and trimming blank edges.
func joinParagraphs(lines []string) string {
	var b strings.Builder
	pendingBreak := false
	for _, l := range lines {
		if l == "" {
			pendingBreak = b.Len() > 0
			continue
		}
		if b.Len() > 0 {
			if pendingBreak {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		pendingBreak = false
		b.WriteString(l)
	}
	return b.String()
}
