package dossier

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"ethnograph/internal/keys"
)

// heading is a markdown-style heading line.
type heading struct {
	level int
	text  string
}

var (
	headingRe   = regexp.MustCompile(`^\s*(#{1,6})\s*(.*?)\s*#*\s*$`)
	numberedRe  = regexp.MustCompile(`^(?:\d+|[IVXLC]+)\s*[.)]\s*\S`)
	numPrefixRe = regexp.MustCompile(`^(?:\d+|[IVXLC]+)\s*[.)]\s*`)
)

func parseHeading(line string) (heading, bool) {
	m := headingRe.FindStringSubmatch(line)
	if m == nil {
		return heading{}, false
	}
	return heading{level: len(m[1]), text: m[2]}, true
}

// numbered reports a top-level heading like "# 3. Histoire" or "## II) Peuples".
func (h heading) numbered() bool {
	return h.level <= 2 && numberedRe.MatchString(stripMarkup(h.text))
}

var (
	boldRe     = regexp.MustCompile(`(?:\*\*|__)(.+?)(?:\*\*|__)`)
	bulletRe   = regexp.MustCompile(`^\s*[-*•+▪◦]\s+(.+)$`)
	numListRe  = regexp.MustCompile(`^\s*\d+\s*[.)]\s+(.+)$`)
	arrowRe    = regexp.MustCompile(`^\s*(?:→|->|=>|⇒|➜|➔|↳)\s*(.+)$`)
	colonRe    = regexp.MustCompile(`^\s*([^:]{1,60}?)\s*:\s*(.*)$`)
	digitParRe = regexp.MustCompile(`\s*[(\[][^()\[\]]*\d[^()\[\]]*[)\]]`)
	anyParRe   = regexp.MustCompile(`\s*\([^()]*\)\s*$`)
)

// pattern identifies which line shape produced an ancient-name candidate.
type pattern int

const (
	patternNone pattern = iota
	patternBold
	patternBullet
	patternNumbered
	patternArrow
	patternColon
	patternBare
)

func (p pattern) String() string {
	switch p {
	case patternBold:
		return "bold"
	case patternBullet:
		return "bullet"
	case patternNumbered:
		return "numbered"
	case patternArrow:
		return "arrow"
	case patternColon:
		return "colon"
	case patternBare:
		return "bare"
	default:
		return "none"
	}
}

// extract tries the candidate patterns in priority order and returns the
// raw candidate text of the first that matches.
func (r *compiledRules) extract(line string) (pattern, string) {
	line = strings.TrimSpace(stripEmoji(line))
	if line == "" {
		return patternNone, ""
	}

	if loc := boldRe.FindStringSubmatchIndex(line); loc != nil {
		inner := strings.TrimSpace(line[loc[2]:loc[3]])
		rest := strings.TrimSpace(line[loc[1]:])
		lbl := strings.TrimSuffix(inner, ":")
		if value, ok := strings.CutPrefix(rest, ":"); ok || lbl != inner {
			if !ok {
				value = rest
			}
			value = strings.TrimSpace(value)
			if value != "" && (r.isBoilerplate(lbl) || r.ancientLabel.equals(lbl)) {
				return patternBold, value
			}
		}
		return patternBold, inner
	}
	if m := bulletRe.FindStringSubmatch(line); m != nil {
		return patternBullet, m[1]
	}
	if m := numListRe.FindStringSubmatch(line); m != nil {
		return patternNumbered, m[1]
	}
	if m := arrowRe.FindStringSubmatch(line); m != nil {
		return patternArrow, m[1]
	}
	if m := colonRe.FindStringSubmatch(line); m != nil {
		if r.isBoilerplate(m[1]) || r.ancientLabel.equals(m[1]) {
			return patternColon, m[2]
		}
		return patternColon, m[1]
	}
	if first, _ := utf8.DecodeRuneInString(line); unicode.IsUpper(first) &&
		utf8.RuneCountInString(line) <= r.MaxNameLength &&
		!strings.HasSuffix(line, ".") {
		return patternBare, line
	}
	return patternNone, ""
}

// candidate extracts, cleans and validates an ancient name from line.
func (r *compiledRules) candidate(line string) (string, bool) {
	p, raw := r.extract(line)
	if p == patternNone {
		return "", false
	}
	name := r.clean(raw)
	if name == "" || r.isSentence(name) {
		return "", false
	}
	return name, true
}

// clean strips decoration from a candidate: emoji, markup, parentheticals
// holding dates, dash commentary, boilerplate prefixes, trailing ": dates".
func (r *compiledRules) clean(s string) string {
	s = stripEmoji(s)
	s = stripMarkup(s)
	s = digitParRe.ReplaceAllString(s, "")

	for _, sep := range []string{"—", "–", " - "} {
		if i := strings.Index(s, sep); i > 0 {
			s = s[:i]
		}
	}

	s = strings.TrimSpace(s)
	for _, p := range r.BoilerplatePrefixes {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			s = strings.TrimLeft(s[len(p):], " \t:")
			break
		}
	}

	if i := strings.IndexByte(s, ':'); i > 0 {
		if right := s[i+1:]; strings.TrimSpace(right) == "" || strings.ContainsAny(right, "0123456789") {
			s = s[:i]
		}
	}

	s = strings.Trim(s, " \t.,;:-–—*_\"'«»“”")
	return strings.Join(strings.Fields(s), " ")
}

// isSentence rejects prose: too long, too many words, a leading determiner
// or pronoun, or a conjugated verb.
func (r *compiledRules) isSentence(s string) bool {
	if utf8.RuneCountInString(s) > r.MaxNameLength {
		return true
	}
	words := keys.Words(s)
	if len(words) == 0 {
		return true
	}
	if r.MaxNameWords > 0 && len(words) > r.MaxNameWords {
		return true
	}
	if len(words) > 1 && r.starters.equals(words[0]) {
		return true
	}
	return r.verbs.contains(s)
}

func (r *compiledRules) isBoilerplate(label string) bool {
	l := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(label), ":"))
	for _, p := range r.BoilerplatePrefixes {
		if strings.EqualFold(l, p) {
			return true
		}
	}
	return false
}

// label splits "**Label**: value" or "Label : value".
func label(line string) (name, value string, ok bool) {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "-*•+ ")
	if !strings.Contains(s, ":") {
		return "", "", false
	}
	m := colonRe.FindStringSubmatch(stripMarkup(s))
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
}

// headingName cleans a subsection heading into a display name.
func headingName(text string) string {
	s := stripEmoji(stripMarkup(text))
	s = numPrefixRe.ReplaceAllString(strings.TrimSpace(s), "")
	s = anyParRe.ReplaceAllString(s, "")
	s = strings.Trim(s, " \t:.-–—")
	return strings.Join(strings.Fields(s), " ")
}

func stripMarkup(s string) string {
	return strings.NewReplacer("**", "", "__", "", "`", "").Replace(s)
}

// stripEmoji drops pictographs and variation selectors. Arrow glyphs are kept
// so arrow-prefixed lines still match arrowRe.
func stripEmoji(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case isArrow(r):
			return r
		case r == 0x200D, r >= 0xFE00 && r <= 0xFE0F:
			return -1
		case r >= 0x1F000 && r <= 0x1FAFF, r >= 0x2600 && r <= 0x27BF:
			return -1
		case unicode.Is(unicode.So, r):
			return -1
		}
		return r
	}, s)
}

// isArrow covers the Arrows block, the supplemental arrows and the dingbat
// arrows U+2794..U+27BF.
func isArrow(r rune) bool {
	return (r >= 0x2190 && r <= 0x21FF) || (r >= 0x27F0 && r <= 0x27FF) || (r >= 0x2794 && r <= 0x27BF)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
