package csv

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var thousandsRe = regexp.MustCompile(`^-?\d{1,3}([.,]\d{3})+$`)

var numberScrub = strings.NewReplacer(
	" ", "",
	"\u00a0", "",
	"\u202f", "",
	"\t", "",
	"%", "",
	"'", "",
)

// Int parses a population figure. It accepts "1234567", "1,234,567",
// "1.234.567", "1 234 567" and decimal forms (rounded). Anything else is 0.
func Int(s string) int64 {
	s = numberScrub.Replace(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	if thousandsRe.MatchString(s) {
		s = strings.NewReplacer(",", "", ".", "").Replace(s)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f := Float(s)
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(math.Round(f))
}

// Float parses a percentage or decimal figure. When both ',' and '.' are
// present the last one is the decimal separator. A single ',' is a decimal
// comma; repeated separators of one kind are thousands separators. A trailing
// '%' is ignored. Unparsable input is 0.
func Float(s string) float64 {
	s = numberScrub.Replace(strings.TrimSpace(s))
	if s == "" {
		return 0
	}

	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")
	switch {
	case commas > 0 && dots > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas == 1:
		s = strings.Replace(s, ",", ".", 1)
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
