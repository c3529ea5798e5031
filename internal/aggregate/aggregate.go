// Package aggregate computes parent totals from subgroups and the derived
// country and region populations used for presence percentages.
package aggregate

import (
	"fmt"
	"math"

	"ethnograph/internal/model"
)

// Tolerance is the float comparison slack for percentage sums.
const Tolerance = 1e-6

// Split divides total into n integer parts that differ by at most one and
// sum exactly to total. The remainder goes to the first parts.
func Split(total int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	out := make([]int64, n)
	q, r := total/int64(n), total%int64(n)
	for i := range out {
		out[i] = q
		if int64(i) < r {
			out[i]++
		}
	}
	return out
}

// ScalePercent scales a parent percentage by a subgroup's share of the parent
// population. With no parent population the percentage is split equally
// across n subgroups instead.
func ScalePercent(subPop, parentPop int64, parentPct float64, n int) float64 {
	if parentPop == 0 {
		if n <= 0 {
			return 0
		}
		return parentPct / float64(n)
	}
	return float64(subPop) * parentPct / float64(parentPop)
}

// Percent returns part/whole*100, or 0 when whole is 0.
func Percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// Rollup recomputes a parent's population and percentages as the sum over
// its subgroups. Records without subgroups are left unchanged.
func Rollup(r *model.EthnicRecord) {
	if !r.HasSubgroups() {
		return
	}
	var pop int64
	var pctC, pctAfr float64
	for i := range r.Subgroups {
		s := &r.Subgroups[i]
		s.IsParent = false
		s.Subgroups = nil
		pop += s.Population
		pctC += s.PercentageInCountry
		pctAfr += s.PercentageInAfrica
	}
	r.Population = pop
	r.PercentageInCountry = pctC
	r.PercentageInAfrica = pctAfr
}

// RollupAll applies Rollup to every record.
func RollupAll(recs []model.EthnicRecord) {
	for i := range recs {
		Rollup(&recs[i])
	}
}

// CountryPopulation infers a country's population as the largest
// population/percentage*100 over its ethnic records.
func CountryPopulation(recs []model.EthnicRecord) int64 {
	var best float64
	for _, r := range recs {
		if r.PercentageInCountry <= 0 || r.Population <= 0 {
			continue
		}
		if est := float64(r.Population) / r.PercentageInCountry * 100; est > best {
			best = est
		}
	}
	if best > math.MaxInt64 {
		return 0
	}
	return int64(math.Round(best))
}

// RegionTotals sums inferred country populations per region code.
func RegionTotals(countries []model.CountryRecord) map[string]int64 {
	out := make(map[string]int64)
	for _, c := range countries {
		out[c.Region] += CountryPopulation(c.Ethnicities)
	}
	return out
}

// Warning is a population sanity finding for one country.
type Warning struct {
	Country string `json:"country"`
	Group   string `json:"group,omitempty"`
	Message string `json:"message"`
}

// Check reports countries with no inferable population and parents whose
// figures disagree with their subgroup sums.
func Check(c model.CountryRecord) []Warning {
	var out []Warning
	if len(c.Ethnicities) > 0 && CountryPopulation(c.Ethnicities) == 0 {
		out = append(out, Warning{Country: c.Slug, Message: "population could not be inferred"})
	}
	for _, r := range c.Ethnicities {
		if !r.HasSubgroups() {
			continue
		}
		var (
			pop  int64
			pctC float64
		)
		for _, s := range r.Subgroups {
			pop += s.Population
			pctC += s.PercentageInCountry
		}
		if pop != r.Population || math.Abs(pctC-r.PercentageInCountry) > Tolerance {
			out = append(out, Warning{
				Country: c.Slug,
				Group:   r.Key,
				Message: fmt.Sprintf("parent %d/%.4f differs from subgroup sum %d/%.4f", r.Population, r.PercentageInCountry, pop, pctC),
			})
		}
	}
	return out
}
