// Package match links CSV ethnic records to dossier descriptions.
package match

import (
	"strings"

	"ethnograph/internal/keys"
	"ethnograph/internal/model"
)

// Threshold is the minimum score for a match to be accepted.
const Threshold = 0.5

// Score compares two names on their normalized keys: 1.0 when equal, 0.8
// when one contains the other, otherwise shared words over the larger word
// count. Score is symmetric.
func Score(a, b string) float64 {
	ka, kb := keys.Normalize(a), keys.Normalize(b)
	if ka == "" || kb == "" {
		return 0
	}
	if ka == kb {
		return 1
	}
	la, lb := strings.ToLower(ka), strings.ToLower(kb)
	if strings.Contains(la, lb) || strings.Contains(lb, la) {
		return 0.8
	}

	ta, tb := wordSet(ka), wordSet(kb)
	shared := 0
	for w := range ta {
		if tb[w] {
			shared++
		}
	}
	if shared == 0 {
		return 0
	}
	return float64(shared) / float64(max(len(ta), len(tb)))
}

func wordSet(key string) map[string]bool {
	words := keys.Words(key)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// Best returns the index and score of the best candidate for name, scoring
// against both the candidate's display name and its stored key. The first
// candidate wins ties, so an exact match is never displaced. idx is -1 when
// no candidate reaches Threshold.
func Best(name string, cands []model.EthnicityDescription) (idx int, score float64) {
	idx = -1
	for i, c := range cands {
		s := max(Score(name, c.Name), Score(name, c.Key))
		if s > score {
			idx, score = i, s
		}
	}
	if score < Threshold {
		return -1, score
	}
	return idx, score
}
