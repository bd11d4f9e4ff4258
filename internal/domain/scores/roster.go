package scores

import (
	"slices"
	"strings"

	"github.com/M3-org/clanktank-sub000/internal/domain/model"
)

// DefaultJudges is the roster used when none is configured.
var DefaultJudges = []string{"aimarc", "aishaw", "peepo", "spartan"}

// Roster is the versioned set of active judges.
type Roster struct {
	Version string
	Judges  []string
}

// NewRoster normalises judge names and drops duplicates, keeping order.
func NewRoster(version string, judges []string) Roster {
	out := make([]string, 0, len(judges))
	for _, j := range judges {
		j = strings.ToLower(strings.TrimSpace(j))
		if j == "" || slices.Contains(out, j) {
			continue
		}
		out = append(out, j)
	}
	return Roster{Version: version, Judges: out}
}

// Has reports whether judge is active.
func (r Roster) Has(judge string) bool {
	return slices.Contains(r.Judges, judge)
}

// Size is the number of active judges.
func (r Roster) Size() int { return len(r.Judges) }

// Missing returns the roster judges absent from scored, in roster order.
func (r Roster) Missing(scored []string) []string {
	var out []string
	for _, j := range r.Judges {
		if !slices.Contains(scored, j) {
			out = append(out, j)
		}
	}
	return out
}

// Weights is a per-category multiplier set.
type Weights map[model.Category]float64

// Uniform weighs every category 1.
func Uniform() Weights {
	w := make(Weights, len(model.Categories))
	for _, c := range model.Categories {
		w[c] = 1
	}
	return w
}

// weight returns the multiplier for c. Missing or non-positive entries count as 1.
func (w Weights) weight(c model.Category) float64 {
	if v, ok := w[c]; ok && v > 0 {
		return v
	}
	return 1
}

// WeightedTotal scales the weighted mean of the ratings to the 0-40 range
// of an unweighted four-category sum.
func WeightedTotal(r model.Ratings, w Weights) float64 {
	var sum, norm float64
	for _, c := range model.Categories {
		wc := w.weight(c)
		sum += float64(r.Get(c)) * wc
		norm += wc
	}
	return sum / norm * float64(len(model.Categories))
}
