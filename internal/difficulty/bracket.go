package difficulty

import (
	"sort"

	"raid-stats/internal/domain"

	"github.com/pkg/errors"
)

// BracketParts is the number of scores summed into a combined score.
const BracketParts = 3

// BracketOther is returned when a combined score crosses no bracket boundary.
const BracketOther = "Other"

var ErrBracketOutOfRange = errors.New("difficulty: combined score above the highest bracket")

// Bracket is a synthetic tier for a combined score. Code is made of one
// tier letter per part, hardest first.
type Bracket struct {
	Code     string `json:"code"`
	MinScore int64  `json:"min_score"`
	Color    string `json:"color"`
}

// BuildCombinedBrackets enumerates every non-increasing combination of tier
// letters below the top tier. The entry threshold of a tier is the cutoff of
// the tier directly above it, and a bracket's minimum is the sum of the
// thresholds of its letters. The result is strictly descending by minimum;
// of several combinations with the same minimum only the first generated
// (hardest) one is kept.
func BuildCombinedBrackets(t Table) []Bracket {
	n := len(t.Cutoffs)
	if n < 2 {
		return nil
	}

	var out []Bracket
	idx := make([]int, BracketParts)
	var walk func(part, from int)
	walk = func(part, from int) {
		if part == BracketParts {
			out = append(out, newBracket(t, idx))
			return
		}
		for i := from; i < n; i++ {
			idx[part] = i
			walk(part+1, i)
		}
	}
	walk(0, 1)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MinScore > out[j].MinScore
	})

	dedup := out[:0]
	for _, b := range out {
		if len(dedup) > 0 && dedup[len(dedup)-1].MinScore == b.MinScore {
			continue
		}
		dedup = append(dedup, b)
	}
	return dedup
}

func newBracket(t Table, idx []int) Bracket {
	code := make([]byte, len(idx))
	var sum int64
	for p, i := range idx {
		code[p] = t.Cutoffs[i].Tier.Code()
		sum += t.Cutoffs[i-1].Score
	}
	return Bracket{
		Code:     string(code),
		MinScore: sum,
		Color:    Classify(sum/BracketParts, t).Color(),
	}
}

// ClassifyCombined finds the first bracket whose minimum the score reaches
// and names the bracket just before it in the list. Scores reaching the top
// bracket have no such neighbour and yield ErrBracketOutOfRange.
func ClassifyCombined(score int64, brackets []Bracket) (string, error) {
	for i, b := range brackets {
		if score < b.MinScore {
			continue
		}
		if i == 0 {
			return "", ErrBracketOutOfRange
		}
		return brackets[i-1].Code, nil
	}
	return BracketOther, nil
}

// Tiers lists the tiers spelled by the bracket code.
func (b Bracket) Tiers() ([]domain.Tier, error) {
	out := make([]domain.Tier, 0, len(b.Code))
	for i := 0; i < len(b.Code); i++ {
		t, err := domain.ParseTier(b.Code[i : i+1])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
