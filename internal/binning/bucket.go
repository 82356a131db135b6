package binning

import (
	"fmt"
	"strings"
)

// Bucket is a fixed-width run of ranks; bucket i holds ranks i*w+1 to (i+1)*w.
type Bucket struct {
	Index int
	Start int // first rank, inclusive
	End   int // last rank, inclusive
}

// BucketOf returns the index of the bucket containing a 1-based rank.
func BucketOf(rank, width int) int {
	return (rank - 1) / width
}

func NewBucket(index, width int) Bucket {
	return Bucket{Index: index, Start: index*width + 1, End: (index + 1) * width}
}

func (b Bucket) Label() string {
	return fmt.Sprintf("%d-%d", b.Start, b.End)
}

// Overlap returns how many ranks of b fall inside the inclusive span
// [start, end].
func (b Bucket) Overlap(start, end int) int {
	lo := max(b.Start, start)
	hi := min(b.End, end)
	if hi < lo {
		return 0
	}
	return hi - lo + 1
}

// Mode selects how heatmap cells and marginals are normalized.
type Mode int

const (
	ModePercent Mode = iota
	ModeAbsolute
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "percent":
		return ModePercent, nil
	case "absolute":
		return ModeAbsolute, nil
	}
	return 0, fmt.Errorf("unknown normalization mode %q", s)
}

func (m Mode) String() string {
	if m == ModeAbsolute {
		return "absolute"
	}
	return "percent"
}
