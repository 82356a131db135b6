package domain

// RawRow is one observation of the leaderboard export.
type RawRow struct {
	X               int // raid column id
	Y               int // rank, 1-based
	Z               int // category key, negative for the assisted variant
	W               int // weight
	DifficultyIndex int // Tier of the clear
}

func (r RawRow) Tier() Tier {
	return Tier(r.DifficultyIndex)
}

// Population holds the known participant counts of one raid.
type Population struct {
	Tiers [TierCount]int
	All   int
}

// Of returns the population of the tiers selected by f.
func (p Population) Of(f TierFilter) int {
	t, ok := f.Tier()
	if !ok {
		return p.All
	}
	return p.Tiers[t]
}

// Span returns the inclusive 1-based rank span occupied by the tiers
// selected by f. Tiers occupy contiguous spans ordered hardest first, so
// the span of a tier starts after the populations of every harder tier.
// An empty span is returned as end < start.
func (p Population) Span(f TierFilter) (start, end int) {
	t, ok := f.Tier()
	if !ok {
		return 1, p.All
	}
	offset := 0
	for i := Lunatic; i < t; i++ {
		offset += p.Tiers[i]
	}
	return offset + 1, offset + p.Tiers[t]
}

// RaidMeta describes one raid column of the dashboard.
type RaidMeta struct {
	ID         int    // raw column id used by RawRow.X
	Server     string
	Code       string // compact column label
	Name       string
	Display    string // locale formatted column label supplied by the caller
	Population Population
}

// Label returns the display label, falling back to the raid name and code.
func (m RaidMeta) Label() string {
	switch {
	case m.Display != "":
		return m.Display
	case m.Name != "":
		return m.Name
	}
	return m.Code
}
