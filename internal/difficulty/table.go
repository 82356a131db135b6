// Package difficulty maps raid scores onto difficulty tiers and builds the
// synthetic brackets used for scores made of several independent parts.
package difficulty

import (
	"fmt"

	"raid-stats/internal/domain"
)

// Cutoff is the minimum score that places a clear in Tier.
type Cutoff struct {
	Tier  domain.Tier
	Score int64
}

// Table lists cutoffs strictly descending, ending with Normal at 0.
type Table struct {
	Name    string
	Cutoffs []Cutoff
}

func LegacyTable() Table {
	return Table{Name: "legacy", Cutoffs: []Cutoff{
		{domain.Lunatic, 41_000_000},
		{domain.Torment, 31_000_000},
		{domain.Insane, 19_000_000},
		{domain.Extreme, 12_000_000},
		{domain.Hardcore, 8_000_000},
		{domain.VeryHard, 4_000_000},
		{domain.Hard, 2_000_000},
		{domain.Normal, 0},
	}}
}

func CurrentTable() Table {
	return Table{Name: "current", Cutoffs: []Cutoff{
		{domain.Lunatic, 44_000_000},
		{domain.Torment, 34_000_000},
		{domain.Insane, 21_500_000},
		{domain.Extreme, 13_000_000},
		{domain.Hardcore, 8_500_000},
		{domain.VeryHard, 4_200_000},
		{domain.Hard, 2_100_000},
		{domain.Normal, 0},
	}}
}

// Validate checks that the cutoffs are strictly descending, that every tier
// appears in difficulty order and that the table ends with Normal at 0.
func (t Table) Validate() error {
	if len(t.Cutoffs) == 0 {
		return fmt.Errorf("table %s: no cutoffs", t.Name)
	}
	for i, c := range t.Cutoffs {
		if !c.Tier.Valid() {
			return fmt.Errorf("table %s: invalid tier %d", t.Name, int(c.Tier))
		}
		if i == 0 {
			continue
		}
		prev := t.Cutoffs[i-1]
		if !prev.Tier.Harder(c.Tier) {
			return fmt.Errorf("table %s: %s listed after %s", t.Name, c.Tier, prev.Tier)
		}
		if c.Score >= prev.Score {
			return fmt.Errorf("table %s: cutoff of %s (%d) not below %s (%d)", t.Name, c.Tier, c.Score, prev.Tier, prev.Score)
		}
	}
	last := t.Cutoffs[len(t.Cutoffs)-1]
	if last.Tier != domain.Normal || last.Score != 0 {
		return fmt.Errorf("table %s: must end with %s at 0", t.Name, domain.Normal)
	}
	return nil
}

// Lowest returns the default tier of the table.
func (t Table) Lowest() domain.Tier {
	if len(t.Cutoffs) == 0 {
		return domain.Normal
	}
	return t.Cutoffs[len(t.Cutoffs)-1].Tier
}

// Classify returns the first tier, highest cutoff first, whose cutoff does
// not exceed score, or the lowest tier when none does.
func Classify(score int64, t Table) domain.Tier {
	for _, c := range t.Cutoffs {
		if c.Score <= score {
			return c.Tier
		}
	}
	return t.Lowest()
}

// EpochPredicate reports whether a raid of a server was scored with the
// legacy cutoffs.
type EpochPredicate func(server string, raidID int) bool

// CutoverPredicate treats raids with an id below the server's first
// current raid as legacy. Servers without an entry are always current.
func CutoverPredicate(firstCurrent map[string]int) EpochPredicate {
	return func(server string, raidID int) bool {
		first, ok := firstCurrent[server]
		return ok && raidID < first
	}
}

// Tables holds the two cutoff generations.
type Tables struct {
	Legacy  Table
	Current Table
}

func DefaultTables() Tables {
	return Tables{Legacy: LegacyTable(), Current: CurrentTable()}
}

func (ts Tables) Validate() error {
	if err := ts.Legacy.Validate(); err != nil {
		return err
	}
	return ts.Current.Validate()
}

// Select picks the table that applies to a raid.
func (ts Tables) Select(server string, raidID int, isLegacy EpochPredicate) Table {
	if isLegacy != nil && isLegacy(server, raidID) {
		return ts.Legacy
	}
	return ts.Current
}
