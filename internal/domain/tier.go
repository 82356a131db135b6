package domain

import (
	"fmt"
	"strings"
)

// Tier is a raid difficulty, ordered hardest first.
type Tier int

const (
	Lunatic Tier = iota
	Torment
	Insane
	Extreme
	Hardcore
	VeryHard
	Hard
	Normal
)

// TierCount is the number of difficulty tiers.
const TierCount = int(Normal) + 1

var tierInfo = [TierCount]struct {
	name  string
	code  byte
	color string
}{
	Lunatic:  {"Lunatic", 'L', "#e0409a"},
	Torment:  {"Torment", 'T', "#b1242f"},
	Insane:   {"Insane", 'I', "#f06233"},
	Extreme:  {"Extreme", 'E', "#a05ae6"},
	Hardcore: {"Hardcore", 'C', "#3f6fdc"},
	VeryHard: {"VeryHard", 'V', "#2ba0a8"},
	Hard:     {"Hard", 'H', "#55b74b"},
	Normal:   {"Normal", 'N', "#9aa0a6"},
}

// Tiers lists every tier hardest first.
func Tiers() []Tier {
	out := make([]Tier, TierCount)
	for i := range out {
		out[i] = Tier(i)
	}
	return out
}

func (t Tier) Valid() bool {
	return t >= Lunatic && t <= Normal
}

func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierInfo[t].name
}

// Code is the one-letter abbreviation used in combined bracket names.
func (t Tier) Code() byte {
	if !t.Valid() {
		return '?'
	}
	return tierInfo[t].code
}

func (t Tier) Color() string {
	if !t.Valid() {
		return ""
	}
	return tierInfo[t].color
}

// Harder reports whether t is a strictly harder tier than o.
func (t Tier) Harder(o Tier) bool {
	return t < o
}

// ParseTier accepts a tier name (case-insensitive) or its one-letter code.
func ParseTier(s string) (Tier, error) {
	s = strings.TrimSpace(s)
	for i, info := range tierInfo {
		if strings.EqualFold(s, info.name) || (len(s) == 1 && strings.EqualFold(s, string(info.code))) {
			return Tier(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

// AllTiersName selects every tier in a TierFilter.
const AllTiersName = "All"

// TierFilter is either every tier ("All") or exactly one tier.
type TierFilter struct {
	tier Tier
	one  bool
}

var AllTiers = TierFilter{}

func OnlyTier(t Tier) TierFilter {
	return TierFilter{tier: t, one: true}
}

// ParseTierFilter accepts "All" (or the empty string) and any ParseTier input.
func ParseTierFilter(s string) (TierFilter, error) {
	if s == "" || strings.EqualFold(s, AllTiersName) {
		return AllTiers, nil
	}
	t, err := ParseTier(s)
	if err != nil {
		return TierFilter{}, err
	}
	return OnlyTier(t), nil
}

func (f TierFilter) IsAll() bool {
	return !f.one
}

// Tier returns the selected tier; ok is false for "All".
func (f TierFilter) Tier() (Tier, bool) {
	return f.tier, f.one
}

func (f TierFilter) Matches(t Tier) bool {
	return !f.one || f.tier == t
}

func (f TierFilter) String() string {
	if !f.one {
		return AllTiersName
	}
	return f.tier.String()
}
