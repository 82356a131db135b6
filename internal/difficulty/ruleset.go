package difficulty

import (
	"fmt"
	"os"

	"raid-stats/internal/domain"

	"gopkg.in/yaml.v3"
)

// Ruleset bundles the cutoff tables, the brackets derived from them and the
// epoch predicate choosing between them. It is built once and shared.
type Ruleset struct {
	tables   Tables
	isLegacy EpochPredicate
	legacy   []Bracket
	current  []Bracket
}

func NewRuleset(tables Tables, isLegacy EpochPredicate) (*Ruleset, error) {
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	return &Ruleset{
		tables:   tables,
		isLegacy: isLegacy,
		legacy:   BuildCombinedBrackets(tables.Legacy),
		current:  BuildCombinedBrackets(tables.Current),
	}, nil
}

func (r *Ruleset) Table(server string, raidID int) Table {
	return r.tables.Select(server, raidID, r.isLegacy)
}

func (r *Ruleset) Brackets(server string, raidID int) []Bracket {
	if r.isLegacy != nil && r.isLegacy(server, raidID) {
		return r.legacy
	}
	return r.current
}

func (r *Ruleset) Classify(server string, raidID int, score int64) domain.Tier {
	return Classify(score, r.Table(server, raidID))
}

func (r *Ruleset) ClassifyCombined(server string, raidID int, score int64) (string, error) {
	return ClassifyCombined(score, r.Brackets(server, raidID))
}

// tableFile is the YAML layout of a tier table override:
//
//	legacy:  {Lunatic: 41000000, Torment: 31000000, ...}
//	current: {Lunatic: 44000000, ...}
//	cutover: {jp: 60, global: 45}
type tableFile struct {
	Legacy  map[string]int64 `yaml:"legacy"`
	Current map[string]int64 `yaml:"current"`
	Cutover map[string]int   `yaml:"cutover"`
}

// LoadTables reads cutoff tables and per-server cutovers from a YAML file.
// A table missing from the file keeps its built-in cutoffs.
func LoadTables(path string) (Tables, map[string]int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, nil, fmt.Errorf("failed to read tier tables: %w", err)
	}
	return ParseTables(raw)
}

func ParseTables(raw []byte) (Tables, map[string]int, error) {
	var f tableFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Tables{}, nil, fmt.Errorf("failed to parse tier tables: %w", err)
	}

	tables := DefaultTables()
	if len(f.Legacy) > 0 {
		t, err := tableFromMap("legacy", f.Legacy)
		if err != nil {
			return Tables{}, nil, err
		}
		tables.Legacy = t
	}
	if len(f.Current) > 0 {
		t, err := tableFromMap("current", f.Current)
		if err != nil {
			return Tables{}, nil, err
		}
		tables.Current = t
	}
	if err := tables.Validate(); err != nil {
		return Tables{}, nil, err
	}
	return tables, f.Cutover, nil
}

func tableFromMap(name string, m map[string]int64) (Table, error) {
	t := Table{Name: name}
	byTier := make(map[domain.Tier]int64, len(m))
	for k, v := range m {
		tier, err := domain.ParseTier(k)
		if err != nil {
			return Table{}, fmt.Errorf("table %s: %w", name, err)
		}
		byTier[tier] = v
	}
	byTier[domain.Normal] = 0
	for _, tier := range domain.Tiers() {
		if v, ok := byTier[tier]; ok {
			t.Cutoffs = append(t.Cutoffs, Cutoff{Tier: tier, Score: v})
		}
	}
	return t, nil
}
