package export

import (
	"context"
	"fmt"
	"strings"

	"raid-stats/internal/domain"
	"raid-stats/internal/stream"
)

// RaidDocument is the JSON metadata resource listing the raids of a server.
type RaidDocument struct {
	Server string      `json:"server"`
	Raids  []RaidEntry `json:"raids"`
}

type RaidEntry struct {
	ID         int            `json:"id"`
	Server     string         `json:"server,omitempty"`
	Code       string         `json:"code"`
	Name       string         `json:"name"`
	Population map[string]int `json:"population"`
}

// Meta converts the entry. Population keys are tier names plus "All"; a
// missing "All" is the sum of the tiers.
func (e RaidEntry) Meta() (domain.RaidMeta, error) {
	m := domain.RaidMeta{ID: e.ID, Server: e.Server, Code: e.Code, Name: e.Name}
	if m.Code == "" {
		m.Code = fmt.Sprintf("R%d", e.ID)
	}

	all, hasAll := 0, false
	sum := 0
	for k, n := range e.Population {
		if n < 0 {
			return domain.RaidMeta{}, fmt.Errorf("raid %d: negative population %d for %s", e.ID, n, k)
		}
		if strings.EqualFold(k, domain.AllTiersName) {
			all, hasAll = n, true
			continue
		}
		t, err := domain.ParseTier(k)
		if err != nil {
			return domain.RaidMeta{}, fmt.Errorf("raid %d: %w", e.ID, err)
		}
		m.Population.Tiers[t] = n
		sum += n
	}
	if !hasAll {
		all = sum
	}
	m.Population.All = all
	return m, nil
}

// DecodeRaids reads a RaidDocument resource.
func DecodeRaids(ctx context.Context, src stream.Source) ([]domain.RaidMeta, error) {
	var doc RaidDocument
	if err := DecodeJSON(ctx, src, &doc); err != nil {
		return nil, err
	}
	return doc.Metas()
}

func (d RaidDocument) Metas() ([]domain.RaidMeta, error) {
	out := make([]domain.RaidMeta, 0, len(d.Raids))
	seen := make(map[int]bool, len(d.Raids))
	for _, e := range d.Raids {
		if seen[e.ID] {
			return nil, fmt.Errorf("duplicate raid id %d", e.ID)
		}
		seen[e.ID] = true
		if e.Server == "" {
			e.Server = d.Server
		}
		m, err := e.Meta()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
