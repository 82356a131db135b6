package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"raid-stats/internal/binning"
	"raid-stats/internal/cache"
	"raid-stats/internal/config"
	"raid-stats/internal/constants"
	"raid-stats/internal/difficulty"
	"raid-stats/internal/domain"
	"raid-stats/internal/export"
	"raid-stats/internal/stream"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidQuery = errors.New("invalid query")
	ErrUnknownRaid  = errors.New("unknown raid")
)

// Opener opens an export resource such as "jp/scores" as a chunk source.
type Opener interface {
	Open(ctx context.Context, resource string) (stream.Source, error)
}

// HeatmapQuery selects the rows resource, the displayed raid columns and the
// aggregation parameters of one heatmap.
type HeatmapQuery struct {
	Server  string
	Subject string
	// RaidIDs lists the displayed raids in column order. Empty displays every
	// raid of the server's metadata in document order.
	RaidIDs []int
	// Labels overrides the display label of a raid column.
	Labels  map[int]string
	Params  binning.Params
	Refresh bool

	// MinSamples is the column sample threshold. Nil applies the configured
	// default; it replaces Params.MinSamples.
	MinSamples *int
}

type StatsService struct {
	exports    Opener
	ruleset    *difficulty.Ruleset
	aggregator *binning.Aggregator
	cfg        *config.Config
	rows       *cache.Cache[string, []domain.RawRow]
	raids      *cache.Cache[string, []domain.RaidMeta]
	logger     zerolog.Logger
}

func NewStatsService(exports Opener, ruleset *difficulty.Ruleset, aggregator *binning.Aggregator, cfg *config.Config, logger zerolog.Logger) *StatsService {
	return &StatsService{
		exports:    exports,
		ruleset:    ruleset,
		aggregator: aggregator,
		cfg:        cfg,
		rows:       cache.New[string, []domain.RawRow]("rows", cfg.CacheTTL, logger),
		raids:      cache.New[string, []domain.RaidMeta]("raids", constants.MetadataCacheTTL, logger),
		logger:     logger,
	}
}

func rowsResource(server, subject string) string {
	return server + "/" + subject
}

// Rows returns every row of the server's subject resource, loading it once
// per cache lifetime.
func (s *StatsService) Rows(ctx context.Context, server, subject string) ([]domain.RawRow, error) {
	if server == "" || subject == "" {
		return nil, fmt.Errorf("%w: server and subject are required", ErrInvalidQuery)
	}
	resource := rowsResource(server, subject)
	rows, err := s.rows.Get(ctx, resource, func(ctx context.Context) ([]domain.RawRow, error) {
		s.logger.Debug().Str("resource", resource).Msg("fetching rows")
		src, err := s.exports.Open(ctx, resource)
		if err != nil {
			return nil, err
		}
		rows, err := export.ReadRows(ctx, src)
		if err != nil {
			return nil, err
		}
		s.logger.Info().Str("resource", resource).Int("rows", len(rows)).Msg("rows loaded")
		return rows, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load rows %s: %w", resource, err)
	}
	return rows, nil
}

// Raids returns the raid metadata of a server. It is loaded once per
// session.
func (s *StatsService) Raids(ctx context.Context, server string) ([]domain.RaidMeta, error) {
	if server == "" {
		return nil, fmt.Errorf("%w: server is required", ErrInvalidQuery)
	}
	resource := server + "/" + strings.TrimLeft(s.cfg.RaidMetaResource, "/")
	metas, err := s.raids.Get(ctx, server, func(ctx context.Context) ([]domain.RaidMeta, error) {
		s.logger.Debug().Str("resource", resource).Msg("fetching raid metadata")
		src, err := s.exports.Open(ctx, resource)
		if err != nil {
			return nil, err
		}
		metas, err := export.DecodeRaids(ctx, src)
		if err != nil {
			return nil, err
		}
		for i := range metas {
			if metas[i].Server == "" {
				metas[i].Server = server
			}
		}
		return metas, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load raid metadata for %s: %w", server, err)
	}
	return metas, nil
}

// Heatmap loads rows and raid metadata concurrently and aggregates them.
func (s *StatsService) Heatmap(ctx context.Context, q HeatmapQuery) (*binning.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	p, err := s.normalize(q)
	if err != nil {
		return nil, err
	}

	if q.Refresh {
		s.logger.Debug().Str("server", q.Server).Str("subject", q.Subject).Msg("manual refresh requested")
		s.rows.Forget(rowsResource(q.Server, q.Subject))
	}

	var rows []domain.RawRow
	var metas []domain.RaidMeta
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.Rows(gCtx, q.Server, q.Subject)
		return err
	})
	g.Go(func() error {
		var err error
		metas, err = s.Raids(gCtx, q.Server)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	displayed, err := SelectRaids(metas, q.RaidIDs, q.Labels)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("server", q.Server).
		Str("subject", q.Subject).
		Int("raids", len(displayed)).
		Int("bucket_width", p.BucketWidth).
		Str("tier", p.Tier.String()).
		Str("heatmap_mode", p.HeatmapMode.String()).
		Msg("building heatmap")

	return s.aggregator.Aggregate(rows, displayed, p)
}

func (s *StatsService) normalize(q HeatmapQuery) (binning.Params, error) {
	p := q.Params
	if q.Server == "" || q.Subject == "" {
		return p, fmt.Errorf("%w: server and subject are required", ErrInvalidQuery)
	}
	if p.BucketWidth == 0 {
		p.BucketWidth = s.cfg.DefaultBucketWidth
	}
	if p.BucketWidth < 0 || p.BucketWidth > constants.MaxBucketWidth {
		return p, fmt.Errorf("%w: bucket width %d out of range", ErrInvalidQuery, p.BucketWidth)
	}
	p.MinSamples = s.cfg.DefaultMinSamples
	if q.MinSamples != nil {
		p.MinSamples = *q.MinSamples
	}
	if p.MinSamples < 0 {
		return p, fmt.Errorf("%w: negative sample threshold", ErrInvalidQuery)
	}
	if p.Window != nil && p.Window.Lo > p.Window.Hi {
		return p, fmt.Errorf("%w: column window %d..%d is empty", ErrInvalidQuery, p.Window.Lo, p.Window.Hi)
	}
	return p, nil
}

// SelectRaids orders metas into the displayed column list and applies the
// caller's display labels. Empty ids selects every raid in document order.
func SelectRaids(metas []domain.RaidMeta, ids []int, labels map[int]string) ([]domain.RaidMeta, error) {
	var out []domain.RaidMeta
	if len(ids) == 0 {
		out = slices.Clone(metas)
	} else {
		byID := make(map[int]domain.RaidMeta, len(metas))
		for _, m := range metas {
			byID[m.ID] = m
		}
		out = make([]domain.RaidMeta, 0, len(ids))
		for _, id := range ids {
			m, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("%w: %d", ErrUnknownRaid, id)
			}
			out = append(out, m)
		}
	}
	for i := range out {
		if l, ok := labels[out[i].ID]; ok {
			out[i].Display = l
		}
	}
	return out, nil
}

// Classification is the tier of a single score under the table in force for
// its raid.
type Classification struct {
	Tier  domain.Tier
	Table string
}

func (s *StatsService) ClassifyScore(server string, raidID int, score int64) Classification {
	table := s.ruleset.Table(server, raidID)
	return Classification{Tier: difficulty.Classify(score, table), Table: table.Name}
}

func (s *StatsService) ClassifyCombined(server string, raidID int, score int64) (string, error) {
	code, err := s.ruleset.ClassifyCombined(server, raidID, score)
	if err != nil {
		s.logger.Warn().Err(err).Str("server", server).Int("raid_id", raidID).Int64("score", score).Msg("combined score outside bracket table")
		return "", err
	}
	return code, nil
}

func (s *StatsService) Brackets(server string, raidID int) []difficulty.Bracket {
	return s.ruleset.Brackets(server, raidID)
}
