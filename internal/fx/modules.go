package fx

import (
	"raid-stats/internal/api"
	"raid-stats/internal/binning"
	"raid-stats/internal/config"
	"raid-stats/internal/difficulty"
	"raid-stats/internal/logger"
	"raid-stats/internal/server"
	"raid-stats/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// ProvideRuleset builds the tier tables once, from TIER_TABLE_PATH when set.
func ProvideRuleset(cfg *config.Config, logger zerolog.Logger) (*difficulty.Ruleset, error) {
	tables := difficulty.DefaultTables()
	var cutover map[string]int
	if cfg.TierTablePath != "" {
		var err error
		tables, cutover, err = difficulty.LoadTables(cfg.TierTablePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.TierTablePath).Int("servers", len(cutover)).Msg("tier tables loaded")
	}
	return difficulty.NewRuleset(tables, difficulty.CutoverPredicate(cutover))
}

var Module = fx.Options(
	fx.Provide(config.Load),
	logger.Module,
	fx.Provide(ProvideRuleset),
	fx.Provide(binning.NewAggregator),
	// api client
	fx.Provide(fx.Annotate(api.NewExportClient, fx.As(new(service.Opener)))),
	// svc
	fx.Provide(service.NewStatsService),
	// server
	fx.Provide(server.NewStatsServer),
)
