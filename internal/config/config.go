package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"raid-stats/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	ExportBaseURL    string
	ServerPort       string
	LogLevel         string
	CacheTTL         time.Duration
	TierTablePath    string
	RaidMetaResource string

	DefaultBucketWidth int
	DefaultMinSamples  int
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cacheTTL, err := time.ParseDuration(getEnv("CACHE_TTL", constants.RowsCacheTTL.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	bucketWidth, err := getEnvInt("DEFAULT_BUCKET_WIDTH", constants.DefaultBucketWidth)
	if err != nil {
		return nil, err
	}
	minSamples, err := getEnvInt("DEFAULT_MIN_SAMPLES", constants.DefaultMinSamples)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ExportBaseURL:      getEnv("EXPORT_BASE_URL", ""),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CacheTTL:           cacheTTL,
		TierTablePath:      getEnv("TIER_TABLE_PATH", ""),
		RaidMetaResource:   getEnv("RAID_META_RESOURCE", "meta/raids"),
		DefaultBucketWidth: bucketWidth,
		DefaultMinSamples:  minSamples,
	}

	if cfg.ExportBaseURL == "" {
		return nil, fmt.Errorf("EXPORT_BASE_URL is required")
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if cfg.DefaultBucketWidth <= 0 || cfg.DefaultBucketWidth > constants.MaxBucketWidth {
		return nil, fmt.Errorf("DEFAULT_BUCKET_WIDTH must be in [1, %d]", constants.MaxBucketWidth)
	}
	if cfg.DefaultMinSamples < 0 {
		return nil, fmt.Errorf("DEFAULT_MIN_SAMPLES must not be negative")
	}

	logger.Info().
		Str("export_base_url", cfg.ExportBaseURL).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Dur("cache_ttl", cfg.CacheTTL).
		Str("tier_table_path", cfg.TierTablePath).
		Int("default_bucket_width", cfg.DefaultBucketWidth).
		Int("default_min_samples", cfg.DefaultMinSamples).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

var Module = fx.Provide(Load)
