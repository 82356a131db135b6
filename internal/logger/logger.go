package logger

import (
	"fmt"
	"os"

	"raid-stats/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"go.uber.org/fx"
)

// New builds the process logger. It logs every level until ApplyLevel sets
// the configured one.
func New() zerolog.Logger {
	return SetLevel(zerolog.TraceLevel)
}

func SetLevel(level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Logger()

	logger = logger.Level(level)

	return logger
}

// ApplyLevel sets the global level from LOG_LEVEL once the configuration,
// .env file included, is loaded.
func ApplyLevel(cfg *config.Config) error {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(ApplyLevel),
)
