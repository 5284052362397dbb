package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/martijn/sitecalm/pkg/config"
)

// NewLogger creates a structured zerolog.Logger writing to stderr and, when
// log_file is set, to a size-rotated file as well.
func NewLogger(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stderr
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	if cfg.LogFile != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			Compress:   true,
		})
	}

	return newLogger(out, cfg.LogLevel)
}

func newLogger(out io.Writer, levelName string) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Str("service", "sitecalm").Logger()

	level, err := zerolog.ParseLevel(levelName)
	if err != nil || levelName == "" {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}

// Component returns a child logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
