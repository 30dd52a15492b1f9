package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

type Options struct {
	// Filepath of the rotated log file. Empty disables file output.
	Filepath string
	Env      string
	// Level overrides the level derived from Env when it parses.
	Level string
}

func levelFor(opts Options) zerolog.Level {
	if opts.Level != "" {
		if level, err := zerolog.ParseLevel(strings.ToLower(opts.Level)); err == nil {
			return level
		}
	}
	switch opts.Env {
	case "development":
		return zerolog.TraceLevel
	case "test":
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// InitLogger builds the process logger once. Development writes human
// readable lines to stdout, every other env writes json.
func InitLogger(opts Options) zerolog.Logger {
	once.Do(func() {
		zerolog.DurationFieldUnit = time.Microsecond
		zerolog.ErrorFieldName = "error"
		zerolog.ErrorStackFieldName = "stack-trace"
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
		zerolog.LevelFieldName = "level"
		zerolog.MessageFieldName = "message"
		zerolog.TimestampFieldName = "timestamp"

		var stdout io.Writer = os.Stdout
		if opts.Env == "development" {
			stdout = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339Nano}
		}
		writers := []io.Writer{stdout}
		if opts.Filepath != "" {
			writers = append(writers, &lumberjack.Logger{
				Filename:   opts.Filepath,
				MaxSize:    100,
				MaxBackups: 5,
				MaxAge:     14,
				Compress:   true,
			})
		}

		logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
			Level(levelFor(opts)).
			Hook(TraceHook()).
			With().
			Timestamp().
			Caller().
			Stack().
			Int("pid", os.Getpid()).
			Logger()

		logger.Info().
			Str(KeyTag, "log InitLogger").
			Str(KeyProcess, "initializing logger").
			Str("logLevel", logger.GetLevel().String()).
			Msg("initialized logger")
	})
	return logger
}
