// Package logger builds the process-wide zerolog logger: console output
// for interactive use, rotated file output via lumberjack when the config
// enables it, matching the teacher's internal/logger conventions.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"hitomidl/internal/domain"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zerolog.Logger so dynamic config reloads can retarget the
// active level without rebuilding every call site's reference.
type Logger struct {
	zerolog.Logger
}

// New builds the process-wide logger. When cfg.EnableFileLogger is set,
// the rotated file sink is written under {appDataDir}/logs/hitomidl.log
// per §6's persisted-state layout, so GetLogsDirSize sums the same
// directory this logger actually writes to.
func New(appDataDir string, cfg *domain.Config) Logger {
	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}}

	if cfg.EnableFileLogger {
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(appDataDir, "logs", "hitomidl.log"),
			MaxSize:    cfg.LogMaxSize,
			MaxBackups: cfg.LogMaxBackups,
			Compress:   true,
		})
	}

	zerolog.SetGlobalLevel(parseLevel("INFO"))

	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()

	return Logger{Logger: l}
}

// SetLogLevel retargets the global zerolog level; called from the config
// hot-reload path in §4.6.
func (l Logger) SetLogLevel(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "ERROR":
		return zerolog.ErrorLevel
	case "WARN":
		return zerolog.WarnLevel
	case "INFO":
		return zerolog.InfoLevel
	case "TRACE":
		return zerolog.TraceLevel
	default:
		return zerolog.DebugLevel
	}
}
