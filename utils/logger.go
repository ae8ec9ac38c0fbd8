package utils

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Logger is the process-wide structured logger. It falls back to the slog
// default until Init runs.
var Logger = slog.Default()
var once sync.Once

func Init(level string) {
	InitWithWriter(level, "text", os.Stderr)
}

// InitWithWriter configures the logger once with an explicit format
// ("text" or "json") and destination.
func InitWithWriter(level, format string, w io.Writer) {
	once.Do(func() {
		opts := &slog.HandlerOptions{Level: parseLevel(level)}
		switch format {
		case "json":
			Logger = slog.New(slog.NewJSONHandler(w, opts))
		default:
			Logger = slog.New(slog.NewTextHandler(w, opts))
		}
	})
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
