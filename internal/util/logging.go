package util

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// InitLogger installs a JSON slog logger as the process default. Unknown
// levels fall back to info; a nil writer means stdout.
func InitLogger(level string, out io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	if out == nil {
		out = os.Stdout
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: true,
	}))
	slog.SetDefault(logger)
	return logger
}
