package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Init installs the process-wide slog logger. format is "json" or "text",
// level is any of slog's level names (case-insensitive); unknown values
// fall back to text at info.
func Init(format, level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
