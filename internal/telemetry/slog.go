package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs the process-wide slog default logger from the logging
// section of the configuration.
//
// format "json" selects the JSON handler (what production deployments and log
// aggregators want); any other value selects the text handler for local
// development. level is one of "debug", "info", "warn", "error"
// (case-insensitive) and falls back to info when unrecognized. Source
// locations are attached only at debug level, where the cost is acceptable.
//
// Installing the logger as the default means request handlers, jobs, and
// repositories can call slog.Info/Warn/Error directly without threading a
// *slog.Logger everywhere.
func SetupLogger(format, level string) {
	lvl := parseLevel(level)

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialised", "format", format, "level", lvl.String())
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
