package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// NewLogger returns a slog logger writing to w. The text format is rendered by charm's
// logger, json by slog's JSON handler.
func NewLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	lvl, err := charmlog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.Level(lvl)})), nil
	case "text", "":
		h := charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Level:           lvl,
		})
		return slog.New(h), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", format)
	}
}
