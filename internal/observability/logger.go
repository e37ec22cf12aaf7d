package observability

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger creates a logger based on environment, tagged with the service name
func NewLogger(environment, service string) *slog.Logger {
	return newLogger(os.Stdout, environment).With(slog.String("service", service))
}

func newLogger(w io.Writer, environment string) *slog.Logger {
	var handler slog.Handler

	if environment == "production" {
		// Production: JSON with structured fields
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     slog.LevelInfo,
			AddSource: true,
		})
	} else {
		// Development: Human-readable text
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	return slog.New(handler)
}
