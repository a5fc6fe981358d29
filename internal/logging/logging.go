package logging

import (
	"context"
	"log/slog"
	"os"
)

type ctxKey struct{}

// Init configures the process logger and installs it as the slog
// default. Development logs human-readable text; every other environment
// logs JSON for ingestion. Debug level also records source positions,
// which the ledger's money-movement logs otherwise omit.
func Init(service, level, appEnv string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if appEnv == "development" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", service, "env", appEnv)
	slog.SetDefault(logger)
	return logger
}

// FromContext returns the request-scoped logger placed by the logging
// middleware, falling back to the process default outside a request.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}
