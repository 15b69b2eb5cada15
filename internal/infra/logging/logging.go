// Package logging builds the zerolog logger and carries request-scoped fields
// (trace, user, payment reference, provider) through context.
package logging

import (
	"context"
	"crypto/rand"
	"io"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"cycle-rental-payments/internal/config"
)

const service = "payment-service"

// New creates the process logger. Levels: trace|debug|info|warn|error; formats:
// json|console. Dev mode always writes console output.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	return newTo(os.Stdout, cfg, dev)
}

func newTo(w io.Writer, cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if dev || strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(w).With().Timestamp().Str("service", service).Logger()
	if cfg.Sampling && !dev {
		// info and above always pass
		l = l.Sample(zerolog.LevelSampler{DebugSampler: &zerolog.BasicSampler{N: 100}})
	}
	return &l
}

type fieldsKey struct{}

// fields is copied on every change so a context never sees a later sibling's values.
type fields struct {
	traceID, userID, referenceID, provider string
}

func from(ctx context.Context) fields {
	f, _ := ctx.Value(fieldsKey{}).(fields)
	return f
}

func put(ctx context.Context, mutate func(*fields)) context.Context {
	f := from(ctx)
	mutate(&f)
	return context.WithValue(ctx, fieldsKey{}, f)
}

// With returns base enriched with every field stored in ctx.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	f := from(ctx)
	c := base.With()
	for _, kv := range [][2]string{
		{"trace_id", f.traceID},
		{"user_id", f.userID},
		{"reference_id", f.referenceID},
		{"provider", f.provider},
	} {
		if kv[1] != "" {
			c = c.Str(kv[0], kv[1])
		}
	}
	l := c.Logger()
	return &l
}

// TraceDuration logs the elapsed time of a call at trace level.
//
//	defer logging.TraceDuration(log, "LedgerUC.ApplyOutcome")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	return func() {
		logger.Trace().Str("method", name).Dur("duration", time.Since(start)).Msg("done")
	}
}

// NewTraceID returns a time-ordered id for correlating one request's log lines.
func NewTraceID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return put(ctx, func(f *fields) { f.traceID = id })
}

func WithUserID(ctx context.Context, id string) context.Context {
	return put(ctx, func(f *fields) { f.userID = id })
}

func WithReferenceID(ctx context.Context, id string) context.Context {
	return put(ctx, func(f *fields) { f.referenceID = id })
}

func WithProvider(ctx context.Context, p string) context.Context {
	return put(ctx, func(f *fields) { f.provider = p })
}

func TraceID(ctx context.Context) string { return from(ctx).traceID }
