package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Customer identity fields that are masked whenever they are attached to a
// log context.
var defaultRedacted = []string{"full_name", "cnic", "national_id", "phone", "email", "date_of_birth"}

// Options configures the structured logger.
type Options struct {
	ServiceName string
	// Level is a zerolog level name; empty or unknown means info.
	Level     string
	WarnStack bool
	Output    io.Writer
	// Format is "json" (default) or "console".
	Format string
	// Redact extends the default set of masked field keys.
	Redact []string
}

type Logger struct {
	base      zerolog.Logger
	warnStack bool
	redacted  map[string]struct{}
}

type ctxKey struct{}

func New(opts Options) *Logger {
	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "console") {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	redacted := make(map[string]struct{}, len(defaultRedacted)+len(opts.Redact))
	for _, key := range append(defaultRedacted, opts.Redact...) {
		redacted[strings.ToLower(key)] = struct{}{}
	}

	return &Logger{
		base:      zerolog.New(output).Level(ParseLevel(opts.Level)).With().Timestamp().Str("service", opts.ServiceName).Logger(),
		warnStack: opts.WarnStack,
		redacted:  redacted,
	}
}

func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) from(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
			return entry
		}
	}
	return l.base
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.WithFields(ctx, map[string]any{key: value})
}

// WithFields returns a context whose log entries carry fields. Keys in the
// redaction set are masked before they are attached.
func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	safe := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, ok := l.redacted[strings.ToLower(k)]; ok {
			v = mask(v)
		}
		safe[k] = v
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, l.from(ctx).With().Fields(safe).Logger())
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithUserID(ctx context.Context, userID string) context.Context {
	return l.WithField(ctx, "user_id", userID)
}

func (l *Logger) WithTransactionRef(ctx context.Context, ref string) context.Context {
	return l.WithField(ctx, "transaction_ref", ref)
}

func (l *Logger) WithAccountID(ctx context.Context, accountID string) context.Context {
	return l.WithField(ctx, "account_id", accountID)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	entry := l.from(ctx)
	entry.Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	entry := l.from(ctx)
	entry.Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	entry := l.from(ctx)
	event := entry.Warn()
	if l.warnStack {
		event = event.Str("stack", stackTrace())
	}
	event.Msg(msg)
}

func (l *Logger) Error(ctx context.Context, msg string, err error) {
	entry := l.from(ctx)
	event := entry.Error()
	if err != nil {
		event = event.Err(err)
	}
	event.Str("stack", stackTrace()).Msg(msg)
}

// mask keeps the first rune so operators can correlate entries without
// seeing the value.
func mask(v any) string {
	s := fmt.Sprint(v)
	if s == "" {
		return ""
	}
	r := []rune(s)
	return string(r[0]) + "***"
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}
