// Package corolog is the structured-logging facade every corort
// component logs through: a github.com/joeycumines/logiface Logger
// parameterized over the github.com/joeycumines/izerolog Event type,
// backed by a github.com/rs/zerolog writer.
//
// A nil *Logger is valid and logs nothing, so components can accept one
// unconditionally without a separate "logging enabled" flag.
package corolog

import (
	"io"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger wraps a logiface.Logger[*izerolog.Event] and implements
// corort.Logger (and the equivalent interfaces in hook, tcp, httpserver)
// so it can be handed directly to any component's SetLogger.
type Logger struct {
	inner *logiface.Logger[*izerolog.Event]
}

// New builds a Logger writing JSON lines to w at the given level (any of
// zerolog's level names: "debug", "info", "warn", "error", ...;
// unrecognized or empty defaults to "info").
func New(w io.Writer, level string) *Logger {
	zl := zerolog.New(w).With().Timestamp().Logger()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zl = zl.Level(lvl)

	return &Logger{
		inner: logiface.New[*izerolog.Event](
			izerolog.WithZerolog(zl),
			logiface.WithLevel[*izerolog.Event](logifaceLevel(lvl)),
		),
	}
}

func logifaceLevel(l zerolog.Level) logiface.Level {
	switch l {
	case zerolog.DebugLevel:
		return logiface.LevelDebug
	case zerolog.WarnLevel:
		return logiface.LevelWarning
	case zerolog.ErrorLevel:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

func (l *Logger) fields(b *logiface.Builder[*izerolog.Event], kv []any) *logiface.Builder[*izerolog.Event] {
	b = b.Str("component", kv0(kv))
	for i := 1; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		if key == "" {
			continue
		}
		b = b.Any(key, kv[i+1])
	}
	return b
}

func kv0(kv []any) string {
	if len(kv) == 0 {
		return ""
	}
	s, _ := kv[0].(string)
	return s
}

// Debug logs a lifecycle-level event: component, a message, and
// key/value pairs.
func (l *Logger) Debug(component, msg string, kv ...any) {
	if l == nil {
		return
	}
	l.fields(l.inner.Debug(), append([]any{component}, kv...)).Log(msg)
}

// Warn logs a warning-level event.
func (l *Logger) Warn(component, msg string, kv ...any) {
	if l == nil {
		return
	}
	l.fields(l.inner.Warning(), append([]any{component}, kv...)).Log(msg)
}

// Err logs an error-level event carrying err.
func (l *Logger) Err(component string, err error, kv ...any) {
	if l == nil {
		return
	}
	l.fields(l.inner.Err().Err(err), append([]any{component}, kv...)).Log("error")
}
