// Package logx binds a zerolog.Logger to a component name, the way
// errs.E binds an operation name to an error. It exists so packages log
// through one consistent call shape instead of each importing zerolog
// directly and inventing its own field names.
package logx

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	base zerolog.Logger
)

func root() zerolog.Logger {
	once.Do(func() {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
			With().Timestamp().Logger()
	})
	return base
}

// SetOutput makes all future loggers obtained via For derive from w.
// Intended for daemon entry points; tests use the default console writer.
func SetOutput(w zerolog.Logger) {
	once.Do(func() {})
	base = w
}

// Logger is a named zerolog.Logger.
type Logger struct {
	zerolog.Logger
}

// For returns a Logger scoped to component, e.g. logx.For("runner").
func For(component string) Logger {
	return Logger{root().With().Str("component", component).Logger()}
}

// WithNetwork returns a derived logger carrying the network's variable
// name, for diagnostics that need to name both a feeder and a consumer.
func (l Logger) WithNetwork(name string) Logger {
	return Logger{l.Logger.With().Str("network", name).Logger()}
}
