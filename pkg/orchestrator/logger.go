package orchestrator

import (
	"os"

	"github.com/rs/zerolog"
)

// ZeroLogger adapts a zerolog.Logger to the Logger interface, using
// key/value pairs the same way the rest of this codebase's call sites
// pass them ("key", value, "key", value, ...).
type ZeroLogger struct {
	log zerolog.Logger
}

// NewZeroLogger returns a ZeroLogger writing JSON lines to stderr,
// scoped to the given component name.
func NewZeroLogger(component string) *ZeroLogger {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", component).Logger()
	return &ZeroLogger{log: log}
}

func fields(e *zerolog.Event, args ...interface{}) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	return e
}

func (l *ZeroLogger) Debug(msg string, args ...interface{}) {
	fields(l.log.Debug(), args...).Msg(msg)
}

func (l *ZeroLogger) Info(msg string, args ...interface{}) {
	fields(l.log.Info(), args...).Msg(msg)
}

func (l *ZeroLogger) Warn(msg string, args ...interface{}) {
	fields(l.log.Warn(), args...).Msg(msg)
}

func (l *ZeroLogger) Error(msg string, args ...interface{}) {
	fields(l.log.Error(), args...).Msg(msg)
}
