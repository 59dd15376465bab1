package transport

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the narrow logging surface the connection engine depends on,
// kept the same shape the teacher exposed so call sites read the same way.
// DefaultLogger discards everything; ZeroLogger backs onto zerolog instead
// of log.Logger.
type Logger interface {
	Print(v ...any)
	Printf(format string, v ...any)
	Println(v ...any)
}

// DefaultLogger discards everything; used when a Node is not given an
// explicit Logger.
type DefaultLogger struct{}

func (DefaultLogger) Print(_ ...any)            {}
func (DefaultLogger) Printf(_ string, _ ...any) {}
func (DefaultLogger) Println(_ ...any)          {}

// ZeroLogger adapts a zerolog.Logger to the Logger interface.
type ZeroLogger struct {
	log zerolog.Logger
}

// NewZeroLogger builds a Logger writing to stderr at the given level.
func NewZeroLogger(level zerolog.Level) ZeroLogger {
	return ZeroLogger{log: zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()}
}

func (z ZeroLogger) Print(v ...any)                 { z.log.Debug().Msg(sprint(v...)) }
func (z ZeroLogger) Printf(format string, v ...any) { z.log.Debug().Msgf(format, v...) }
func (z ZeroLogger) Println(v ...any)               { z.log.Debug().Msg(sprint(v...)) }

func sprint(v ...any) string {
	return fmt.Sprint(v...)
}
