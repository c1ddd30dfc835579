// Package logger configures the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

var once sync.Once

// Init sets the global level and console output. Safe to call more than once;
// only the first call takes effect.
func Init(appName, level string) {
	InitWithWriter(appName, level, os.Stdout)
}

// InitWithWriter is Init with an explicit destination, used by tests.
func InitWithWriter(appName, level string, w io.Writer) {
	once.Do(func() {
		zerolog.SetGlobalLevel(parseLevel(level))

		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    true,
			TimeFormat: "2006-01-02 15:04:05.000",
			FormatLevel: func(i interface{}) string {
				return strings.ToUpper(fmt.Sprintf("[%-5s]", i))
			},
		}).With().
			Timestamp().
			Str("app", appName).
			Caller().
			Logger().
			Hook(TraceHook{})

		zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
			parts := strings.Split(file, "/")
			return fmt.Sprintf("[%s:%d]", parts[len(parts)-1], line)
		}

		log.Info().Str("level", zerolog.GlobalLevel().String()).Msg("✓ Logger initialized")
	})
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO", "":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	case "DISABLED":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// TraceHook adds trace and span ids when the event carries a span context
// (log.Ctx(ctx) / event.Ctx(ctx)).
type TraceHook struct{}

func (h TraceHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.HasTraceID() {
		e.Str("trace_id", sc.TraceID().String())
	}
	if sc.HasSpanID() {
		e.Str("span_id", sc.SpanID().String())
	}
}
