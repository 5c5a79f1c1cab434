package log

import (
	"fmt"
	"io"
	"os"
	"time"

	kitlog "github.com/go-kit/kit/log"
)

// Logger is the structured logging contract every silkworm package takes
// instead of importing a concrete backend directly.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})

	With(keyvals ...interface{}) Logger
}

type level int

const (
	levelDebug level = iota
	levelInfo
	levelError
)

// kitLogger adapts go-kit/log to the Logger contract, filtering by a
// minimum level and prefixing every line with a timestamp.
type kitLogger struct {
	logger kitlog.Logger
	min    level
}

// NewLogger returns a Logger that writes leveled key=value lines to w.
func NewLogger(w io.Writer) Logger {
	base := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	base = kitlog.With(base, "ts", kitlog.TimestampFormat(time.Now, time.RFC3339Nano))
	return &kitLogger{logger: base, min: levelInfo}
}

// NewJSONLogger is NewLogger's JSON-encoded counterpart, selected by the
// config's log_format=json.
func NewJSONLogger(w io.Writer) Logger {
	base := kitlog.NewJSONLogger(kitlog.NewSyncWriter(w))
	base = kitlog.With(base, "ts", kitlog.TimestampFormat(time.Now, time.RFC3339Nano))
	return &kitLogger{logger: base, min: levelInfo}
}

// NewLoggerWithLevelAndFormat picks NewLogger or NewJSONLogger by format
// ("plain" or "json") and applies lvl the same way NewLoggerWithLevel does.
func NewLoggerWithLevelAndFormat(w io.Writer, format, lvl string) Logger {
	var l Logger
	if format == "json" {
		l = NewJSONLogger(w)
	} else {
		l = NewLogger(w)
	}
	return withLevel(l, lvl)
}

// NewLoggerWithLevel returns a Logger like NewLogger but with an explicit
// minimum level ("debug", "info", "error"); unrecognized names default to
// info.
func NewLoggerWithLevel(w io.Writer, lvl string) Logger {
	return withLevel(NewLogger(w), lvl)
}

func withLevel(logger Logger, lvl string) Logger {
	l := logger.(*kitLogger)
	switch lvl {
	case "debug":
		l.min = levelDebug
	case "error":
		l.min = levelError
	default:
		l.min = levelInfo
	}
	return l
}

func (l *kitLogger) log(lvl level, lvlName, msg string, keyvals ...interface{}) {
	if lvl < l.min {
		return
	}
	args := append([]interface{}{"level", lvlName, "msg", msg}, keyvals...)
	if err := l.logger.Log(args...); err != nil {
		fmt.Fprintln(os.Stderr, "log: write failed:", err)
	}
}

func (l *kitLogger) Debug(msg string, keyvals ...interface{}) {
	l.log(levelDebug, "debug", msg, keyvals...)
}
func (l *kitLogger) Info(msg string, keyvals ...interface{}) {
	l.log(levelInfo, "info", msg, keyvals...)
}
func (l *kitLogger) Error(msg string, keyvals ...interface{}) {
	l.log(levelError, "error", msg, keyvals...)
}

func (l *kitLogger) With(keyvals ...interface{}) Logger {
	return &kitLogger{logger: kitlog.With(l.logger, keyvals...), min: l.min}
}
