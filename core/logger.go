package core

import (
	"log"
	"os"
	"time"

	"github.com/goccy/go-json"
)

// logEntry is the structured record StdLogger emits, one JSON line per
// call to Log.
type logEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Fields  []any  `json:"fields,omitempty"`
	Time    string `json:"time"`
}

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// StdLogger writes one structured JSON line per call to the standard
// library's log package: a fixed-shape entry encoded once per call rather
// than hand-formatted.
type StdLogger struct {
	out *log.Logger
}

// NewStdLogger returns a StdLogger writing to os.Stderr with no built-in
// prefix or timestamp (the entry already carries its own Time field).
func NewStdLogger() *StdLogger {
	return &StdLogger{out: log.New(os.Stderr, "", 0)}
}

// Log implements Logger.
func (l *StdLogger) Log(level LogLevel, msg string, fields ...any) {
	entry := logEntry{
		Level:   level.String(),
		Message: msg,
		Fields:  fields,
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(entry)
	if err != nil {
		l.out.Println(level.String(), msg)
		return
	}
	l.out.Println(string(b))
}

const accessLogStartKey = "core.accessLogStart"

// AccessLog returns a global aspect that logs one line per completed
// request (method, location, status, duration) via logger. The start time
// is stashed on the task's own Local Context rather than a shared closure
// variable, since concurrently dispatched tasks would otherwise race on it.
func AccessLog(logger Logger) Aspect {
	return Aspect{
		Pre: func(t *Task) error {
			t.Local().Set(accessLogStartKey, NewTypedAttribute(time.Now()))
			return nil
		},
		Post: func(t *Task) error {
			var start time.Time
			if v, ok := t.Local().Get(accessLogStartKey); ok {
				if ta, ok := v.(TypedAttribute[time.Time]); ok {
					start = ta.Value
				}
			}
			logger.Log(LevelInfo, "request",
				"method", t.Request().Method.String(),
				"path", t.Request().Path,
				"location", t.Location(),
				"status", t.Response().StatusCode,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		},
	}
}
