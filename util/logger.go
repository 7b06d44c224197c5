// Package util provides low-level helpers shared by all other packages.
package util

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Fields attaches structured context (remote address, user, room) to
// every line written through a derived Logger.
type Fields = logrus.Fields

// Logger writes levelled messages to stderr with optional timestamps
// and level prefixes.  It is a thin veneer over logrus so audit events
// carry fields without every caller formatting them by hand.
type Logger struct {
	level  LogLevel
	base   *logrus.Logger
	entry  *logrus.Entry
	format *lineFormatter
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	format := &lineFormatter{}
	format.timestamps.Store(verbosity >= 3) // auto-enable timestamps in debug mode

	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(format)
	base.SetLevel(logrusLevel(LogLevel(verbosity)))

	return &Logger{
		level:  LogLevel(verbosity),
		base:   base,
		entry:  logrus.NewEntry(base),
		format: format,
	}
}

// WithFields returns a Logger that prefixes every entry with fields.
// The derived Logger shares output, level and formatting with its parent.
func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{
		level:  l.level,
		base:   l.base,
		entry:  l.entry.WithFields(fields),
		format: l.format,
	}
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) { l.format.timestamps.Store(on) }

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) { l.base.SetOutput(w) }

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// Writer returns a pipe that logs each line written to it at Info
// level.  Callers must close it.
func (l *Logger) Writer() *io.PipeWriter { return l.entry.WriterLevel(logrus.InfoLevel) }

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Tracef(format, args...)
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func logrusLevel(level LogLevel) logrus.Level {
	switch {
	case level <= LogQuiet:
		return logrus.ErrorLevel
	case level == LogNormal:
		return logrus.InfoLevel
	case level == LogVerbose:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// lineFormatter renders "[LVL] message key=value ..." lines.
type lineFormatter struct {
	timestamps atomic.Bool
}

var levelTags = map[logrus.Level]string{
	logrus.PanicLevel: "ERR",
	logrus.FatalLevel: "ERR",
	logrus.ErrorLevel: "ERR",
	logrus.WarnLevel:  "WRN",
	logrus.InfoLevel:  "INF",
	logrus.DebugLevel: "VRB",
	logrus.TraceLevel: "DBG",
}

func (f *lineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if f.timestamps.Load() {
		buf.WriteString(e.Time.Format("15:04:05.000"))
		buf.WriteByte(' ')
	}
	fmt.Fprintf(&buf, "[%s] %s", levelTags[e.Level], e.Message)

	if len(e.Data) > 0 {
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, " %s=%v", k, e.Data[k])
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
