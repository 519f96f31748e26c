// Package logging provides the CLI and library logger. Output goes through
// logrus so fields, levels and JSON output come for free; the default text
// format keeps the short symbol-prefixed lines the CLI prints.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger provides structured logging with redaction support
type Logger struct {
	entry   *logrus.Entry
	debug   bool
	noColor bool
}

// New creates a new logger instance writing to stderr. SECUREKV_LOG_FORMAT=json
// switches to JSON lines.
func New(debug, noColor bool) *Logger {
	return NewWithWriter(os.Stderr, debug, noColor, os.Getenv("SECUREKV_LOG_FORMAT") == "json")
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, debug, noColor, jsonFormat bool) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	if jsonFormat {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&cliFormatter{noColor: noColor})
	}
	if debug {
		base.SetLevel(logrus.DebugLevel)
	} else {
		base.SetLevel(logrus.InfoLevel)
	}
	return &Logger{entry: logrus.NewEntry(base), debug: debug, noColor: noColor}
}

// With returns a logger that adds field to every line. Secret values must be
// wrapped in Secret before being passed here.
func (l *Logger) With(field string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(field, value), debug: l.debug, noColor: l.noColor}
}

// IsDebug reports whether debug output is enabled.
func (l *Logger) IsDebug() bool {
	return l.debug
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// cliFormatter renders entries the way the CLI has always printed them:
// a coloured symbol, the message, then any fields as key=value.
type cliFormatter struct {
	noColor bool
}

func (f *cliFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var symbol, color string
	switch e.Level {
	case logrus.DebugLevel, logrus.TraceLevel:
		symbol, color = "[DEBUG]", "36"
	case logrus.WarnLevel:
		symbol, color = "⚠", "33"
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		symbol, color = "✗", "31"
	default:
		symbol, color = "✓", "32"
	}

	var b bytes.Buffer
	if f.noColor {
		b.WriteString(symbol)
	} else {
		fmt.Fprintf(&b, "\033[%sm%s\033[0m", color, symbol)
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)

	if len(e.Data) > 0 {
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
		}
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// Secret represents a value that should be redacted in logs
type Secret string

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// MarshalText keeps the value out of JSON log output.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

// Redact replaces sensitive values in a string with [REDACTED]
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}
