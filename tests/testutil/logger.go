package testutil

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestLogger captures log output for validation in tests. It satisfies
// securekv.Logger, so it can be handed straight to a Store.
//
// Example usage:
//
//	logger := testutil.NewTestLogger(t)
//	store, _ := securekv.New(securekv.Options{Logger: logger, ...})
//
//	logger.AssertNotContains(t, "s3cr3t")
//	logger.AssertLogCount(t, "warn", 1)
type TestLogger struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

// NewTestLogger creates an empty TestLogger. Debug messages are captured.
func NewTestLogger(t *testing.T) *TestLogger {
	t.Helper()
	return &TestLogger{}
}

func (l *TestLogger) Info(format string, args ...interface{}) {
	l.write("✓", format, args...)
}

func (l *TestLogger) Warn(format string, args ...interface{}) {
	l.write("⚠", format, args...)
}

func (l *TestLogger) Error(format string, args ...interface{}) {
	l.write("✗", format, args...)
}

func (l *TestLogger) Debug(format string, args ...interface{}) {
	l.write("[DEBUG]", format, args...)
}

func (l *TestLogger) write(marker, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(&l.buffer, "%s %s\n", marker, fmt.Sprintf(format, args...))
}

// GetOutput returns everything captured so far.
func (l *TestLogger) GetOutput() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buffer.String()
}

// Clear drops the captured output.
func (l *TestLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buffer.Reset()
}

// AssertContains asserts that the log output contains substr.
func (l *TestLogger) AssertContains(t *testing.T, substr string) {
	t.Helper()
	assert.Contains(t, l.GetOutput(), substr, "Expected log output to contain %q", substr)
}

// AssertNotContains asserts that the log output does NOT contain substr.
// Use it to check that values and key material never reach the logs.
func (l *TestLogger) AssertNotContains(t *testing.T, substr string) {
	t.Helper()
	assert.NotContains(t, l.GetOutput(), substr, "Expected log output to NOT contain %q", substr)
}

// AssertLogCount asserts how many messages were logged at level
// (info, warn, error or debug).
func (l *TestLogger) AssertLogCount(t *testing.T, level string, count int) {
	t.Helper()

	var marker string
	switch level {
	case "info":
		marker = "✓ "
	case "warn":
		marker = "⚠ "
	case "error":
		marker = "✗ "
	case "debug":
		marker = "[DEBUG] "
	default:
		t.Fatalf("Unknown log level: %s", level)
	}

	actual := 0
	for _, line := range l.Lines() {
		if strings.HasPrefix(line, marker) {
			actual++
		}
	}
	assert.Equal(t, count, actual, "Expected %d %s log messages, got %d", count, level, actual)
}

// Lines returns the captured output split into non-empty lines.
func (l *TestLogger) Lines() []string {
	output := l.GetOutput()
	lines := strings.Split(output, "\n")

	result := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
