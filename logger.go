package ddd

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Log levels
const (
	LevelDebug = "[\033[90mDEBUG\033[0m] "
	LevelInfo  = "[\033[94mINFO\033[0m] "
	LevelWarn  = "[\033[93mWARN\033[0m] "
	LevelError = "[\033[91mERROR\033[0m] "
)

// Logger wraps the standard library logger with additional formatting
type Logger struct {
	*log.Logger
	dateFormat string
	debug      atomic.Bool
	name       string
}

func NewLogger() *Logger {
	return &Logger{
		Logger:     log.New(os.Stdout, "", 0),
		dateFormat: "2006-01-02 15:04:05.000 -07:00",
	}
}

// Named returns a logger sharing the output that prefixes messages with name.
func (l *Logger) Named(name string) *Logger {
	n := &Logger{
		Logger:     l.Logger,
		dateFormat: l.dateFormat,
		name:       name,
	}
	n.debug.Store(l.debug.Load())
	return n
}

// getCallerInfo returns the file name and line number of the caller
func (l *Logger) getCallerInfo(skipFrames int) string {
	_, file, line, ok := runtime.Caller(skipFrames)
	if !ok {
		return "???:0"
	}

	// Extract just the filename from the full path
	parts := strings.Split(file, "/")
	file = parts[len(parts)-1]

	return file + ":" + strconv.Itoa(line)
}

// formatLogEntry creates a formatted log entry
func (l *Logger) formatLogEntry(level, caller, format string, args ...any) string {
	timestamp := time.Now().Format(l.dateFormat)
	message := fmt.Sprintf(format, args...)
	if l.name != "" {
		message = l.name + ": " + message
	}
	return fmt.Sprintf("[%s] %s %s: %s", timestamp, level, caller, message)
}

// SetOutput changes the output destination
func (l *Logger) SetOutput(w io.Writer) {
	l.Logger.SetOutput(w)
}

// SetDateFormat changes the date format for log timestamps
func (l *Logger) SetDateFormat(format string) {
	l.dateFormat = format
}

// SetDebug enables or disables debug messages
func (l *Logger) SetDebug(enabled bool) {
	l.debug.Store(enabled)
}

// Debug logs a diagnostic message when debug is enabled
func (l *Logger) Debug(format string, args ...any) {
	if !l.debug.Load() {
		return
	}
	l.Println(l.formatLogEntry(LevelDebug, l.getCallerInfo(2), format, args...))
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...any) {
	l.Println(l.formatLogEntry(LevelInfo, l.getCallerInfo(2), format, args...))
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...any) {
	l.Println(l.formatLogEntry(LevelWarn, l.getCallerInfo(2), format, args...))
}

// Error logs an error message
func (l *Logger) Error(format string, args ...any) {
	l.Println(l.formatLogEntry(LevelError, l.getCallerInfo(2), format, args...))
}
