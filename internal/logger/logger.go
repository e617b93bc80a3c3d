package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	SILENT // No logging
)

var (
	levelNames = map[LogLevel]string{
		DEBUG:  "DEBUG",
		INFO:   "INFO",
		WARN:   "WARN",
		ERROR:  "ERROR",
		SILENT: "SILENT",
	}

	levelColors = map[LogLevel]string{
		DEBUG: "\033[36m", // Cyan
		INFO:  "\033[32m", // Green
		WARN:  "\033[33m", // Yellow
		ERROR: "\033[31m", // Red
	}

	resetColor = "\033[0m"
)

// Logger writes leveled, module-tagged lines to a single output.
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	useColor bool
	out      *log.Logger
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Init installs the process-wide logger. Later calls replace it, which
// keeps tests able to redirect output.
func Init(level LogLevel, output io.Writer, useColor bool) {
	l := New(level, output, useColor)
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Default returns the process-wide logger, or nil before Init.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// New creates a new Logger instance
func New(level LogLevel, output io.Writer, useColor bool) *Logger {
	if output == nil {
		output = os.Stderr
	}

	return &Logger{
		level:    level,
		useColor: useColor,
		out:      log.New(output, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
}

// SetLevel changes the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	return level != SILENT && level >= l.GetLevel()
}

func (l *Logger) log(level LogLevel, module string, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}

	prefix := "[" + levelNames[level] + "]"
	if l.useColor {
		prefix = levelColors[level] + prefix + resetColor
	}
	if module != "" {
		prefix = fmt.Sprintf("%s [%s]", prefix, module)
	}

	l.out.Printf("%s %s", prefix, fmt.Sprintf(format, args...))
}

// Debug logs a debug message
func (l *Logger) Debug(module string, format string, args ...interface{}) {
	l.log(DEBUG, module, format, args...)
}

// Info logs an info message
func (l *Logger) Info(module string, format string, args ...interface{}) {
	l.log(INFO, module, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(module string, format string, args ...interface{}) {
	l.log(WARN, module, format, args...)
}

// Error logs an error message
func (l *Logger) Error(module string, format string, args ...interface{}) {
	l.log(ERROR, module, format, args...)
}

// Module is a logger bound to one module name. A Module built from a nil
// *Logger writes through whatever global logger is installed at call time.
type Module struct {
	name   string
	target *Logger
}

// For returns a module logger writing to l (or the global logger if l is nil).
func For(l *Logger, name string) Module {
	return Module{name: name, target: l}
}

func (m Module) logger() *Logger {
	if m.target != nil {
		return m.target
	}
	return Default()
}

// Name returns the module tag.
func (m Module) Name() string { return m.name }

func (m Module) Debug(format string, args ...interface{}) {
	if l := m.logger(); l != nil {
		l.Debug(m.name, format, args...)
	}
}

func (m Module) Info(format string, args ...interface{}) {
	if l := m.logger(); l != nil {
		l.Info(m.name, format, args...)
	}
}

func (m Module) Warn(format string, args ...interface{}) {
	if l := m.logger(); l != nil {
		l.Warn(m.name, format, args...)
	}
}

func (m Module) Error(format string, args ...interface{}) {
	if l := m.logger(); l != nil {
		l.Error(m.name, format, args...)
	}
}

// Global logger functions (use default logger)

// SetLevel sets the global log level
func SetLevel(level LogLevel) {
	if l := Default(); l != nil {
		l.SetLevel(level)
	}
}

// GetLevel returns the global log level
func GetLevel() LogLevel {
	if l := Default(); l != nil {
		return l.GetLevel()
	}
	return INFO
}

// Debug logs a debug message using the global logger
func Debug(module string, format string, args ...interface{}) {
	For(nil, module).Debug(format, args...)
}

// Info logs an info message using the global logger
func Info(module string, format string, args ...interface{}) {
	For(nil, module).Info(format, args...)
}

// Warn logs a warning message using the global logger
func Warn(module string, format string, args ...interface{}) {
	For(nil, module).Warn(format, args...)
}

// Error logs an error message using the global logger
func Error(module string, format string, args ...interface{}) {
	For(nil, module).Error(format, args...)
}

// ParseLevel parses a log level name, case-insensitively.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "silent", "none":
		return SILENT, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s", s)
	}
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// UnmarshalText lets LogLevel be used directly in YAML config files.
func (l *LogLevel) UnmarshalText(text []byte) error {
	level, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = level
	return nil
}

// MarshalText renders the level as its lowercase name.
func (l LogLevel) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(l.String())), nil
}
