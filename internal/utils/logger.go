package utils

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// LogLevel represents an enumeration of log levels
type LogLevel int

const (
	Critical LogLevel = 50
	Fatal    LogLevel = Critical
	Error    LogLevel = 40
	Warning  LogLevel = 30
	Info     LogLevel = 20
	Debug    LogLevel = 10
	NotSet   LogLevel = 0
)

// Logger provides structured logging with context. Each subsystem
// (orchestrator, ledger, gateway, workers) creates its own prefixed
// instance so log lines can be attributed during offline audit.
type Logger struct {
	prefix        string
	logger        *log.Logger
	logLevel      LogLevel
	logLevelMutex sync.Mutex
	fields        []interface{}
}

// NewLogger creates a new logger with a given prefix
func NewLogger(prefix string, logLevel ...LogLevel) *Logger {
	logLevelValue := Info
	if len(logLevel) > 0 {
		logLevelValue = logLevel[0]
	}
	return &Logger{
		prefix:   prefix,
		logger:   log.New(os.Stdout, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
		logLevel: logLevelValue,
	}
}

// With returns a child logger that appends the given key-value pairs to
// every message. Used to carry request-scoped context (agent, user,
// request id, idempotency key) through the pipeline.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	child := &Logger{
		prefix:   l.prefix,
		logger:   l.logger,
		logLevel: l.logLevel,
	}
	child.fields = append(append(child.fields, l.fields...), keyvals...)
	return child
}

// SetLogLevel sets the logging level
func (l *Logger) SetLogLevel(logLevel LogLevel) {
	l.logLevelMutex.Lock()
	defer l.logLevelMutex.Unlock()
	l.logLevel = logLevel
}

// Info logs an informational message
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.write(Info, "INFO", msg, keyvals)
}

// Error logs an error message
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.write(Error, "ERROR", msg, keyvals)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.write(Warning, "WARN", msg, keyvals)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.write(Debug, "DEBUG", msg, keyvals)
}

func (l *Logger) write(level LogLevel, tag, msg string, keyvals []interface{}) {
	l.logLevelMutex.Lock()
	defer l.logLevelMutex.Unlock()
	if l.logLevel > level {
		return
	}
	l.logger.Println(l.formatMessage(tag, msg, keyvals))
}

// formatMessage formats a message with key-value pairs
func (l *Logger) formatMessage(level, msg string, keyvals []interface{}) string {
	formatted := fmt.Sprintf("[%s] %s", level, msg)
	all := append(append([]interface{}{}, l.fields...), keyvals...)
	for i := 0; i < len(all); i += 2 {
		if i+1 < len(all) {
			formatted += fmt.Sprintf(" %v=%v", all[i], all[i+1])
		}
	}
	return formatted
}
