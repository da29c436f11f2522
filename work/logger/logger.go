package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	defaultLogger *Logger
	once          sync.Once
)

// Logger is a leveled logger instance
type Logger struct {
	level LogLevel
	mu    sync.RWMutex
}

// getDefaultLogger returns the singleton default logger
func getDefaultLogger() *Logger {
	once.Do(func() {
		defaultLogger = &Logger{
			level: INFO,
		}
	})
	return defaultLogger
}

// ParseLogLevel converts string to LogLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// SetLogLevel sets the global default log level
func SetLogLevel(level string) {
	l := getDefaultLogger()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = ParseLogLevel(level)
}

// GetLogLevel returns the current log level as a string
func GetLogLevel() string {
	l := getDefaultLogger()
	l.mu.RLock()
	defer l.mu.RUnlock()
	switch l.level {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// shouldLog checks if message should be logged at current level
func (l *Logger) shouldLog(level LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

// logMessage formats and outputs the log message
func logMessage(level string, format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	log.Printf("[%s] %s", level, message)
}

// Debug logs debug level messages
func Debug(format string, v ...interface{}) {
	if getDefaultLogger().shouldLog(DEBUG) {
		logMessage("DEBUG", format, v...)
	}
}

// Info logs info level messages
func Info(format string, v ...interface{}) {
	if getDefaultLogger().shouldLog(INFO) {
		logMessage("INFO", format, v...)
	}
}

// Warn logs warning level messages
func Warn(format string, v ...interface{}) {
	if getDefaultLogger().shouldLog(WARN) {
		logMessage("WARN", format, v...)
	}
}

// Error logs error level messages
func Error(format string, v ...interface{}) {
	if getDefaultLogger().shouldLog(ERROR) {
		logMessage("ERROR", format, v...)
	}
}
