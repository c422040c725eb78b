package dalcore

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

type LogLevel int32

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var (
	logLevel atomic.Int32
	logger   atomic.Pointer[log.Logger]
)

func init() {
	logLevel.Store(int32(LogLevelWarn))
	logger.Store(log.New(os.Stderr, "", log.LstdFlags))
}

// SetLogLevel overrides logLevel for dalcore library, default is WARN
func SetLogLevel(lv LogLevel) {
	logLevel.Store(int32(lv))
}

// SetLogger replaces the destination logger, default writes to stderr
func SetLogger(l *log.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// String returns the lower-case level name.
func (lv LogLevel) String() string {
	switch lv {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLogLevel parses debug, info, warn or error (case-insensitive).
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	}
	return LogLevelWarn, fmt.Errorf("dalcore: unknown log level %q", s)
}

func logf(lv LogLevel, format string, v ...interface{}) {
	if LogLevel(logLevel.Load()) <= lv {
		format = fmt.Sprintf("dalcore.%s: %s", lv, format)
		logger.Load().Printf(format, v...)
	}
}

func LogDebugf(format string, v ...interface{}) {
	logf(LogLevelDebug, format, v...)
}

func LogInfof(format string, v ...interface{}) {
	logf(LogLevelInfo, format, v...)
}

func LogWarnf(format string, v ...interface{}) {
	logf(LogLevelWarn, format, v...)
}

func LogErrorf(format string, v ...interface{}) {
	logf(LogLevelError, format, v...)
}
