package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
)

// Environment variable to redirect log output to a file.
const envLogPath = "SESSIOND_LOG"

var (
	std           *log.Logger
	logFile       *os.File
	isInitialized bool
	debugEnabled  atomic.Bool
)

// InitFromEnv initializes the logger using SESSIOND_LOG, or stderr when unset.
func InitFromEnv() error {
	return Init(os.Getenv(envLogPath))
}

// Init initializes the logger. An empty path logs to stderr; otherwise the
// file at path is created if needed and opened in append mode.
func Init(path string) error {
	if isInitialized {
		return nil
	}
	if path == "" {
		std = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)
		isInitialized = true
		return nil
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	logFile = f
	std = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	isInitialized = true
	return nil
}

// Close closes the underlying log file, if open.
func Close() error {
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

// SetDebug toggles emission of Debugf messages.
func SetDebug(on bool) { debugEnabled.Store(on) }

// Printf logs a formatted message at info level.
func Printf(format string, args ...any) { write("INFO", format, args...) }

// Infof logs informational messages.
func Infof(format string, args ...any) { write("INFO", format, args...) }

// Warnf logs warnings.
func Warnf(format string, args ...any) { write("WARN", format, args...) }

// Errorf logs errors.
func Errorf(format string, args ...any) { write("ERROR", format, args...) }

// Debugf logs debug messages; dropped unless SetDebug(true) was called.
func Debugf(format string, args ...any) {
	if !debugEnabled.Load() {
		return
	}
	write("DEBUG", format, args...)
}

func write(level string, format string, args ...any) {
	if std == nil {
		// Fallback: initialize with default if not already.
		_ = InitFromEnv()
	}
	if std != nil {
		std.Printf("[%s] %s", level, fmt.Sprintf(format, args...))
	}
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
