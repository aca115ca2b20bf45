// Package logger provides the process-wide structured logger.
//
// Logs always go to a file. Standard output carries the ACP protocol stream
// and must never receive log lines.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/zhubert/gemini-acp/paths"
)

const logFileName = "gemini-acp.log"

var (
	root     *slog.Logger
	levelVar = new(slog.LevelVar)
	logFile  *os.File
	mu       sync.Mutex
	logPath  string
	initDone bool
)

// DefaultLogPath returns the default log file path.
func DefaultLogPath() (string, error) {
	dir, err := paths.LogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, logFileName), nil
}

// SetDebug enables or disables debug level logging
func SetDebug(enabled bool) {
	if enabled {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}
}

// Init initializes the logger with a custom path. Must be called before logging.
// If not called, the default path will be used on first log call.
// An empty path selects the default path.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if initDone {
		return nil
	}

	if path == "" {
		p, err := DefaultLogPath()
		if err != nil {
			return fmt.Errorf("failed to get default log path: %w", err)
		}
		path = p
	}

	return openLocked(path)
}

// openLocked opens path for appending and installs the root logger.
// Caller must hold mu.
func openLocked(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logPath = path
	logFile = f
	root = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar}))
	initDone = true

	root.Info("logger initialized", "path", path, "pid", os.Getpid())
	return nil
}

// ensureInit initializes the logger with default settings if not already initialized.
// Failures are reported on stderr and leave the logger on slog's default.
// Caller must hold mu.
func ensureInit() {
	if initDone {
		return
	}

	defaultPath, err := DefaultLogPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to get default log path: %v\n", err)
		return
	}
	if err := openLocked(defaultPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// Path returns the file currently receiving logs, or "" before initialization.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

// Get returns the root logger instance.
// Use this when you don't have session context.
func Get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	ensureInit()

	if root == nil {
		return slog.Default()
	}
	return root
}

// WithSession returns a logger with the session ID attached.
//
// Example:
//
//	log := logger.WithSession(sess.ID)
//	log.Info("prompt started", "length", len(text))
//	// Output: level=INFO msg="prompt started" sessionID=abc123 length=42
func WithSession(sessionID string) *slog.Logger {
	return Get().With("sessionID", sessionID)
}

// WithComponent returns a logger with the component name attached.
// Useful for non-session-scoped logging where you want to identify the source.
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// Close closes the log file
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	root = nil
}

// Reset resets the logger state, allowing reinitialization.
// This is primarily for testing purposes.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	initDone = false
	logPath = ""
	root = nil
	levelVar = new(slog.LevelVar)
}

// ClearLogs removes gemini-acp log files (including rotated copies) from the logs directory.
func ClearLogs() (int, error) {
	dir, err := paths.LogsDir()
	if err != nil {
		return 0, fmt.Errorf("failed to get logs directory: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "gemini-acp*.log"))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, p := range matches {
		if err := os.Remove(p); err == nil {
			count++
		} else if !os.IsNotExist(err) {
			return count, err
		}
	}
	return count, nil
}
