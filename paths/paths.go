// Package paths resolves where gemini-acp keeps its files.
//
// Two layouts are supported:
//
//   - Home layout: everything under ~/.gemini-acp/ (config.yaml, logs/, traces/)
//   - XDG layout: config.yaml under $XDG_CONFIG_HOME/gemini-acp, logs and traces
//     under $XDG_STATE_HOME/gemini-acp
//
// Resolution order:
//  1. If ~/.gemini-acp/ exists → home layout
//  2. If XDG_CONFIG_HOME or XDG_STATE_HOME is set → XDG layout
//  3. Otherwise → home layout
package paths

import (
	"os"
	"path/filepath"
	"sync"
)

// AppName is the directory name used under home and XDG roots.
const AppName = "gemini-acp"

var (
	mu       sync.Mutex
	resolved *resolvedPaths
)

type resolvedPaths struct {
	configDir string
	stateDir  string
	home      bool
}

// resolve computes the layout once and caches it.
func resolve() (*resolvedPaths, error) {
	mu.Lock()
	defer mu.Unlock()

	if resolved != nil {
		return resolved, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	homeDir := filepath.Join(home, "."+AppName)

	if info, err := os.Stat(homeDir); err == nil && info.IsDir() {
		resolved = &resolvedPaths{configDir: homeDir, stateDir: homeDir, home: true}
		return resolved, nil
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	xdgState := os.Getenv("XDG_STATE_HOME")

	if xdgConfig != "" || xdgState != "" {
		if xdgConfig == "" {
			xdgConfig = filepath.Join(home, ".config")
		}
		if xdgState == "" {
			xdgState = filepath.Join(home, ".local", "state")
		}
		resolved = &resolvedPaths{
			configDir: filepath.Join(xdgConfig, AppName),
			stateDir:  filepath.Join(xdgState, AppName),
		}
		return resolved, nil
	}

	resolved = &resolvedPaths{configDir: homeDir, stateDir: homeDir, home: true}
	return resolved, nil
}

// ConfigDir returns the directory holding config.yaml.
func ConfigDir() (string, error) {
	r, err := resolve()
	if err != nil {
		return "", err
	}
	return r.configDir, nil
}

// StateDir returns the directory for logs and traces.
func StateDir() (string, error) {
	r, err := resolve()
	if err != nil {
		return "", err
	}
	return r.stateDir, nil
}

// ConfigFilePath returns the full path to config.yaml.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LogsDir returns the directory for log files.
func LogsDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// TracesFilePath returns the default JSONL file for the file trace exporter.
func TracesFilePath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "traces", "traces.jsonl"), nil
}

// IsHomeLayout returns true if using the ~/.gemini-acp/ flat layout.
func IsHomeLayout() bool {
	r, err := resolve()
	if err != nil {
		return true
	}
	return r.home
}

// Reset clears the cached resolution. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resolved = nil
}
