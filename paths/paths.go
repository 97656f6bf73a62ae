// Package paths resolves where the focus client keeps its files and where it
// expects the context server to be installed.
//
// Client files follow the XDG Base Directory layout when any XDG variable is
// set, otherwise everything lives under ~/.thinking-partner:
//
//   - Config (XDG_CONFIG_HOME): config.yaml
//   - State (XDG_STATE_HOME): logs/
//
// An existing ~/.thinking-partner directory always wins so upgrades never
// move files out from under a user.
//
// The context server itself is a separate checkout. By default it is expected
// at ~/projects/thinking-partner-mcp with its entry point at src/index.js and
// its JSON document at data/context.json.
package paths

import (
	"os"
	"path/filepath"
	"sync"
)

const (
	appDirName       = "thinking-partner"
	legacyDirName    = ".thinking-partner"
	serverCheckout   = "thinking-partner-mcp"
	configFileName   = "config.yaml"
	contextFileName  = "context.json"
	serverEntryPoint = "index.js"
)

var (
	mu       sync.Mutex
	resolved *layout
)

type layout struct {
	home      string
	configDir string
	stateDir  string
	legacy    bool
}

func resolve() (*layout, error) {
	mu.Lock()
	defer mu.Unlock()

	if resolved != nil {
		return resolved, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	legacyDir := filepath.Join(home, legacyDirName)
	flat := &layout{home: home, configDir: legacyDir, stateDir: legacyDir, legacy: true}

	if info, err := os.Stat(legacyDir); err == nil && info.IsDir() {
		resolved = flat
		return resolved, nil
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	xdgState := os.Getenv("XDG_STATE_HOME")
	if xdgConfig == "" && xdgState == "" && os.Getenv("XDG_DATA_HOME") == "" {
		resolved = flat
		return resolved, nil
	}

	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	if xdgState == "" {
		xdgState = filepath.Join(home, ".local", "state")
	}
	resolved = &layout{
		home:      home,
		configDir: filepath.Join(xdgConfig, appDirName),
		stateDir:  filepath.Join(xdgState, appDirName),
	}
	return resolved, nil
}

// ConfigDir returns the directory holding config.yaml.
func ConfigDir() (string, error) {
	l, err := resolve()
	if err != nil {
		return "", err
	}
	return l.configDir, nil
}

// StateDir returns the directory for runtime state such as logs.
func StateDir() (string, error) {
	l, err := resolve()
	if err != nil {
		return "", err
	}
	return l.stateDir, nil
}

// ConfigFilePath returns the full path to config.yaml.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// LogsDir returns the directory for log files.
func LogsDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// ServerRoot returns the default checkout directory of the context server.
func ServerRoot() (string, error) {
	l, err := resolve()
	if err != nil {
		return "", err
	}
	return filepath.Join(l.home, "projects", serverCheckout), nil
}

// ServerEntryPoint returns the default absolute path of the server script
// handed to the interpreter.
func ServerEntryPoint() (string, error) {
	root, err := ServerRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "src", serverEntryPoint), nil
}

// ContextFile returns the default location of the server's JSON document.
func ContextFile() (string, error) {
	root, err := ServerRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "data", contextFileName), nil
}

// IsLegacyLayout reports whether everything lives under ~/.thinking-partner.
func IsLegacyLayout() bool {
	l, err := resolve()
	if err != nil {
		return true
	}
	return l.legacy
}

// Reset clears the cached resolution. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resolved = nil
}
