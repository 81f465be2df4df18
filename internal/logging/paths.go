package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.neuralfs/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".neuralfs", "logs")
	}
	return filepath.Join(home, ".neuralfs", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// MLXLogPath returns the MLX embedding server log path.
func MLXLogPath() string {
	return filepath.Join(DefaultLogDir(), "mlx-server.log")
}

// WatchdogLogPath returns the supervisor's log path.
func WatchdogLogPath() string {
	return filepath.Join(DefaultLogDir(), "watchdog.log")
}

// LogSource represents the source of logs to view.
type LogSource string

const (
	// LogSourceGo is the engine's own logs (default).
	LogSourceGo LogSource = "go"
	// LogSourceMLX is the MLX embedding server logs.
	LogSourceMLX LogSource = "mlx"
	// LogSourceWatchdog is the out-of-process supervisor's logs.
	LogSourceWatchdog LogSource = "watchdog"
	// LogSourceAll combines all log sources.
	LogSourceAll LogSource = "all"
)

// FindLogFile attempts to find the log file for viewing.
// Priority:
// 1. Explicit path (if provided)
// 2. ~/.neuralfs/logs/server.log (global)
//
// Returns an error if no log file is found.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	// Try global path
	globalPath := DefaultLogPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", fmt.Errorf("no log file found. Server may not have run with --debug yet.\nExpected at: %s", globalPath)
}

// FindLogFileBySource finds log files based on the source type.
// Returns a list of log file paths that exist.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	// Explicit path takes precedence
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return []string{explicit}, nil
		}
		return nil, fmt.Errorf("log file not found: %s", explicit)
	}

	var paths []string
	var checked []string

	switch source {
	case LogSourceGo:
		goPath := DefaultLogPath()
		checked = append(checked, goPath)
		if _, err := os.Stat(goPath); err == nil {
			paths = append(paths, goPath)
		}

	case LogSourceMLX:
		mlxPath := MLXLogPath()
		checked = append(checked, mlxPath)
		if _, err := os.Stat(mlxPath); err == nil {
			paths = append(paths, mlxPath)
		}

	case LogSourceWatchdog:
		wdPath := WatchdogLogPath()
		checked = append(checked, wdPath)
		if _, err := os.Stat(wdPath); err == nil {
			paths = append(paths, wdPath)
		}

	case LogSourceAll:
		goPath := DefaultLogPath()
		mlxPath := MLXLogPath()
		wdPath := WatchdogLogPath()
		checked = append(checked, goPath, mlxPath, wdPath)

		if _, err := os.Stat(goPath); err == nil {
			paths = append(paths, goPath)
		}
		if _, err := os.Stat(mlxPath); err == nil {
			paths = append(paths, mlxPath)
		}
		if _, err := os.Stat(wdPath); err == nil {
			paths = append(paths, wdPath)
		}

	default:
		return nil, fmt.Errorf("unknown log source: %s (use: go, mlx, watchdog, all)", source)
	}

	if len(paths) == 0 {
		hint := getLogHint(source)
		return nil, fmt.Errorf("no log files found for source '%s'.\nChecked: %v\n\n%s", source, checked, hint)
	}

	return paths, nil
}

// ParseLogSource parses a string into a LogSource.
func ParseLogSource(s string) LogSource {
	switch s {
	case "mlx":
		return LogSourceMLX
	case "watchdog":
		return LogSourceWatchdog
	case "all":
		return LogSourceAll
	default:
		return LogSourceGo
	}
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}

// getLogHint returns a helpful message on how to generate logs for the given source.
func getLogHint(source LogSource) string {
	switch source {
	case LogSourceGo:
		return "To generate engine logs:\n  neuralfsd --debug serve"
	case LogSourceMLX:
		return "To generate MLX server logs, enable the mlx embedding provider and reindex."
	case LogSourceWatchdog:
		return "To generate watchdog logs:\n  neuralfs-watchdog --binary $(which neuralfsd)"
	case LogSourceAll:
		return "To generate logs:\n  engine:   neuralfsd --debug serve\n  watchdog: neuralfs-watchdog --binary $(which neuralfsd)"
	default:
		return ""
	}
}
