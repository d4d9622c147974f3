package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// LogFileName is the name of the active log file.
const LogFileName = "searchsync.log"

// DefaultLogDir returns the log directory for the project data dir.
func DefaultLogDir(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}

// DefaultLogPath returns the log file path for the project data dir.
func DefaultLogPath(dataDir string) string {
	return filepath.Join(DefaultLogDir(dataDir), LogFileName)
}

// FindLogFile returns explicit if set, otherwise the default log file of
// dataDir. It fails when the chosen file does not exist.
func FindLogFile(explicit, dataDir string) (string, error) {
	path := explicit
	if path == "" {
		path = DefaultLogPath(dataDir)
	}
	if _, err := os.Stat(path); err != nil {
		if explicit != "" {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return "", fmt.Errorf("no log file found at %s; run 'searchsync watch' with logging.file set or --debug first", path)
	}
	return path, nil
}
