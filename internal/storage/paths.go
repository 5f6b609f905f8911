// Package storage provides persistent storage for engine options, usage
// statistics and cached tablebase results.
package storage

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog/log"
)

const appName = "chesscore"

// GetDataDir returns the platform-specific data directory for the application.
// - macOS: ~/Library/Application Support/chesscore/
// - Linux: $XDG_DATA_HOME/chesscore/ or ~/.local/share/chesscore/
// - Windows: %APPDATA%/chesscore/
func GetDataDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(homeDir, "Library", "Application Support")

	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, "AppData", "Roaming")
		}

	default:
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, ".local", "share")
		}
	}

	dataDir := filepath.Join(baseDir, appName)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}
	return dataDir, nil
}

// GetNNUEDir returns the directory for network weight files.
func GetNNUEDir(dataDir string) (string, error) {
	return subDir(dataDir, "nnue")
}

// ResolveNNUEFile locates a network weights file. A name that exists as
// given, or an absolute path, is returned unchanged; otherwise the name is
// looked up in the network directory under dataDir. A name found nowhere is
// returned as is so the caller reports the original path.
func ResolveNNUEFile(dataDir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return name, nil
	}
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	dir, err := GetNNUEDir(dataDir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return name, nil
	}
	return path, nil
}

// GetDatabaseDir returns the directory holding the database.
func GetDatabaseDir(dataDir string) (string, error) {
	dbDir, err := subDir(dataDir, "db")
	if err != nil {
		return "", err
	}
	log.Debug().Str("component", "storage").Str("dir", dbDir).Msg("database directory")
	return dbDir, nil
}

func subDir(dataDir, name string) (string, error) {
	if dataDir == "" {
		var err error
		if dataDir, err = GetDataDir(); err != nil {
			return "", err
		}
	}
	dir := filepath.Join(dataDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
