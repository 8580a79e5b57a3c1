// Package fsutil resolves model and reference files and prepares the
// directories the service writes into.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Environment variable names used for path resolution.
const (
	envCacheDir     = "CACHE_DIR"
	envXDGCacheHome = "XDG_CACHE_HOME"
	envAppData      = "APPDATA"
)

const (
	appName               = "voice-clone-service"
	modelsDirName         = "models"
	defaultDirPermissions = 0o750
	osWindows             = "windows"
	osDarwin              = "darwin"
)

// Time and size formatting constants.
const (
	secondsInMinute = 60
	formatSeconds   = "%.1fs"
	formatMinutes   = "%dm %.1fs"
	formatMB        = "%.1f MB"
	formatKB        = "%.1f KB"
	formatBytes     = "%d B"
)

const (
	errFmtFailedToCreateDir = "failed to create directory %s: %w"
	errFmtAbsolutePath      = "could not resolve absolute path for %q: %w"
	errFmtCheckingPath      = "error checking path %q: %w"
)

// ErrFileNotFound is returned when no candidate location holds the file.
var ErrFileNotFound = errors.New("file not found")

// CacheDir returns the per-user cache directory, honoring CACHE_DIR first.
func CacheDir() string {
	if cacheDir := os.Getenv(envCacheDir); cacheDir != "" {
		return cacheDir
	}

	switch runtime.GOOS {
	case osWindows:
		if appData := os.Getenv(envAppData); appData != "" {
			return filepath.Join(appData, appName, "cache")
		}
	case osDarwin:
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Caches", appName)
		}
	default:
		if xdg := os.Getenv(envXDGCacheHome); xdg != "" {
			return filepath.Join(xdg, appName)
		}

		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".cache", appName)
		}
	}

	return filepath.Join(os.TempDir(), appName, "cache")
}

// EnsureDir creates path and its parents when missing.
func EnsureDir(path string) error {
	err := os.MkdirAll(path, defaultDirPermissions)
	if err != nil {
		return fmt.Errorf(errFmtFailedToCreateDir, path, err)
	}

	return nil
}

// ResolveFile returns the absolute path of name, looking at name itself,
// then models/<name>, then <cache>/models/<name>.
func ResolveFile(name string) (string, error) {
	candidates := []string{
		name,
		filepath.Join(modelsDirName, name),
		filepath.Join(CacheDir(), modelsDirName, name),
	}

	for _, path := range candidates {
		resolved, found, err := resolveSinglePath(path)
		if err != nil {
			return "", err
		}

		if found {
			return resolved, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrFileNotFound, name)
}

func resolveSinglePath(path string) (string, bool, error) {
	_, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return "", false, nil
		}

		return "", false, fmt.Errorf(errFmtCheckingPath, path, statErr)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", false, fmt.Errorf(errFmtAbsolutePath, path, err)
	}

	return absPath, true, nil
}

// FormatDuration renders seconds as "45.2s" or "5m 30.5s".
func FormatDuration(seconds float64) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	minutes := int(seconds / secondsInMinute)

	return fmt.Sprintf(formatMinutes, minutes, seconds-float64(minutes*secondsInMinute))
}

// FormatFileSize renders a byte count as "512 B", "1.5 KB" or "2.0 MB".
func FormatFileSize(bytes int64) string {
	const (
		kilobyte = 1024
		megabyte = kilobyte * 1024
	)

	switch {
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}
