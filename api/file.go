// Package api holds the decil document types and the file helpers they
// share.
package api

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrIsDirectory is returned when a file path names a directory.
	ErrIsDirectory = errors.New("path is a directory")
	// ErrNotRegular is returned when a file path names a device, socket or
	// other non-regular file.
	ErrNotRegular = errors.New("not a regular file")
)

// GetConfigPath returns the path of filename in the decil config directory.
// The directory is the first of $XDG_CONFIG_HOME/decil, ~/.config/decil and
// a temp directory that can be determined.
func GetConfigPath(filename string) string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "decil", filename)
	}

	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".config", "decil", filename)
	}

	path := filepath.Join(os.TempDir(), "decil", filename)

	slog.Warn("no user config directory, using temp path",
		slog.String("path", path),
		slog.Any("err", err),
	)

	return path
}

// checkRegular returns whether path exists, and an error if it exists but
// is not a regular file.
func checkRegular(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat %s: %w", path, err)
	case info.IsDir():
		return true, fmt.Errorf("%s: %w", path, ErrIsDirectory)
	case !info.Mode().IsRegular():
		return true, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}

	return true, nil
}

// ReadFile reads the regular file at path.
func ReadFile(path string) ([]byte, error) {
	exists, err := checkRegular(path)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, fmt.Errorf("read %s: %w", path, fs.ErrNotExist)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: user supplied path.
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// WriteDefaultFile writes data to path unless a file already exists there.
// With force, an existing file is renamed to `<name>.<unixnano>.old` first.
// kind names the document in log messages.
func WriteDefaultFile(path string, data []byte, force bool, kind string) error {
	exists, err := checkRegular(path)
	if err != nil {
		return err
	}

	if exists && !force {
		slog.Debug("file exists, skipping write", slog.String("type", kind), slog.String("path", path))
		return nil
	}

	err = os.MkdirAll(filepath.Dir(path), 0o700)
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	if exists {
		backup := fmt.Sprintf("%s.%d.old", path, time.Now().UnixNano())

		slog.Info("backing up existing file", slog.String("type", kind), slog.String("path", backup))

		err = os.Rename(path, backup)
		if err != nil {
			return fmt.Errorf("back up %s file: %w", kind, err)
		}
	}

	slog.Info("write default file", slog.String("type", kind), slog.String("path", path))

	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		return fmt.Errorf("write %s file: %w", kind, err)
	}

	return nil
}
