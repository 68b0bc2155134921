// Package fileutils provides utility functions for handling files.
package fileutils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// AtomicWrite writes data to a file atomically.
// If the file already exists, then it will be overwritten.
// Not atomic on Windows.
func AtomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "tmp-*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temporary file: %v", err)
	}
	defer func() {
		_ = tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove temporary file", "file", tmp.Name(), "error", err)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("could not write to temporary file: %v", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close temporary file: %v", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not rename temporary file: %v", err)
	}
	return nil
}

// CopyStream copies src into a new file at path, syncing before close.
// Partially written files are removed on error.
func CopyStream(path string, src io.Reader) (written int64, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("could not create file: %v", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("could not close file: %v", cErr)
		}
		if err != nil {
			if rErr := os.Remove(path); rErr != nil && !os.IsNotExist(rErr) {
				slog.Warn("Failed to remove partial file", "file", path, "error", rErr)
			}
		}
	}()

	written, err = io.Copy(f, src)
	if err != nil {
		return written, fmt.Errorf("could not write file: %v", err)
	}

	if err := f.Sync(); err != nil {
		return written, fmt.Errorf("could not sync file: %v", err)
	}
	return written, nil
}
