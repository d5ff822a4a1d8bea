// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile replaces files so readers never observe a partial
// write. Content goes to a temporary file in the destination directory,
// which is fsynced, closed, and renamed over the destination; the
// directory is then synced so the rename survives a power loss.
//
// Concurrent writers to the same path each use their own temporary file.
// The last rename wins and every reader sees one complete version.
package atomicfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Write atomically replaces path with data.
func Write(path string, data []byte, perm os.FileMode) error {
	_, err := WriteFrom(path, bytes.NewReader(data), perm)
	return err
}

// WriteFrom atomically replaces path with everything read from source
// and returns the number of bytes written. The parent directory must
// exist. On error the destination is untouched and no temporary file
// remains.
func WriteFrom(path string, source io.Reader, perm os.FileMode) (int64, error) {
	directory := filepath.Dir(path)
	file, err := os.CreateTemp(directory, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return 0, fmt.Errorf("creating temporary file for %s: %w", path, err)
	}
	temporaryPath := file.Name()

	// Write, sync, chmod, close. Any failure removes the temporary file
	// and reports the first error.
	written, err := io.Copy(file, source)
	if err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return 0, fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := file.Chmod(perm); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return 0, fmt.Errorf("setting mode of %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return 0, fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return 0, fmt.Errorf("renaming %s into place: %w", path, err)
	}

	if parent, err := os.Open(directory); err == nil {
		parent.Sync()
		parent.Close()
	}
	return written, nil
}
