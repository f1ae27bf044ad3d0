/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FilesystemStorage implements Storage on the local filesystem under a
// single media root directory.
type FilesystemStorage struct {
	rootDir string
	logger  zerolog.Logger
}

// NewFilesystemStorage creates a filesystem-based storage backend.
func NewFilesystemStorage(rootDir string, logger zerolog.Logger) *FilesystemStorage {
	return &FilesystemStorage{
		rootDir: rootDir,
		logger:  logger,
	}
}

// Store writes the file under the given key, creating parent directories.
func (fs *FilesystemStorage) Store(ctx context.Context, key, contentType string, file io.Reader) error {
	fullPath := filepath.Join(fs.rootDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	dest, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(dest, file); err != nil {
		dest.Close()
		os.Remove(fullPath) // Clean up on failure
		return fmt.Errorf("write file: %w", err)
	}
	if err := dest.Close(); err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("close file: %w", err)
	}

	fs.logger.Debug().
		Str("path", fullPath).
		Str("key", key).
		Msg("filesystem storage: file stored")

	return nil
}

// Delete removes a file. Missing files are not an error.
func (fs *FilesystemStorage) Delete(ctx context.Context, key string) error {
	fullPath := filepath.Join(fs.rootDir, filepath.FromSlash(key))
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}

	fs.logger.Debug().Str("path", fullPath).Msg("filesystem storage: file deleted")
	return nil
}

// PlaybackRef returns the absolute path for a stored file, verifying it
// still exists so playback failures surface before ffmpeg spawns.
func (fs *FilesystemStorage) PlaybackRef(ctx context.Context, key string) (string, error) {
	fullPath := filepath.Join(fs.rootDir, filepath.FromSlash(key))
	if _, err := os.Stat(fullPath); err != nil {
		return "", fmt.Errorf("stat media file: %w", err)
	}
	abs, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("resolve media path: %w", err)
	}
	return abs, nil
}

// CheckAccess verifies the storage directory exists and is accessible.
func (fs *FilesystemStorage) CheckAccess(ctx context.Context) error {
	info, err := os.Stat(fs.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("media root directory does not exist: %s", fs.rootDir)
		}
		return fmt.Errorf("cannot access media root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("media root is not a directory: %s", fs.rootDir)
	}
	return nil
}
