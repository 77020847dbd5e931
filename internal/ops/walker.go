package ops

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/docsentry/backend/internal/settings"
	"github.com/docsentry/backend/pkg/logger"
)

var (
	ErrPathNotFound     = errors.New("path not found")
	ErrPathNotDirectory = errors.New("path is not a directory")
	ErrPathNotReadable  = errors.New("path not readable")
)

// ValidateDirectory rejects bad paths before an operation is accepted, so the
// caller gets a synchronous error instead of an operation that dies at birth.
func ValidateDirectory(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPathNotReadable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrPathNotDirectory, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPathNotReadable, err)
	}
	f.Close()
	return nil
}

type walkEntry struct {
	Path    string
	Ignored bool
}

// collectFiles walks root and returns every regular file. When
// includeIgnored is set, files matching an ignore pattern are returned with
// the Ignored flag so the caller can count them as skipped; otherwise they
// are filtered out of the result entirely. Unreadable subtrees are logged
// and skipped, never fatal.
func collectFiles(root string, ignore *settings.IgnoreStore, includeIgnored bool) ([]walkEntry, error) {
	var entries []walkEntry

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("Skipping unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		ignored := ignore != nil && ignore.ShouldIgnore(path)
		if ignored && !includeIgnored {
			return nil
		}
		entries = append(entries, walkEntry{Path: path, Ignored: ignored})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return entries, nil
}
