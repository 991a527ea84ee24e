// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"lattice.dev/cachestore/cache"
)

// Dir is a [cache.Backend] rooted at a directory on the local
// filesystem. Keys map onto paths below root using '/' as the
// separator; writes are staged in a temp file next to the final
// location and renamed into place, so a reader never observes a
// partially written blob.
type Dir struct {
	root string
}

var _ cache.Backend = (*Dir)(nil)

// NewDir returns a [Dir] rooted at root, creating it if it does not
// already exist.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o777); err != nil {
		return nil, fmt.Errorf("new directory backend: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) realPath(key string) string {
	return filepath.Join(d.root, filepath.FromSlash(key))
}

func (d *Dir) GetFile(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(d.realPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("get %s: %w", key, cache.ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return f, nil
}

// UpsertFile writes the contents of r to key, creating any
// intermediate directories the key implies. mimeType is ignored: the
// local filesystem has no metadata slot for it, so readers fall back
// to [ContentType] when one is needed.
func (d *Dir) UpsertFile(ctx context.Context, key string, r io.Reader, mimeType string) (err error) {
	dst := d.realPath(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o777); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (d *Dir) FileExists(ctx context.Context, key string) (bool, error) {
	_, err := os.Lstat(d.realPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}
