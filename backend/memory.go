// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"lattice.dev/cachestore/cache"
)

// Memory is an in-memory [cache.Backend], useful for tests and for
// small or ephemeral caches that do not need to survive a restart.
// The zero value is an empty backend ready to use.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

var _ cache.Backend = (*Memory)(nil)

// NewMemory returns a new, empty [Memory] backend.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) GetFile(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, cache.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) UpsertFile(ctx context.Context, key string, r io.Reader, mimeType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[key] = data
	return nil
}

func (m *Memory) FileExists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[key]
	return ok, nil
}
