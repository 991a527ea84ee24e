// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package cache implements the binary cache store: a content-addressed
// archive of build artifacts, addressable by the Nix binary cache
// protocol's key layout (nix-cache-info, .narinfo, NAR blobs, NAR
// listings, debuginfo indexes, build logs). A [Store] orchestrates
// reading and writing these records against a pluggable flat-namespace
// [Backend], with a two-tier [pathcache.Cache] in front of the
// .narinfo lookups that dominate a cache's traffic.
package cache

import (
	"context"
	"io"
)

// Backend is the flat key-value blob storage a [Store] is built on.
// Keys are '/'-separated UTF-8 relative paths; there are no directory
// operations, only whole-key reads and writes.
//
// Implementations: [lattice.dev/cachestore/backend.Memory] (in-memory,
// for tests) and [lattice.dev/cachestore/backend.Dir] (rooted at a
// directory on the local filesystem).
type Backend interface {
	// GetFile opens the blob stored at key. It returns an error
	// wrapping [ErrNotFound] if key does not exist.
	GetFile(ctx context.Context, key string) (io.ReadCloser, error)
	// UpsertFile writes (creating or overwriting) the blob at key,
	// draining r fully. mimeType is advisory, used by backends that
	// serve blobs over HTTP.
	UpsertFile(ctx context.Context, key string, r io.Reader, mimeType string) error
	// FileExists reports whether key exists in the backend.
	FileExists(ctx context.Context, key string) (bool, error)
}
