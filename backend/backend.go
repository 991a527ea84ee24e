// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package backend provides concrete [lattice.dev/cachestore/cache.Backend]
// implementations: an in-memory map for tests and a directory-rooted
// filesystem store for production use.
package backend

import "strings"

// ContentType returns the advisory MIME type a cache key was last
// upserted with, inferred by extension for backends (like [Dir]) that
// cannot persist it out of band. It is a best-effort fallback for
// servers that want a Content-Type header and have no other record of
// one.
func ContentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".narinfo"):
		return "text/x-nix-narinfo"
	case key == "nix-cache-info":
		return "text/x-nix-cache-info"
	case strings.HasSuffix(key, ".nar"):
		return "application/x-nix-nar"
	case strings.HasSuffix(key, ".nar.bz2"):
		return "application/x-bzip2"
	case strings.HasSuffix(key, ".nar.br"):
		return "application/x-brotli"
	case strings.HasSuffix(key, ".nar.xz"):
		return "application/x-xz"
	case strings.HasSuffix(key, ".ls"), strings.HasPrefix(key, "debuginfo/"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
