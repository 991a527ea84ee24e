// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package cache

import "errors"

// Sentinel errors returned by [Store] methods. Callers should use
// [errors.Is] to test for these, since they are always wrapped with
// additional context.
var (
	// ErrFormat indicates a record (narinfo, cache header, NAR listing)
	// could not be parsed.
	ErrFormat = errors.New("cache: malformed record")
	// ErrInvalidReference indicates a store object references another
	// store object that does not exist in the cache.
	ErrInvalidReference = errors.New("cache: invalid reference")
	// ErrNotFound indicates the requested key does not exist in the
	// backend. Returned by [Backend.GetFile] for missing keys.
	// [Store.NarFromPath], [Store.AddSignatures] and [Store.GetBuildLog]
	// wrap it for a path with no narinfo; [Store.QueryPathInfo] reports
	// such a path as (nil, nil), and NarFromPath reports a missing NAR
	// blob as [ErrSubstituteGone].
	ErrNotFound = errors.New("cache: not found")
	// ErrIntegrity indicates ingested data failed an integrity check:
	// the input is not a NAR archive, or a computed hash did not match
	// a recorded or expected hash.
	ErrIntegrity = errors.New("cache: integrity check failed")
	// ErrConfiguration indicates the cache's configuration conflicts
	// with what is already recorded in the backend (e.g. StoreDir
	// mismatch in nix-cache-info).
	ErrConfiguration = errors.New("cache: configuration mismatch")
	// ErrSubstituteGone indicates a path's narinfo exists but the NAR
	// blob it references is no longer present in the backend, distinct
	// from a path that never existed.
	ErrSubstituteGone = errors.New("cache: substitute no longer available")
)
