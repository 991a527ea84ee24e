// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"lattice.dev/cachestore/cache"
)

func TestMemory(t *testing.T) {
	testBackend(t, func(t *testing.T) cache.Backend {
		return NewMemory()
	})
}

func TestDir(t *testing.T) {
	testBackend(t, func(t *testing.T) cache.Backend {
		b, err := NewDir(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		return b
	})
}

// testBackend runs the same conformance checks against any
// [cache.Backend] implementation.
func testBackend(t *testing.T, newBackend func(t *testing.T) cache.Backend) {
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		b := newBackend(t)
		if _, err := b.GetFile(ctx, "missing.narinfo"); !errors.Is(err, cache.ErrNotFound) {
			t.Errorf("GetFile(missing) error = %v, want wrapping ErrNotFound", err)
		}
		exists, err := b.FileExists(ctx, "missing.narinfo")
		if err != nil {
			t.Fatal(err)
		}
		if exists {
			t.Error("FileExists(missing) = true, want false")
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		b := newBackend(t)
		const key = "nar/abc123.nar.bz2"
		want := []byte("hello, cache")
		if err := b.UpsertFile(ctx, key, bytes.NewReader(want), "application/x-bzip2"); err != nil {
			t.Fatal(err)
		}
		exists, err := b.FileExists(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if !exists {
			t.Fatal("FileExists after UpsertFile = false, want true")
		}
		rc, err := b.GetFile(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		defer rc.Close()
		got, err := io.ReadAll(rc)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("GetFile content = %q, want %q", got, want)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		b := newBackend(t)
		const key = "x.narinfo"
		if err := b.UpsertFile(ctx, key, bytes.NewReader([]byte("v1")), narinfoMIME); err != nil {
			t.Fatal(err)
		}
		if err := b.UpsertFile(ctx, key, bytes.NewReader([]byte("v2")), narinfoMIME); err != nil {
			t.Fatal(err)
		}
		rc, err := b.GetFile(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		defer rc.Close()
		got, err := io.ReadAll(rc)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "v2" {
			t.Errorf("GetFile content after overwrite = %q, want %q", got, "v2")
		}
	})

	t.Run("NestedKey", func(t *testing.T) {
		b := newBackend(t)
		const key = "debuginfo/abcdef0123456789abcdef0123456789abcdef01"
		if err := b.UpsertFile(ctx, key, bytes.NewReader([]byte("{}")), "application/json"); err != nil {
			t.Fatal(err)
		}
		exists, err := b.FileExists(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if !exists {
			t.Error("FileExists(nested key) = false, want true")
		}
	})
}

const narinfoMIME = "text/x-nix-narinfo"

func TestContentType(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"nix-cache-info", "text/x-nix-cache-info"},
		{"0123456789abcdefghijklmnopqrstuv.narinfo", "text/x-nix-narinfo"},
		{"nar/abc.nar", "application/x-nix-nar"},
		{"nar/abc.nar.bz2", "application/x-bzip2"},
		{"hello-1.0.ls", "application/json"},
		{"debuginfo/" + "a", "application/json"},
		{"log/hello-1.0", "application/octet-stream"},
	}
	for _, tc := range tests {
		if got := ContentType(tc.key); got != tc.want {
			t.Errorf("ContentType(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}
