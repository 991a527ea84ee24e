// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"strings"
	"testing"

	"lattice.dev/cachestore/storepath"
)

func TestStoreDirectoryFlag(t *testing.T) {
	var f storeDirectoryFlag
	if err := f.Set("/cache/store"); err != nil {
		t.Fatal(err)
	}
	if got, want := storepath.Directory(f), storepath.Directory("/cache/store"); got != want {
		t.Errorf("after Set: Directory = %q, want %q", got, want)
	}
	if got, want := f.String(), "/cache/store"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got, ok := f.Get().(storepath.Directory); !ok || got != storepath.Directory("/cache/store") {
		t.Errorf("Get() = %#v, want storepath.Directory(%q)", f.Get(), "/cache/store")
	}
}

func TestStoreDirectoryFlagRejectsRelative(t *testing.T) {
	var f storeDirectoryFlag
	if err := f.Set("relative/path"); err == nil {
		t.Error("Set(relative path) = nil, want error")
	}
}

func TestDefaultCacheDir(t *testing.T) {
	dir := defaultCacheDir()
	if dir == "" {
		t.Fatal("defaultCacheDir() returned empty string")
	}
	if !strings.HasSuffix(dir, "cachestore") {
		t.Errorf("defaultCacheDir() = %q, want suffix %q", dir, "cachestore")
	}
}
