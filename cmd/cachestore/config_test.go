// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"os"
	"path/filepath"
	"testing"

	"lattice.dev/cachestore/narinfo"
	"lattice.dev/cachestore/storepath"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cachestore.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func noFlagsSet(string) bool { return false }

func TestLoadConfigFillsUnsetFields(t *testing.T) {
	path := writeConfig(t, `{
		"store": "/cache/store",
		"cacheDir": "/var/cache/cachestore",
		"priority": 10,
		"wantMassQuery": false,
		"compression": "none"
	}`)

	var g globalConfig
	if err := loadConfig(&g, path, noFlagsSet); err != nil {
		t.Fatal(err)
	}
	if got, want := g.storeDir, storepath.Directory("/cache/store"); got != want {
		t.Errorf("storeDir = %q, want %q", got, want)
	}
	if got, want := g.cacheDir, "/var/cache/cachestore"; got != want {
		t.Errorf("cacheDir = %q, want %q", got, want)
	}
	if got, want := g.priority, 10; got != want {
		t.Errorf("priority = %d, want %d", got, want)
	}
	if g.massQuery {
		t.Error("massQuery = true, want false")
	}
	if got, want := g.compression, narinfo.NoCompression; got != want {
		t.Errorf("compression = %q, want %q", got, want)
	}
}

func TestLoadConfigFlagsWinOverFile(t *testing.T) {
	path := writeConfig(t, `{"cacheDir": "/from/config", "priority": 10}`)

	g := globalConfig{cacheDir: "/from/flag", priority: 99}
	flagSet := func(name string) bool {
		return name == "cache-dir" || name == "priority"
	}
	if err := loadConfig(&g, path, flagSet); err != nil {
		t.Fatal(err)
	}
	if got, want := g.cacheDir, "/from/flag"; got != want {
		t.Errorf("cacheDir = %q, want %q (flag should win)", got, want)
	}
	if got, want := g.priority, 99; got != want {
		t.Errorf("priority = %d, want %d (flag should win)", got, want)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	var g globalConfig
	if err := loadConfig(&g, filepath.Join(t.TempDir(), "missing.json"), noFlagsSet); err == nil {
		t.Error("loadConfig(missing file) = nil, want error")
	}
}
