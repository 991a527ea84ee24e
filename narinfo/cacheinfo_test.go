// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package narinfo

import "testing"

func TestCacheInfoRoundTrip(t *testing.T) {
	info := &CacheInfo{
		StoreDir:      "/cache/store",
		WantMassQuery: true,
		Priority:      30,
		HasPriority:   true,
	}
	data, err := info.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseCacheInfo(data)
	if err != nil {
		t.Fatalf("ParseCacheInfo(%q): %v", data, err)
	}
	if got.StoreDir != info.StoreDir {
		t.Errorf("StoreDir = %q, want %q", got.StoreDir, info.StoreDir)
	}
	if got.WantMassQuery != info.WantMassQuery {
		t.Errorf("WantMassQuery = %v, want %v", got.WantMassQuery, info.WantMassQuery)
	}
	if got.Priority != info.Priority || !got.HasPriority {
		t.Errorf("Priority = %d (has=%v), want %d (has=true)", got.Priority, got.HasPriority, info.Priority)
	}
}

func TestParseCacheInfoMissingStoreDir(t *testing.T) {
	if _, err := ParseCacheInfo([]byte("WantMassQuery: 1\n")); err == nil {
		t.Error("ParseCacheInfo without StoreDir = nil, want error")
	}
}

func TestParseCacheInfoExtra(t *testing.T) {
	data := []byte("StoreDir: /cache/store\nSomeKey: some value\n")
	info, err := ParseCacheInfo(data)
	if err != nil {
		t.Fatal(err)
	}
	if info.Extra["SomeKey"] != "some value" {
		t.Errorf("Extra[SomeKey] = %q, want %q", info.Extra["SomeKey"], "some value")
	}
}
