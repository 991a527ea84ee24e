// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"

	jsonv2 "github.com/go-json-experiment/json"

	"lattice.dev/cachestore/narinfo"
	"lattice.dev/cachestore/storepath"
)

// fileConfig is the on-disk JSON representation of the fields
// [globalConfig] otherwise takes as flags. Flags always win over the
// config file: loadConfig only fills in fields whose flag was never
// set on the command line, the same precedence cobra/pflag gives a
// flag over its own default value.
type fileConfig struct {
	Store         string `json:"store"`
	CacheDir      string `json:"cacheDir"`
	CacheDB       string `json:"cacheDB"`
	KeyFile       string `json:"secretKeyFile"`
	Priority      *int   `json:"priority"`
	WantMassQuery *bool  `json:"wantMassQuery"`
	Compression   string `json:"compression"`
}

// loadConfig reads a JSON config file at path and applies its fields to
// g, skipping any field whose flag was explicitly set on the command
// line.
func loadConfig(g *globalConfig, path string, isSet func(flag string) bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	var f fileConfig
	if err := jsonv2.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	if f.Store != "" && !isSet("store") {
		dir, err := storepath.CleanDirectory(f.Store)
		if err != nil {
			return fmt.Errorf("load config %s: store: %w", path, err)
		}
		g.storeDir = dir
	}
	if f.CacheDir != "" && !isSet("cache-dir") {
		g.cacheDir = f.CacheDir
	}
	if f.CacheDB != "" && !isSet("cache-db") {
		g.cacheDB = f.CacheDB
	}
	if f.KeyFile != "" && !isSet("key-file") {
		g.keyFile = f.KeyFile
	}
	if f.Priority != nil && !isSet("priority") {
		g.priority = *f.Priority
	}
	if f.WantMassQuery != nil && !isSet("want-mass-query") {
		g.massQuery = *f.WantMassQuery
	}
	if f.Compression != "" && !isSet("compression") {
		g.compression = narinfo.CompressionType(f.Compression)
	}
	return nil
}
