// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package cache

import (
	"fmt"

	"lattice.dev/cachestore/narinfo"
	"lattice.dev/cachestore/sink"
	"lattice.dev/cachestore/storepath"
	"zombiezen.com/go/nix"
)

func narInfoKey(path storepath.Path) string {
	return path.HashPart() + narinfo.Extension
}

func narKey(fileHash nix.Hash, algo nix.CompressionType) string {
	return "nar/" + fileHash.Base32() + ".nar" + sink.Ext(algo)
}

func listingKey(path storepath.Path) string {
	return path.Base() + ".ls"
}

func debugInfoKey(buildID string) string {
	return "debuginfo/" + buildID
}

func buildLogKey(path storepath.Path) string {
	return "log/" + path.Base()
}

func parseBuildID(hexID string) error {
	if len(hexID) != 40 {
		return fmt.Errorf("build id %q: must be 40 hex characters", hexID)
	}
	for _, c := range hexID {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
		default:
			return fmt.Errorf("build id %q: not lowercase hex", hexID)
		}
	}
	return nil
}
