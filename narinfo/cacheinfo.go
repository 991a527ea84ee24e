// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package narinfo

import (
	"bytes"
	"fmt"
	"strconv"

	"lattice.dev/cachestore/storepath"
)

// CacheInfoName is the key under which the cache header is stored.
const CacheInfoName = "nix-cache-info"

// CacheInfo represents the parsed "nix-cache-info" header that
// identifies a binary cache and advertises its serving preferences.
type CacheInfo struct {
	// StoreDir is the store directory this cache serves objects for.
	StoreDir storepath.Directory
	// WantMassQuery reports whether clients should prefer bulk queries
	// against this cache.
	WantMassQuery bool
	// Priority ranks this cache against others; lower is preferred.
	// Zero means unset (callers should treat it as the default priority).
	Priority int
	// HasPriority reports whether Priority was present in the parsed
	// text, distinguishing "unset" from an explicit priority of 0.
	HasPriority bool

	// Extra holds any unrecognized "key: value" lines verbatim, preserved
	// for forward-compatibility on round-trip.
	Extra map[string]string
}

// ParseCacheInfo parses a nix-cache-info file.
func ParseCacheInfo(data []byte) (*CacheInfo, error) {
	info := &CacheInfo{Extra: make(map[string]string)}
	for lineno, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		key, value, ok := bytes.Cut(line, []byte(": "))
		if !ok {
			return nil, fmt.Errorf("parse nix-cache-info: line %d: missing ': '", lineno+1)
		}
		switch string(key) {
		case "StoreDir":
			dir, err := storepath.CleanDirectory(string(value))
			if err != nil {
				return nil, fmt.Errorf("parse nix-cache-info: line %d: StoreDir: %v", lineno+1, err)
			}
			info.StoreDir = dir
		case "WantMassQuery":
			info.WantMassQuery = string(value) == "1"
		case "Priority":
			n, err := strconv.Atoi(string(value))
			if err != nil {
				return nil, fmt.Errorf("parse nix-cache-info: line %d: Priority: %v", lineno+1, err)
			}
			info.Priority = n
			info.HasPriority = true
		default:
			info.Extra[string(key)] = string(value)
		}
	}
	if info.StoreDir == "" {
		return nil, fmt.Errorf("parse nix-cache-info: missing StoreDir")
	}
	return info, nil
}

// MarshalText encodes the header as a nix-cache-info file.
func (info *CacheInfo) MarshalText() ([]byte, error) {
	if info.StoreDir == "" {
		return nil, fmt.Errorf("marshal nix-cache-info: missing StoreDir")
	}
	var buf []byte
	buf = append(buf, "StoreDir: "...)
	buf = append(buf, info.StoreDir...)
	buf = append(buf, '\n')
	if info.WantMassQuery {
		buf = append(buf, "WantMassQuery: 1\n"...)
	}
	if info.HasPriority {
		buf = append(buf, "Priority: "...)
		buf = strconv.AppendInt(buf, int64(info.Priority), 10)
		buf = append(buf, '\n')
	}
	for k, v := range info.Extra {
		buf = append(buf, k...)
		buf = append(buf, ": "...)
		buf = append(buf, v...)
		buf = append(buf, '\n')
	}
	return buf, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			lines = append(lines, data)
			break
		}
		lines = append(lines, data[:i])
		data = data[i+1:]
	}
	return lines
}
