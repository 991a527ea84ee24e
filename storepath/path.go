// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

// Package storepath implements the identity model of a content-addressed
// artifact store: store directories, store paths, and the hashing scheme
// that derives a path's name from the content it identifies.
package storepath

import (
	"crypto/sha256"
	"fmt"
	"io"
	"path"
	"strings"

	"zombiezen.com/go/nix"
	"zombiezen.com/go/nix/nixbase32"
)

// Directory is the absolute path of the store's root directory.
type Directory string

// DefaultDirectory is the directory used when none is configured.
const DefaultDirectory Directory = "/var/cache/store"

// CleanDirectory cleans an absolute path as a [Directory].
// It returns an error if the path is not absolute.
func CleanDirectory(p string) (Directory, error) {
	if !path.IsAbs(p) {
		return "", fmt.Errorf("store directory %q is not absolute", p)
	}
	return Directory(path.Clean(p)), nil
}

// Object returns the store path for the given store object name.
func (dir Directory) Object(name string) (Path, error) {
	joined := dir.Join(name)
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') {
		return "", fmt.Errorf("parse store path %s: invalid object name %q", joined, name)
	}
	return ParsePath(joined)
}

// Join joins path elements to the store directory.
func (dir Directory) Join(elem ...string) string {
	return path.Join(append([]string{string(dir)}, elem...)...)
}

// ParsePath verifies that an absolute path begins with the store directory
// and names either a store object or a file inside a store object.
// On success, it returns the store object's path and the relative path
// inside the store object, if any.
func (dir Directory) ParsePath(p string) (storePath Path, sub string, err error) {
	if !path.IsAbs(p) {
		return "", "", fmt.Errorf("parse store path %s: not absolute", p)
	}
	cleaned := path.Clean(p)
	dirPrefix := path.Clean(string(dir)) + "/"
	tail, ok := strings.CutPrefix(cleaned, dirPrefix)
	if !ok {
		return "", "", fmt.Errorf("parse store path %s: outside %s", p, dir)
	}
	childName, sub, _ := strings.Cut(tail, "/")
	storePath, err = ParsePath(cleaned[:len(dirPrefix)+len(childName)])
	if err != nil {
		return "", "", err
	}
	return storePath, sub, nil
}

// Path is the absolute path of a store object:
// "<storeDir>/<hashPart>-<name>".
type Path string

const (
	// hashPartLength is the length in characters of the base-32 hash part
	// of a store object's name.
	hashPartLength = 32
	maxObjectNameLength = hashPartLength + 1 + 211
)

// ParsePath parses an absolute path as a store path
// (i.e. an immediate child of a store directory).
func ParsePath(p string) (Path, error) {
	if !path.IsAbs(p) {
		return "", fmt.Errorf("parse store path %s: not absolute", p)
	}
	cleaned := path.Clean(p)
	_, base := path.Split(cleaned)
	if len(base) < hashPartLength+len("-")+1 {
		return "", fmt.Errorf("parse store path %s: %q is too short", p, base)
	}
	if len(base) > maxObjectNameLength {
		return "", fmt.Errorf("parse store path %s: %q is too long", p, base)
	}
	for i := 0; i < len(base); i++ {
		if !isNameChar(base[i]) {
			return "", fmt.Errorf("parse store path %s: %q contains illegal character %q", p, base, base[i])
		}
	}
	if err := nixbase32.ValidateString(base[:hashPartLength]); err != nil {
		return "", fmt.Errorf("parse store path %s: %v", p, err)
	}
	if base[hashPartLength] != '-' {
		return "", fmt.Errorf("parse store path %s: hash part not separated by dash", p)
	}
	return Path(cleaned), nil
}

// Dir returns the path's store directory.
func (p Path) Dir() Directory {
	return Directory(path.Dir(string(p)))
}

// Base returns the last element of the path.
func (p Path) Base() string {
	if p == "" {
		return ""
	}
	return path.Base(string(p))
}

// HashPart returns the 32-character base-32 identity prefix of the path's name.
//
// Identity equality between two store paths is defined solely by equal
// hash parts: two paths with the same hash part but different name parts
// are a known aliasing hazard.
func (p Path) HashPart() string {
	base := p.Base()
	if len(base) < hashPartLength {
		return ""
	}
	return base[:hashPartLength]
}

// Name returns the human-readable portion of the path's name,
// i.e. everything after the hash part and its separating dash.
func (p Path) Name() string {
	base := p.Base()
	if len(base) <= hashPartLength+len("-") {
		return ""
	}
	return base[hashPartLength+len("-"):]
}

// Join joins path elements to the store path.
func (p Path) Join(elem ...string) string {
	elem = append([]string{p.Base()}, elem...)
	return p.Dir().Join(elem...)
}

// MarshalText returns the path's bytes, or an error if the path is empty.
func (p Path) MarshalText() ([]byte, error) {
	if p == "" {
		return nil, fmt.Errorf("marshal store path: empty")
	}
	return []byte(p), nil
}

// UnmarshalText validates and cleans the path in the same way as [ParsePath].
func (p *Path) UnmarshalText(data []byte) error {
	parsed, err := ParsePath(string(data))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func isNameChar(c byte) bool {
	return 'a' <= c && c <= 'z' ||
		'A' <= c && c <= 'Z' ||
		'0' <= c && c <= '9' ||
		c == '+' || c == '-' || c == '.' || c == '_' || c == '='
}

// MakeStorePath computes the store path for an object identified by
// the ingestion typ string ("text", "source", or "output:<id>"), its
// content hash, its name, and the set of other store objects it references.
//
// This follows the scheme documented at
// https://nixos.org/manual/nix/stable/protocols/store-path: the path's
// hash part is a base-32 encoding of a 160-bit truncation of the SHA-256
// digest of a fingerprint built from the ingestion method, references,
// content hash, store directory, and name.
func MakeStorePath(dir Directory, typ string, hash nix.Hash, name string, refs References) (Path, error) {
	h := sha256.New()
	io.WriteString(h, typ)
	for _, ref := range refs.Others.Slice() {
		io.WriteString(h, ":")
		io.WriteString(h, string(ref))
	}
	if refs.Self {
		io.WriteString(h, ":self")
	}
	io.WriteString(h, ":")
	io.WriteString(h, hash.Base16())
	io.WriteString(h, ":")
	io.WriteString(h, string(dir))
	io.WriteString(h, ":")
	io.WriteString(h, name)
	fingerprint := h.Sum(nil)

	compressed := make([]byte, 20)
	nix.CompressHash(compressed, fingerprint)
	digest := nixbase32.EncodeToString(compressed)
	return dir.Object(digest + "-" + name)
}
