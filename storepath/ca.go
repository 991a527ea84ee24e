// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package storepath

import (
	"fmt"

	"zombiezen.com/go/nix"
)

// ContentAddress is a content-addressability assertion:
// a hash together with the method used to ingest the bytes it hashes.
type ContentAddress = nix.ContentAddress

// FileIngestionMethod is the method used to hash a path's contents
// when computing a fixed-output content address.
type FileIngestionMethod int8

// Ingestion methods.
const (
	// Flat hashes a single file's raw bytes.
	Flat FileIngestionMethod = 1 + iota
	// Recursive hashes a NAR serialization of a path's subtree.
	Recursive
	// textIngestion is not a real [FileIngestionMethod] value exposed to
	// callers: "text" store objects (derivations and other generated text)
	// are always content-addressed by their raw bytes, but use a distinct
	// store-path type prefix from [Flat] so that they cannot collide with
	// flat file objects of the same hash.
	textIngestion
)

func methodOf(ca ContentAddress) FileIngestionMethod {
	switch {
	case ca.IsText():
		return textIngestion
	case ca.IsRecursiveFile():
		return Recursive
	default:
		return Flat
	}
}

// printMethodAlgo returns the conventional prefix for a hash algorithm name
// used in derivation ATerm output and fixed-output fingerprints:
// "<algo>" for flat files, "r:<algo>" for recursive (NAR) hashing.
func printMethodAlgo(m FileIngestionMethod, algo nix.HashType) string {
	switch m {
	case Recursive:
		return "r:" + algo.String()
	case textIngestion:
		return "text:" + algo.String()
	default:
		return algo.String()
	}
}

// IsSourceContentAddress reports whether ca describes a "source" store
// object: one hashed by its NAR serialization using a plain (non-fixed)
// SHA-256 digest. This is the addressing scheme used for directory trees
// ingested wholesale (e.g. source imports), as distinguished from
// single-file fixed-output hashes.
func IsSourceContentAddress(ca ContentAddress) bool {
	return ca.IsRecursiveFile() && ca.Hash().Type() == nix.SHA256
}

// ValidateContentAddress checks whether the combination of content address
// and reference set is one the store will accept, returning a descriptive
// error if not.
func ValidateContentAddress(ca ContentAddress, refs References) error {
	isFixedOutput := ca.IsFixed() && !IsSourceContentAddress(ca)
	switch {
	case ca.IsZero():
		return fmt.Errorf("null content address")
	case ca.IsText() && ca.Hash().Type() != nix.SHA256:
		return fmt.Errorf("text must be content-addressed by %v (got %v)", nix.SHA256, ca.Hash().Type())
	case refs.Self && ca.IsText():
		return fmt.Errorf("self-references not allowed in text")
	case !refs.IsEmpty() && isFixedOutput:
		return fmt.Errorf("references not allowed in fixed output")
	default:
		return nil
	}
}

// FixedOutputPath computes the path of a store object with the given
// directory, name, content address, and reference set.
//
// Three addressing schemes are distinguished by the "typ" fingerprint
// segment fed to [MakeStorePath]: "text" for text store objects (whose
// content address must be SHA-256), "source" for recursively-hashed
// SHA-256 trees, and a derived "fixed:out:" digest for everything else
// (single flat or recursive files hashed with an algorithm other than
// plain SHA-256, or used outside the two schemes above).
func FixedOutputPath(dir Directory, name string, ca ContentAddress, refs References) (Path, error) {
	if err := ValidateContentAddress(ca, refs); err != nil {
		return "", fmt.Errorf("compute fixed output path for %s: %v", name, err)
	}
	h := ca.Hash()
	switch {
	case ca.IsText():
		return MakeStorePath(dir, "text", h, name, refs)
	case IsSourceContentAddress(ca):
		return MakeStorePath(dir, "source", h, name, refs)
	default:
		h2 := nix.NewHasher(nix.SHA256)
		h2.WriteString("fixed:out:")
		h2.WriteString(printMethodAlgo(methodOf(ca), h.Type()) + ":")
		h2.WriteString(h.RawBase16())
		h2.WriteString(":")
		return MakeStorePath(dir, "output:out", h2.SumHash(), name, References{})
	}
}
