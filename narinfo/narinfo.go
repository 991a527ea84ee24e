// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

// Package narinfo implements parsing and serialization of the cache's
// metadata records: the per-artifact ".narinfo" file and the
// cache-wide "nix-cache-info" header.
package narinfo

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"

	"lattice.dev/cachestore/storepath"
	"zombiezen.com/go/nix"
)

// Extension is the file extension for a file containing NAR information.
const Extension = nix.NARInfoExtension

// MIMEType is the MIME content type for a .narinfo file.
const MIMEType = nix.NARInfoMIMEType

// CompressionType is an enumeration of compression algorithms used in [NarInfo].
type CompressionType = nix.CompressionType

// Compression types recognized by [NarInfo].
const (
	NoCompression = nix.NoCompression
	Gzip          = nix.Gzip
	Bzip2         = nix.Bzip2
	XZ            = nix.XZ
	Zstandard     = nix.Zstandard
	Lzip          = nix.Lzip
	LZ4           = nix.LZ4
	Brotli        = nix.Brotli
)

// NarInfo represents a parsed .narinfo file: the metadata record
// describing one compressed NAR blob stored in the cache.
type NarInfo struct {
	// StorePath is the absolute path of this store object. Required.
	StorePath storepath.Path
	// URL is the path to the (possibly compressed) NAR file, relative
	// to the .narinfo file's directory. Required.
	URL string
	// Compression is the algorithm used for the file referenced by URL.
	// If empty, defaults to [Bzip2] on read.
	Compression CompressionType
	// FileHash is the hash of the (possibly compressed) file referenced
	// by URL. If Compression is [NoCompression] and FileHash is zero,
	// NARHash is used instead.
	FileHash nix.Hash
	// FileSize is the size in bytes of the file referenced by URL.
	// If Compression is [NoCompression] and FileSize is zero, NARSize
	// is used instead.
	FileSize int64
	// NARHash is the hash of the decompressed NAR. Required.
	NARHash nix.Hash
	// NARSize is the size in bytes of the decompressed NAR. Required.
	NARSize int64
	// References is the set of other store objects this object references.
	References []storepath.Path
	// Deriver is the store path of the derivation that produced this
	// object, if known.
	Deriver storepath.Path
	// Ultimate reports whether this cache is the authoritative origin
	// for this object (as opposed to having merely copied it from
	// elsewhere). It is encoded as an "Ultimate: true" line, written
	// only when Ultimate is true.
	Ultimate bool
	// Sig is the set of signatures over this record's fingerprint.
	Sig []*nix.Signature
	// CA is an optional content-addressability assertion.
	CA storepath.ContentAddress
}

// Clone returns a deep copy of info.
func (info *NarInfo) Clone() *NarInfo {
	info2 := new(NarInfo)
	*info2 = *info
	info2.References = append([]storepath.Path(nil), info.References...)
	info2.Sig = append([]*nix.Signature(nil), info.Sig...)
	return info2
}

// StoreDirectory returns the store directory of the store object.
func (info *NarInfo) StoreDirectory() storepath.Directory {
	return info.StorePath.Dir()
}

// IsValid reports whether the record's fields pass [NarInfo.Validate].
func (info *NarInfo) IsValid() bool {
	return info.Validate() == nil
}

// AddSignatures adds signatures not already present in info.Sig.
// It never mutates any other field.
func (info *NarInfo) AddSignatures(sigs ...*nix.Signature) {
addLoop:
	for _, newSig := range sigs {
		for _, oldSig := range info.Sig {
			if oldSig.String() == newSig.String() {
				continue addLoop
			}
		}
		info.Sig = append(info.Sig, newSig)
	}
}

func (info *NarInfo) validateForFingerprint() error {
	if info.StorePath == "" {
		return fmt.Errorf("store path empty")
	}
	if _, err := storepath.ParsePath(string(info.StorePath)); err != nil {
		return fmt.Errorf("store path: %v", err)
	}
	if info.NARHash.IsZero() {
		return fmt.Errorf("nar hash not set")
	}
	if info.NARSize == 0 {
		return fmt.Errorf("nar size not set")
	}
	if info.NARSize < 0 {
		return fmt.Errorf("negative nar size")
	}
	for _, ref := range info.References {
		if ref != "" && ref.Dir() != info.StorePath.Dir() {
			return fmt.Errorf("reference directory = %q (expect %q)", ref.Dir(), info.StorePath.Dir())
		}
	}
	return nil
}

// Validate reports an error if the record's fields are not consistent
// enough to be written to the cache.
func (info *NarInfo) Validate() error {
	if err := info.validateForFingerprint(); err != nil {
		return err
	}
	if info.URL == "" {
		return fmt.Errorf("url empty")
	}
	if !info.Compression.IsKnown() {
		return fmt.Errorf("unknown compression %q", info.Compression)
	}
	if info.FileSize < 0 {
		return fmt.Errorf("negative file size")
	}
	if info.Compression == NoCompression {
		if info.FileSize != 0 && info.FileSize != info.NARSize {
			return fmt.Errorf("compression = %q and file size (%d) != nar size (%d)", NoCompression, info.FileSize, info.NARSize)
		}
		if !info.FileHash.IsZero() && !info.FileHash.Equal(info.NARHash) {
			return fmt.Errorf("compression = %q and file hash (%v) != nar hash (%v)", NoCompression, info.FileHash, info.NARHash)
		}
	}
	if info.Deriver != "" && info.Deriver.Dir() != info.StorePath.Dir() {
		return fmt.Errorf("deriver directory = %q (expect %q)", info.Deriver.Dir(), info.StorePath.Dir())
	}
	return nil
}

// WriteFingerprint writes the store object's signing fingerprint to w:
// the canonical string that signatures in [NarInfo.Sig] are computed over.
func (info *NarInfo) WriteFingerprint(w io.Writer) error {
	if err := info.validateForFingerprint(); err != nil {
		return fmt.Errorf("compute fingerprint: %v", err)
	}
	parts := []string{"1;", string(info.StorePath), ";", info.NARHash.Base32(), ";", strconv.FormatInt(info.NARSize, 10), ";"}
	for _, p := range parts {
		if _, err := io.WriteString(w, p); err != nil {
			return fmt.Errorf("compute fingerprint for %s: %w", info.StorePath, err)
		}
	}

	sortedRefs := append([]storepath.Path(nil), info.References...)
	sort.Slice(sortedRefs, func(i, j int) bool { return sortedRefs[i] < sortedRefs[j] })
	for i, ref := range sortedRefs {
		if i > 0 {
			if ref == sortedRefs[i-1] {
				continue
			}
			if _, err := io.WriteString(w, ","); err != nil {
				return fmt.Errorf("compute fingerprint for %s: %w", info.StorePath, err)
			}
		}
		if _, err := io.WriteString(w, string(ref)); err != nil {
			return fmt.Errorf("compute fingerprint for %s: %w", info.StorePath, err)
		}
	}
	return nil
}

// UnmarshalText decodes a .narinfo file.
func (info *NarInfo) UnmarshalText(src []byte) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("unmarshal narinfo: %v", err)
		}
	}()

	newline := []byte("\n")
	*info = NarInfo{}
	var references [][]byte
	var referencesLineno int
	var deriverObject string
	var deriverLineno int
	for lineno := 1; len(src) > 0; lineno++ {
		i := bytes.IndexByte(src, ':')
		if i < 0 {
			return fmt.Errorf("line %d: could not find ':'", lineno)
		}
		if i+len(": ") > len(src) {
			return fmt.Errorf("line %d: %w", lineno, io.ErrUnexpectedEOF)
		}
		key := string(src[:i])
		lineno += bytes.Count(src[:i+len(": ")], newline)
		src = src[i+len(": "):]

		i = bytes.IndexByte(src, '\n')
		if i < 0 {
			return fmt.Errorf("line %d: missing newline", lineno)
		}
		value := src[:i]
		src = src[i+1:]

		switch key {
		case "StorePath":
			if info.StorePath != "" {
				return fmt.Errorf("line %d: duplicate StorePath", lineno)
			}
			if len(value) == 0 {
				return fmt.Errorf("line %d: empty StorePath", lineno)
			}
			var err error
			info.StorePath, err = storepath.ParsePath(string(value))
			if err != nil {
				return fmt.Errorf("line %d: %v", lineno, err)
			}
		case "URL":
			if info.URL != "" {
				return fmt.Errorf("line %d: duplicate URL", lineno)
			}
			info.URL = string(value)
		case "Compression":
			if info.Compression != "" {
				return fmt.Errorf("line %d: duplicate Compression", lineno)
			}
			info.Compression = CompressionType(value)
			if info.Compression == "" {
				return fmt.Errorf("line %d: empty Compression", lineno)
			}
			if !info.Compression.IsKnown() {
				return fmt.Errorf("line %d: unknown compression %q", lineno, info.Compression)
			}
		case "FileHash":
			if !info.FileHash.IsZero() {
				return fmt.Errorf("line %d: duplicate FileHash", lineno)
			}
			if err := info.FileHash.UnmarshalText(value); err != nil {
				return fmt.Errorf("line %d: FileHash: %v", lineno, err)
			}
		case "FileSize":
			if info.FileSize > 0 {
				return fmt.Errorf("line %d: duplicate FileSize", lineno)
			}
			var err error
			info.FileSize, err = strconv.ParseInt(string(value), 10, 64)
			if err != nil {
				return fmt.Errorf("line %d: FileSize: %v", lineno, err)
			}
			if info.FileSize <= 0 {
				return fmt.Errorf("line %d: FileSize is non-positive", lineno)
			}
		case "NarHash":
			if !info.NARHash.IsZero() {
				return fmt.Errorf("line %d: duplicate NarHash", lineno)
			}
			if err := info.NARHash.UnmarshalText(value); err != nil {
				return fmt.Errorf("line %d: NarHash: %v", lineno, err)
			}
		case "NarSize":
			if info.NARSize > 0 {
				return fmt.Errorf("line %d: duplicate NarSize", lineno)
			}
			var err error
			info.NARSize, err = strconv.ParseInt(string(value), 10, 64)
			if err != nil {
				return fmt.Errorf("line %d: NarSize: %v", lineno, err)
			}
			if info.NARSize <= 0 {
				return fmt.Errorf("line %d: NarSize is non-positive", lineno)
			}
		case "References":
			if referencesLineno > 0 {
				return fmt.Errorf("line %d: duplicate References", lineno)
			}
			references = bytes.Fields(value)
			referencesLineno = lineno
		case "Deriver":
			if info.Deriver != "" {
				return fmt.Errorf("line %d: duplicate Deriver", lineno)
			}
			deriverObject = string(value)
			deriverLineno = lineno
		case "Ultimate":
			info.Ultimate = string(value) == "true"
		case "Sig":
			sig := new(nix.Signature)
			if err := sig.UnmarshalText(value); err != nil {
				return fmt.Errorf("line %d: Sig: %v", lineno, err)
			}
			info.Sig = append(info.Sig, sig)
		case "CA":
			if !info.CA.IsZero() {
				return fmt.Errorf("line %d: duplicate CA", lineno)
			}
			if err := info.CA.UnmarshalText(value); err != nil {
				return fmt.Errorf("line %d: CA: %v", lineno, err)
			}
		}
	}

	if info.Compression == "" {
		info.Compression = Bzip2
	}
	if info.Compression == NoCompression {
		if info.FileHash.IsZero() {
			info.FileHash = info.NARHash
		}
		if info.FileSize == 0 {
			info.FileSize = info.NARSize
		}
	}

	if info.StorePath == "" {
		return fmt.Errorf("store path empty")
	}
	if deriverLineno > 0 {
		var err error
		info.Deriver, err = info.StoreDirectory().Object(deriverObject)
		if err != nil {
			return fmt.Errorf("line %d: Deriver: %v", deriverLineno, err)
		}
	}
	if len(references) > 0 {
		info.References = make([]storepath.Path, 0, len(references))
		for _, w := range references {
			ref, err := info.StoreDirectory().Object(string(w))
			if err != nil {
				return fmt.Errorf("line %d: References: %v", referencesLineno, err)
			}
			info.References = append(info.References, ref)
		}
	}

	return info.Validate()
}

// MarshalText encodes the record as a .narinfo file.
func (info *NarInfo) MarshalText() ([]byte, error) {
	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("marshal narinfo: %v", err)
	}

	var buf []byte
	buf = append(buf, "StorePath: "...)
	buf = append(buf, info.StorePath...)
	buf = append(buf, "\nURL: "...)
	buf = append(buf, info.URL...)
	buf = append(buf, "\nCompression: "...)
	compression := info.Compression
	if compression == "" {
		compression = Bzip2
	}
	buf = append(buf, compression...)
	if !info.FileHash.IsZero() {
		buf = append(buf, "\nFileHash: "...)
		buf = append(buf, info.FileHash.Base32()...)
	}
	if info.FileSize != 0 {
		buf = append(buf, "\nFileSize: "...)
		buf = strconv.AppendInt(buf, info.FileSize, 10)
	}
	buf = append(buf, "\nNarHash: "...)
	buf = append(buf, info.NARHash.Base32()...)
	buf = append(buf, "\nNarSize: "...)
	buf = strconv.AppendInt(buf, info.NARSize, 10)
	buf = append(buf, "\nReferences:"...)
	for _, ref := range info.References {
		buf = append(buf, ' ')
		buf = append(buf, ref.Base()...)
	}
	if info.Deriver != "" {
		buf = append(buf, "\nDeriver: "...)
		buf = append(buf, info.Deriver.Base()...)
	}
	if info.Ultimate {
		buf = append(buf, "\nUltimate: true"...)
	}
	for _, sig := range info.Sig {
		buf = append(buf, "\nSig: "...)
		sigData, err := sig.MarshalText()
		if err != nil {
			return nil, fmt.Errorf("marshal narinfo: %v", err)
		}
		buf = append(buf, sigData...)
	}
	if !info.CA.IsZero() {
		buf = append(buf, "\nCA: "...)
		caData, err := info.CA.MarshalText()
		if err != nil {
			return nil, fmt.Errorf("marshal narinfo: %v", err)
		}
		buf = append(buf, caData...)
	}
	buf = append(buf, "\n"...)
	return buf, nil
}
