// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package sink

import (
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/dsnet/compress/brotli"
	"zombiezen.com/go/nix"
)

// Compressor is a decorator that compresses bytes written to it,
// forwarding the compressed output to an underlying [io.Writer].
// [Compressor.Finish] must be called on every success path to flush the
// compressor's trailing state.
type Compressor struct {
	w       io.WriteCloser
	started bool
}

// NewCompressor returns a [Compressor] for the given algorithm, writing
// compressed output to w.
//
// [nix.XZ] and [nix.Brotli] are recognized [nix.CompressionType] values
// (narinfo records may reference archives compressed with them) but
// cannot be encoded by this package: no xz-capable library is available,
// and the brotli library this module depends on only implements
// decoding. Encoding with either returns [ErrUnsupportedCompression].
func NewCompressor(w io.Writer, algo nix.CompressionType) (*Compressor, error) {
	switch algo {
	case nix.NoCompression, "":
		return &Compressor{w: nopWriteCloser{w}}, nil
	case nix.Bzip2:
		bw, err := bzip2.NewWriter(w, nil)
		if err != nil {
			return nil, fmt.Errorf("new bzip2 compressor: %w", err)
		}
		return &Compressor{w: bw}, nil
	default:
		return nil, fmt.Errorf("compress %s: %w", algo, ErrUnsupportedCompression)
	}
}

// Write implements [io.Writer].
func (c *Compressor) Write(p []byte) (int, error) {
	c.started = true
	return c.w.Write(p)
}

// Finish flushes and closes the compressor's trailing state.
func (c *Compressor) Finish() error {
	return c.w.Close()
}

// Decompressor is a streaming decorator that decompresses bytes read
// from an underlying source reader. It is consumed by reading from it,
// typically with [io.Copy] into a destination sink, as
// [cache.Store.NarFromPath] does when it pipes a fetched blob to the
// caller.
type Decompressor struct {
	io.Reader
	closer io.Closer
}

// NewDecompressor returns a [Decompressor] reading compressed data of
// the given algorithm from r.
func NewDecompressor(r io.Reader, algo nix.CompressionType) (*Decompressor, error) {
	switch algo {
	case nix.NoCompression, "":
		return &Decompressor{Reader: r}, nil
	case nix.Bzip2:
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, fmt.Errorf("new bzip2 decompressor: %w", err)
		}
		return &Decompressor{Reader: br, closer: br}, nil
	case nix.Brotli:
		brr, err := brotli.NewReader(r, nil)
		if err != nil {
			return nil, fmt.Errorf("new brotli decompressor: %w", err)
		}
		return &Decompressor{Reader: brr, closer: brr}, nil
	default:
		return nil, fmt.Errorf("decompress %s: %w", algo, ErrUnsupportedCompression)
	}
}

// Finish releases any resources the decompressor holds.
func (d *Decompressor) Finish() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// Ext returns the file extension used for a NAR blob compressed with algo
// (e.g. "nar/<fileHash>.nar<ext>"), per the cache's key layout convention.
func Ext(algo nix.CompressionType) string {
	switch algo {
	case nix.NoCompression, "":
		return ""
	case nix.XZ:
		return ".xz"
	case nix.Bzip2:
		return ".bz2"
	case nix.Brotli:
		return ".br"
	default:
		return "." + string(algo)
	}
}
