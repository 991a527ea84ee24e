// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package sink implements the streaming byte-consumer/producer
// abstractions the cache store uses to drain NARs, compute hashes while
// streaming, and interpose (de)compression. Composition is by decorator
// (counting, hashing, decompressing) rather than by inheritance chain.
package sink

import (
	"fmt"
	"io"

	"zombiezen.com/go/nix"
)

// Counting wraps w, tracking the number of bytes written.
type Counting struct {
	w io.Writer
	n int64
}

// NewCounting returns a [Counting] sink that writes through to w.
func NewCounting(w io.Writer) *Counting {
	return &Counting{w: w}
}

// Write implements [io.Writer].
func (c *Counting) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Count returns the number of bytes written so far.
func (c *Counting) Count() int64 {
	return c.n
}

// Hashing wraps w, computing a running hash of everything written
// through it, in addition to passing bytes through to w.
type Hashing struct {
	w      io.Writer
	hasher *nix.Hasher
}

// NewHashing returns a [Hashing] sink that writes through to w while
// accumulating a hash of type algo.
func NewHashing(w io.Writer, algo nix.HashType) *Hashing {
	return &Hashing{w: w, hasher: nix.NewHasher(algo)}
}

// Write implements [io.Writer].
func (h *Hashing) Write(p []byte) (int, error) {
	n, err := h.w.Write(p)
	h.hasher.Write(p[:n])
	return n, err
}

// Sum returns the hash of the bytes written so far.
func (h *Hashing) Sum() nix.Hash {
	return h.hasher.SumHash()
}

// Finisher is implemented by sinks that must flush trailing state before
// their output is considered complete, such as a compressor that has
// buffered but not yet emitted its final block.
type Finisher interface {
	Finish() error
}

// Finish calls w.Finish if w implements [Finisher]. Callers must call
// Finish on every decorator in a chain on all success paths -- typically
// via a deferred call guarded by a success flag, since Finish must not
// run after a write error that left the underlying stream unusable.
func Finish(w io.Writer) error {
	f, ok := w.(Finisher)
	if !ok {
		return nil
	}
	return f.Finish()
}

// ErrUnsupportedCompression is returned when a [nix.CompressionType] is
// recognized (e.g. appears in an existing narinfo record) but this
// package cannot encode or decode it.
var ErrUnsupportedCompression = fmt.Errorf("unsupported compression algorithm")
