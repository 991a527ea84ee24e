// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package sink

import (
	"bytes"
	"io"
	"testing"

	"zombiezen.com/go/nix"
)

func TestCounting(t *testing.T) {
	var buf bytes.Buffer
	c := NewCounting(&buf)
	if _, err := c.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Write([]byte(", world")); err != nil {
		t.Fatal(err)
	}
	if got, want := c.Count(), int64(len("hello, world")); got != want {
		t.Errorf("Count() = %d, want %d", got, want)
	}
	if buf.String() != "hello, world" {
		t.Errorf("buf = %q, want %q", buf.String(), "hello, world")
	}
}

func TestHashing(t *testing.T) {
	var buf bytes.Buffer
	h := NewHashing(&buf, nix.SHA256)
	if _, err := io.Copy(h, bytes.NewReader([]byte("hello, world"))); err != nil {
		t.Fatal(err)
	}

	want := nix.NewHasher(nix.SHA256)
	want.WriteString("hello, world")
	if got := h.Sum(); !got.Equal(want.SumHash()) {
		t.Errorf("Sum() = %v, want %v", got, want.SumHash())
	}
}

func TestFinish(t *testing.T) {
	var buf bytes.Buffer
	c, err := NewCompressor(&buf, nix.Bzip2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Write([]byte("payload")); err != nil {
		t.Fatal(err)
	}
	if err := Finish(c); err != nil {
		t.Fatal(err)
	}
	if buf.Len() == 0 {
		t.Error("Finish did not flush any compressed output")
	}

	// Finish on a non-Finisher is a no-op.
	if err := Finish(&buf); err != nil {
		t.Errorf("Finish on non-Finisher = %v, want nil", err)
	}
}
