// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package sink

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"zombiezen.com/go/nix"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	for _, algo := range []nix.CompressionType{nix.NoCompression, nix.Bzip2} {
		t.Run(string(algo)+"roundtrip", func(t *testing.T) {
			var compressed bytes.Buffer
			c, err := NewCompressor(&compressed, algo)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := c.Write([]byte("hello, world")); err != nil {
				t.Fatal(err)
			}
			if err := c.Finish(); err != nil {
				t.Fatal(err)
			}

			d, err := NewDecompressor(bytes.NewReader(compressed.Bytes()), algo)
			if err != nil {
				t.Fatal(err)
			}
			got, err := io.ReadAll(d)
			if err != nil {
				t.Fatal(err)
			}
			if err := d.Finish(); err != nil {
				t.Fatal(err)
			}
			if string(got) != "hello, world" {
				t.Errorf("round trip = %q, want %q", got, "hello, world")
			}
		})
	}
}

func TestCompressorRejectsUnsupported(t *testing.T) {
	for _, algo := range []nix.CompressionType{nix.XZ, nix.Brotli} {
		t.Run(string(algo), func(t *testing.T) {
			var buf bytes.Buffer
			_, err := NewCompressor(&buf, algo)
			if !errors.Is(err, ErrUnsupportedCompression) {
				t.Errorf("NewCompressor(%s) error = %v, want wrapping ErrUnsupportedCompression", algo, err)
			}
		})
	}
}

func TestExt(t *testing.T) {
	tests := []struct {
		algo nix.CompressionType
		want string
	}{
		{nix.NoCompression, ""},
		{nix.Bzip2, ".bz2"},
		{nix.Brotli, ".br"},
		{nix.XZ, ".xz"},
	}
	for _, test := range tests {
		if got := Ext(test.algo); got != test.want {
			t.Errorf("Ext(%q) = %q, want %q", test.algo, got, test.want)
		}
	}
}
