// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package storepath

import (
	"testing"

	"zombiezen.com/go/nix"
)

func TestFixedOutputPath(t *testing.T) {
	dir := Directory("/cache/store")
	h := nix.NewHasher(nix.SHA256)
	h.WriteString("hello, world")

	ca := nix.TextContentAddress(h.SumHash())
	p, err := FixedOutputPath(dir, "greeting", ca, References{})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "greeting" {
		t.Errorf("FixedOutputPath name = %q, want %q", p.Name(), "greeting")
	}

	if _, err := FixedOutputPath(dir, "greeting", ca, References{Self: true}); err == nil {
		t.Error("FixedOutputPath with self-reference on text content address = <nil>; want error")
	}
}

func TestValidateContentAddress(t *testing.T) {
	h := nix.NewHasher(nix.SHA256)
	h.WriteString("x")
	textCA := nix.TextContentAddress(h.SumHash())

	if err := ValidateContentAddress(textCA, References{}); err != nil {
		t.Errorf("ValidateContentAddress(text, no refs) = %v, want nil", err)
	}
	if err := ValidateContentAddress(nix.ContentAddress{}, References{}); err == nil {
		t.Error("ValidateContentAddress(zero) = nil, want error")
	}
}
