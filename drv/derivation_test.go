// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package drv

import (
	stdcmp "cmp"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"zombiezen.com/go/nix"

	"lattice.dev/cachestore/internal/sets"
	"lattice.dev/cachestore/storepath"
)

const testDir = storepath.Directory("/cache/store")

func fixedOutputDerivation(t *testing.T, name string) *Derivation {
	t.Helper()
	h := nix.NewHasher(nix.SHA256)
	h.WriteString("build output contents")
	return &Derivation{
		Dir:      testDir,
		Name:     name,
		Platform: "x86_64-linux",
		Builder:  "/bin/sh",
		Args:     []string{"-c", "echo hi > $out"},
		Env:      map[string]string{"out": "placeholder"},
		Outputs: map[string]Output{
			DefaultOutputName: Fixed(nix.FlatFileContentAddress(h.SumHash())),
		},
	}
}

// fullDerivation builds a derivation exercising every field: an
// intensional output alongside a fixed one, an input derivation with a
// selected output set, and an input source, so a round trip that drops
// any one of them shows up as a diff.
func fullDerivation(t *testing.T, name string) *Derivation {
	t.Helper()
	h := nix.NewHasher(nix.SHA256)
	h.WriteString("build output contents")

	inputDrvPath, err := testDir.Object("ffffffffffffffffffffffffffffffff-dep.drv")
	if err != nil {
		t.Fatal(err)
	}
	srcPath, err := testDir.Object("gggggggggggggggggggggggggggggggg-source")
	if err != nil {
		t.Fatal(err)
	}

	outPath, err := testDir.Object("dddddddddddddddddddddddddddddddd-" + name)
	if err != nil {
		t.Fatal(err)
	}

	d := &Derivation{
		Dir:      testDir,
		Name:     name,
		Platform: "x86_64-linux",
		Builder:  "/bin/sh",
		Args:     []string{"-c", "echo hi > $out; echo dev > $dev"},
		Env: map[string]string{
			"out": "placeholder",
			"dev": "placeholder-dev",
		},
		InputDerivations: map[storepath.Path]*sets.Sorted[string]{
			inputDrvPath: setOf(DefaultOutputName),
		},
		Outputs: map[string]Output{
			DefaultOutputName: Intensional(outPath),
			"dev":             Fixed(nix.FlatFileContentAddress(h.SumHash())),
		},
	}
	d.InputSources.Add(srcPath)
	return d
}

// resolvedDerivation mirrors fullDerivation but in the post-resolution
// shape [Derivation.MarshalBinary] expects: no InputDerivations, since
// the binary codec requires callers to have already flattened
// transitive input derivation outputs into InputSources.
func resolvedDerivation(t *testing.T, name string) *Derivation {
	t.Helper()
	d := fullDerivation(t, name)
	resolvedOutput, err := testDir.Object("cccccccccccccccccccccccccccccccc-dep")
	if err != nil {
		t.Fatal(err)
	}
	d.InputDerivations = nil
	d.InputSources.Add(resolvedOutput)
	return d
}

// derivationCompareOptions lets cmp.Diff compare two [Derivation]
// values field-by-field, including the unexported state inside
// [Output] and [sets.Sorted].
func derivationCompareOptions() cmp.Options {
	return cmp.Options{
		cmpopts.EquateEmpty(),
		cmp.AllowUnexported(Output{}),
		transformSortedSet[storepath.Path](),
		transformSortedSet[string](),
	}
}

func transformSortedSet[E stdcmp.Ordered]() cmp.Option {
	return cmp.Transformer("transformSortedSet", func(s sets.Sorted[E]) []E {
		return s.Slice()
	})
}

func TestDerivationTextRoundTrip(t *testing.T) {
	d := fullDerivation(t, "greeting")
	text, err := d.MarshalText()
	if err != nil {
		t.Fatal(err)
	}

	got, err := Parse(testDir, "greeting", text)
	if err != nil {
		t.Fatalf("Parse(%q): %v", text, err)
	}
	if diff := cmp.Diff(d, got, derivationCompareOptions()); diff != "" {
		t.Errorf("derivation (-want +got):\n%s", diff)
	}
}

func TestDerivationBinaryRoundTrip(t *testing.T) {
	d := resolvedDerivation(t, "greeting")
	data, err := d.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalBinaryDerivation(testDir, "greeting", data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(d, got, derivationCompareOptions()); diff != "" {
		t.Errorf("derivation (-want +got):\n%s", diff)
	}
}

func TestIsValidOutputName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"out", true},
		{"dev", true},
		{"", false},
		{"foo^bar", false},
		{"foo!bar", false},
	}
	for _, test := range tests {
		if got := IsValidOutputName(test.name); got != test.want {
			t.Errorf("IsValidOutputName(%q) = %v, want %v", test.name, got, test.want)
		}
	}
}

func TestDerivationReferences(t *testing.T) {
	d := fixedOutputDerivation(t, "greeting")
	src, err := testDir.Object("ffffffffffffffffffffffffffffffff-source")
	if err != nil {
		t.Fatal(err)
	}
	d.InputSources.Add(src)

	refs := d.References()
	if refs.Others.Len() != 1 || !refs.Others.Has(src) {
		t.Errorf("References().Others does not contain %s", src)
	}
}
