// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package drv

import (
	"fmt"
	"sync"

	"lattice.dev/cachestore/internal/sets"
	"lattice.dev/cachestore/storepath"
	"zombiezen.com/go/nix"
)

// A Hasher computes [HashModulo] for a graph of derivations, memoizing
// results across calls. The zero value is ready to use. A Hasher is safe
// for concurrent use by multiple goroutines.
//
// The memo table is process-lifetime: entries are never invalidated,
// because a derivation file, once written, is immutable by construction.
type Hasher struct {
	mu    sync.RWMutex
	cache map[storepath.Path]nix.Hash
}

// Lookup is called by [Hasher.HashModulo] to read a derivation that is
// referenced as an input but was not itself passed to HashModulo.
// Implementations typically read the derivation from a store.
type Lookup func(path storepath.Path) (*Derivation, error)

// HashModulo computes the derivation's "hash modulo": a hash that is
// invariant under content-equivalent substitution of its dependencies.
//
// For a derivation with a single fixed-output output, the result depends
// only on that output's (method, algorithm, hash, output path) -- it is
// independent of the rest of the derivation's contents. Otherwise, the
// result is the hash of the derivation's canonical text form with each
// input derivation's path replaced by the hex encoding of that input's
// own HashModulo, computed recursively.
//
// path is the store path of d, used to detect a dependency cycle. The
// result for d itself is not memoized; the results for its input
// derivations are, keyed by their paths. lookup is consulted for any
// input derivation not already memoized; it may be nil if d has no
// input derivations or all of them are already memoized.
//
// HashModulo rejects a derivation graph containing a cycle: a
// derivation can never legally depend, even transitively, on itself.
func (h *Hasher) HashModulo(path storepath.Path, d *Derivation, lookup Lookup) (nix.Hash, error) {
	return h.hashModulo(path, d, lookup, make(sets.Set[storepath.Path]))
}

// hashModulo is HashModulo's recursive implementation. visiting holds
// the input derivation paths currently being computed on this call's
// stack, used to reject a cyclic dependency graph instead of recursing
// forever; it is unordered since membership, not order, is all that's
// being tested.
func (h *Hasher) hashModulo(path storepath.Path, d *Derivation, lookup Lookup, visiting sets.Set[storepath.Path]) (nix.Hash, error) {
	if out, ok := fixedOutputOf(d); ok {
		outPath, err := out.Path(d.Dir, d.Name, DefaultOutputName)
		if err != nil {
			return nix.Hash{}, fmt.Errorf("hash derivation modulo %s: %v", d.Name, err)
		}
		ca, _ := out.FixedCA()
		hasher := nix.NewHasher(nix.SHA256)
		hasher.WriteString("fixed:out:")
		hasher.WriteString(printMethodAlgo(ca, ca.Hash().Type()))
		hasher.WriteString(":")
		hasher.WriteString(ca.Hash().RawBase16())
		hasher.WriteString(":")
		hasher.WriteString(string(outPath))
		return hasher.SumHash(), nil
	}

	if visiting.Has(path) {
		return nix.Hash{}, fmt.Errorf("hash derivation modulo %s: circular dependency on %s", d.Name, path)
	}
	visiting.Add(path)
	defer visiting.Delete(path)

	inputs := make(map[storepath.Path]string, len(d.InputDerivations))
	for inputPath := range d.InputDerivations {
		modHash, err := h.lookupOrCompute(inputPath, lookup, visiting)
		if err != nil {
			return nix.Hash{}, fmt.Errorf("hash derivation modulo %s: input %s: %v", d.Name, inputPath, err)
		}
		inputs[inputPath] = modHash.RawBase16()
	}

	text, err := d.marshalText(false, inputs)
	if err != nil {
		return nix.Hash{}, fmt.Errorf("hash derivation modulo %s: %v", d.Name, err)
	}
	hasher := nix.NewHasher(nix.SHA256)
	hasher.Write(text)
	return hasher.SumHash(), nil
}

func (h *Hasher) lookupOrCompute(path storepath.Path, lookup Lookup, visiting sets.Set[storepath.Path]) (nix.Hash, error) {
	h.mu.RLock()
	cached, ok := h.cache[path]
	h.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if lookup == nil {
		return nix.Hash{}, fmt.Errorf("no derivation available for %s", path)
	}
	inputDrv, err := lookup(path)
	if err != nil {
		return nix.Hash{}, err
	}
	computed, err := h.hashModulo(path, inputDrv, lookup, visiting)
	if err != nil {
		return nix.Hash{}, err
	}

	// Insert-or-assign: a concurrent caller may have computed and stored
	// the same value first. That's a benign, idempotent race -- the
	// memo table exists to avoid repeated work, not to serialize it.
	h.mu.Lock()
	if h.cache == nil {
		h.cache = make(map[storepath.Path]nix.Hash)
	}
	h.cache[path] = computed
	h.mu.Unlock()
	return computed, nil
}

func fixedOutputOf(d *Derivation) (Output, bool) {
	if len(d.Outputs) != 1 {
		return Output{}, false
	}
	out, ok := d.Outputs[DefaultOutputName]
	if !ok || !out.IsFixed() {
		return Output{}, false
	}
	return out, true
}
