// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

// Package drv implements the derivation codec: the canonical textual and
// binary serialization of build recipes, and the modulo-hashing scheme
// that derives stable identities for derivations that depend on one
// another.
package drv

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"lattice.dev/cachestore/internal/aterm"
	"lattice.dev/cachestore/internal/sets"
	"lattice.dev/cachestore/storepath"
)

// Ext is the file extension for a marshalled [Derivation].
const Ext = ".drv"

// DefaultOutputName is the name of the primary output of a derivation.
// It is omitted in a number of contexts.
const DefaultOutputName = "out"

// A Derivation is a single, specific, constant build action: the recipe
// from which one or more store paths are produced.
type Derivation struct {
	// Dir is the store directory this derivation is a part of.
	Dir storepath.Directory
	// Name is the human-readable name of the derivation,
	// i.e. the part after the hash part in the store object name.
	Name string
	// Platform is the OS/architecture tuple the derivation is intended to
	// run on (e.g. "x86_64-linux").
	Platform string
	// Builder is the path to the program that runs the build.
	Builder string
	// Args is the list of arguments passed to the builder program.
	Args []string
	// Env is the environment variables passed to the builder program.
	Env map[string]string

	// InputSources is the set of source filesystem objects this
	// derivation depends on.
	InputSources sets.Sorted[storepath.Path]
	// InputDerivations maps each derivation this derivation depends on to
	// the set of its output names that are used.
	InputDerivations map[storepath.Path]*sets.Sorted[string]
	// Outputs is the set of outputs the derivation produces, keyed by
	// output id. Canonical order is by id.
	Outputs map[string]Output
}

// Parse parses a derivation from its canonical ATerm text form.
// name should be the derivation's name, i.e. the basename of its store
// path with the [Ext] suffix and hash part stripped.
func Parse(dir storepath.Directory, name string, data []byte) (*Derivation, error) {
	d := &Derivation{Dir: dir, Name: name}
	rest, ok := bytes.CutPrefix(data, []byte("Derive"))
	if !ok {
		return nil, fmt.Errorf("parse %s derivation: %q constructor not found", d.Name, "Derive")
	}
	r := bytes.NewReader(rest)
	if err := d.parseTuple(aterm.NewScanner(r)); err != nil {
		return nil, err
	}
	if r.Len() > 0 {
		return nil, fmt.Errorf("parse %s derivation: trailing data", d.Name)
	}
	return d, nil
}

// References returns the set of other store paths that the derivation
// references directly: its input sources plus its input derivations.
func (d *Derivation) References() storepath.References {
	refs := storepath.References{}
	refs.Others.Grow(d.InputSources.Len() + len(d.InputDerivations))
	refs.Others.AddSet(&d.InputSources)
	for input := range d.InputDerivations {
		refs.Others.Add(input)
	}
	return refs
}

// IsValidOutputName reports whether name is valid as a derivation output id.
func IsValidOutputName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "^!")
}

// MarshalText returns the canonical ATerm text form of the derivation.
// Encoding is deterministic: outputs are ordered by id, input derivations
// by path, and environment entries by key.
func (d *Derivation) MarshalText() ([]byte, error) {
	return d.marshalText(false, nil)
}

// marshalText writes the canonical form. If maskOutputs is true, every
// output's path is written as the empty string. actualInputs, if non-nil,
// overrides the textual representation of each input derivation's path
// with its precomputed modulo-hash (hex-encoded). [Hasher.HashModulo]
// passes actualInputs with maskOutputs false.
func (d *Derivation) marshalText(maskOutputs bool, actualInputs map[storepath.Path]string) ([]byte, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("marshal derivation: missing name")
	}
	if d.Dir == "" {
		return nil, fmt.Errorf("marshal %s derivation: missing store directory", d.Name)
	}

	var buf []byte
	buf = append(buf, "Derive(["...)
	for i, outName := range sortedKeys(d.Outputs) {
		if i > 0 {
			buf = append(buf, ',')
		}
		if !IsValidOutputName(outName) {
			return nil, fmt.Errorf("marshal %s derivation: invalid output name %q", d.Name, outName)
		}
		out := d.Outputs[outName]
		var err error
		buf, err = out.marshalText(buf, d.Dir, d.Name, outName, maskOutputs)
		if err != nil {
			return nil, fmt.Errorf("marshal %s derivation: %v", d.Name, err)
		}
	}

	buf = append(buf, "],["...)
	for i, drvPath := range sortedInputDerivationKeys(d.InputDerivations, actualInputs) {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '(')
		if actualInputs != nil {
			buf = aterm.AppendString(buf, actualInputs[drvPath])
		} else {
			buf = aterm.AppendString(buf, string(drvPath))
		}
		buf = append(buf, ",["...)
		outputs := d.InputDerivations[drvPath]
		for j, out := range outputs.All() {
			if j > 0 {
				buf = append(buf, ',')
			}
			buf = aterm.AppendString(buf, out)
		}
		buf = append(buf, "])"...)
	}

	buf = append(buf, "],["...)
	for i, src := range d.InputSources.All() {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = aterm.AppendString(buf, string(src))
	}

	buf = append(buf, "],"...)
	buf = aterm.AppendString(buf, d.Platform)
	buf = append(buf, ","...)
	buf = aterm.AppendString(buf, d.Builder)

	buf = append(buf, ",["...)
	for i, arg := range d.Args {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = aterm.AppendString(buf, arg)
	}

	buf = append(buf, "],["...)
	for i, k := range sortedStringKeys(d.Env) {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '(')
		buf = aterm.AppendString(buf, k)
		buf = append(buf, ',')
		buf = aterm.AppendString(buf, d.Env[k])
		buf = append(buf, ')')
	}

	buf = append(buf, "])"...)
	return buf, nil
}

func (d *Derivation) parseTuple(s *aterm.Scanner) error {
	if _, err := expectToken(s, aterm.LParen); err != nil {
		return fmt.Errorf("parse %s derivation: %v", d.Name, err)
	}

	if _, err := expectToken(s, aterm.LBracket); err != nil {
		return fmt.Errorf("parse %s derivation: outputs: %v", d.Name, err)
	}
	d.Outputs = make(map[string]Output)
	for {
		tok, err := s.ReadToken()
		if err != nil {
			return err
		}
		if tok.Kind == aterm.RBracket {
			break
		}
		s.UnreadToken()

		outName, out, err := parseOutput(s)
		if err != nil {
			return fmt.Errorf("parse %s derivation: %v", d.Name, err)
		}
		if _, ok := d.Outputs[outName]; ok {
			return fmt.Errorf("parse %s derivation: multiple outputs named %q", d.Name, outName)
		}
		d.Outputs[outName] = out
	}

	if _, err := expectToken(s, aterm.LBracket); err != nil {
		return fmt.Errorf("parse %s derivation: input derivations: %v", d.Name, err)
	}
	d.InputDerivations = make(map[storepath.Path]*sets.Sorted[string])
	for {
		tok, err := s.ReadToken()
		if err != nil {
			return err
		}
		if tok.Kind == aterm.RBracket {
			break
		}
		s.UnreadToken()

		drvPath, outputNames, err := parseInputDerivation(s)
		if err != nil {
			return fmt.Errorf("parse %s derivation: %v", d.Name, err)
		}
		if _, ok := d.InputDerivations[drvPath]; ok {
			return fmt.Errorf("parse %s derivation: multiple input derivations for %s", d.Name, drvPath)
		}
		d.InputDerivations[drvPath] = outputNames
	}

	d.InputSources.Clear()
	err := parseStringList(s, func(val string) error {
		p, err := storepath.ParsePath(val)
		if err != nil {
			return err
		}
		d.InputSources.Add(p)
		return nil
	})
	if err != nil {
		return fmt.Errorf("parse %s derivation: input sources: %v", d.Name, err)
	}

	tok, err := expectToken(s, aterm.String)
	if err != nil {
		return fmt.Errorf("parse %s derivation: platform: %v", d.Name, err)
	}
	d.Platform = tok.Value

	tok, err = expectToken(s, aterm.String)
	if err != nil {
		return fmt.Errorf("parse %s derivation: builder: %v", d.Name, err)
	}
	d.Builder = tok.Value

	d.Args = d.Args[:0]
	err = parseStringList(s, func(arg string) error {
		d.Args = append(d.Args, arg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("parse %s derivation: builder args: %v", d.Name, err)
	}

	if err := d.parseEnv(s); err != nil {
		return err
	}

	if _, err := expectToken(s, aterm.RParen); err != nil {
		return fmt.Errorf("parse %s derivation: %v", d.Name, err)
	}
	return nil
}

func (d *Derivation) parseEnv(s *aterm.Scanner) error {
	if _, err := expectToken(s, aterm.LBracket); err != nil {
		return fmt.Errorf("parse %s derivation: env: %v", d.Name, err)
	}
	d.Env = make(map[string]string)
	for {
		tok, err := s.ReadToken()
		if err != nil {
			return fmt.Errorf("parse %s derivation: env: %v", d.Name, err)
		}
		switch tok.Kind {
		case aterm.RBracket:
			return nil
		case aterm.LParen:
		default:
			return fmt.Errorf("parse %s derivation: env: expected ']' or '(', found %v", d.Name, tok)
		}

		tok, err = expectToken(s, aterm.String)
		if err != nil {
			return fmt.Errorf("parse %s derivation: env: %v", d.Name, err)
		}
		k := tok.Value
		if _, exists := d.Env[k]; exists {
			return fmt.Errorf("parse %s derivation: env: multiple entries for %s", d.Name, k)
		}

		tok, err = expectToken(s, aterm.String)
		if err != nil {
			return fmt.Errorf("parse %s derivation: env: %s: %v", d.Name, k, err)
		}
		v := tok.Value

		if _, err := expectToken(s, aterm.RParen); err != nil {
			return fmt.Errorf("parse %s derivation: env: %s: %v", d.Name, k, err)
		}
		d.Env[k] = v
	}
}

func parseInputDerivation(s *aterm.Scanner) (drvPath storepath.Path, outputNames *sets.Sorted[string], err error) {
	if _, err := expectToken(s, aterm.LParen); err != nil {
		return "", nil, fmt.Errorf("parse input derivation: %v", err)
	}
	tok, err := expectToken(s, aterm.String)
	if err != nil {
		return "", nil, fmt.Errorf("parse input derivation: name: %v", err)
	}
	drvPathString := tok.Value

	outputNames = new(sets.Sorted[string])
	err = parseStringList(s, func(val string) error {
		outputNames.Add(val)
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("parse input derivation %s: output names: %v", drvPathString, err)
	}

	if _, err := expectToken(s, aterm.RParen); err != nil {
		return "", nil, fmt.Errorf("parse input derivation %s: %v", drvPathString, err)
	}

	drvPath, err = storepath.ParsePath(drvPathString)
	if err != nil {
		return "", nil, fmt.Errorf("parse input derivation %s: %v", drvPathString, err)
	}
	return drvPath, outputNames, nil
}

func parseStringList(s *aterm.Scanner, f func(string) error) error {
	if _, err := expectToken(s, aterm.LBracket); err != nil {
		return err
	}
	for {
		tok, err := s.ReadToken()
		if err != nil {
			return err
		}
		switch tok.Kind {
		case aterm.String:
			if err := f(tok.Value); err != nil {
				return err
			}
		case aterm.RBracket:
			return nil
		default:
			return fmt.Errorf("expected string or ']', found %v", tok)
		}
	}
}

func expectToken(s *aterm.Scanner, kind aterm.TokenKind) (aterm.Token, error) {
	tok, err := s.ReadToken()
	if err != nil {
		return aterm.Token{}, err
	}
	if tok.Kind != kind {
		want := "string"
		if kind != aterm.String {
			want = `'` + string(kind) + `'`
		}
		return tok, fmt.Errorf("expected %s, found %v", want, tok)
	}
	return tok, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func sortedStringKeys(m map[string]string) []string {
	return sortedKeys(m)
}

// sortedInputDerivationKeys returns the input derivation paths of m in
// canonical order. Ordinarily that is path order, but when actualInputs
// is supplied (masking input derivation paths with their substituted
// hash-modulo strings, as [Hasher.HashModulo] does) the canonical order
// is by the substituted string instead, matching the ground-truth
// "inputs2" map the original derivation hashing scheme builds keyed by
// the replacement hash -- not by the concrete store path being
// replaced. Without this, HashModulo would depend on the very store
// paths it's meant to be invariant under.
func sortedInputDerivationKeys(m map[storepath.Path]*sets.Sorted[string], actualInputs map[storepath.Path]string) []storepath.Path {
	keys := make([]storepath.Path, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	if actualInputs == nil {
		slices.Sort(keys)
		return keys
	}
	slices.SortFunc(keys, func(a, b storepath.Path) int {
		return strings.Compare(actualInputs[a], actualInputs[b])
	})
	return keys
}
