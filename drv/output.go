// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package drv

import (
	"encoding/hex"
	"fmt"
	"strings"

	"lattice.dev/cachestore/internal/aterm"
	"lattice.dev/cachestore/storepath"
	"zombiezen.com/go/nix"
)

// outputKind distinguishes the two forms an [Output] can take. It is a
// discriminated union, not a class hierarchy: every method on Output
// switches exhaustively on kind rather than dispatching virtually.
type outputKind int8

const (
	// intensionalOutput is an output whose identity is derived from the
	// derivation itself: the path is declared up front.
	intensionalOutput outputKind = 1 + iota
	// fixedOutput is an output that is content-addressed; its path is
	// recomputable from (method, hash, name) alone.
	fixedOutput
)

// An Output describes one output of a [Derivation]: either an
// [Intensional] output, whose path is fixed by the derivation's own
// identity, or a [Fixed] output, which is content-addressed.
type Output struct {
	kind outputKind
	path storepath.Path // intensionalOutput
	ca   nix.ContentAddress // fixedOutput
}

// Intensional returns an [Output] whose path is declared directly and
// whose identity is derived from the derivation that produces it.
func Intensional(path storepath.Path) Output {
	return Output{kind: intensionalOutput, path: path}
}

// Fixed returns an [Output] that is content-addressed by ca: its path is
// always recomputable as [storepath.FixedOutputPath](method, hash, name).
func Fixed(ca nix.ContentAddress) Output {
	return Output{kind: fixedOutput, ca: ca}
}

// IsIntensional reports whether out was created by [Intensional].
func (out Output) IsIntensional() bool {
	return out.kind == intensionalOutput
}

// IsFixed reports whether out was created by [Fixed].
func (out Output) IsFixed() bool {
	return out.kind == fixedOutput
}

// FixedCA returns a fixed output's content address.
// ok is true only if out was created by [Fixed].
func (out Output) FixedCA() (ca nix.ContentAddress, ok bool) {
	if !out.IsFixed() {
		return nix.ContentAddress{}, false
	}
	return out.ca, true
}

// Path returns the output's store path given the store directory,
// derivation name, and output id. For an intensional output, this is the
// path declared at construction. For a fixed output, the path is
// recomputed from the content address.
func (out Output) Path(dir storepath.Directory, drvName, outName string) (storepath.Path, error) {
	switch out.kind {
	case intensionalOutput:
		return out.path, nil
	case fixedOutput:
		name := drvName
		if outName != DefaultOutputName {
			name += "-" + outName
		}
		return storepath.FixedOutputPath(dir, name, out.ca, storepath.References{})
	default:
		return "", fmt.Errorf("output %q: uninitialized", outName)
	}
}

func (out Output) marshalText(dst []byte, dir storepath.Directory, drvName, outName string, maskOutputs bool) ([]byte, error) {
	dst = append(dst, '(')
	dst = aterm.AppendString(dst, outName)
	switch out.kind {
	case intensionalOutput:
		if maskOutputs {
			dst = append(dst, `,""`...)
		} else {
			dst = append(dst, ',')
			dst = aterm.AppendString(dst, string(out.path))
		}
		dst = append(dst, `,"","")`...)
	case fixedOutput:
		if maskOutputs {
			dst = append(dst, `,""`...)
		} else {
			dst = append(dst, ',')
			p, err := out.Path(dir, drvName, outName)
			if err != nil {
				return dst, fmt.Errorf("marshal %s output: %v", outName, err)
			}
			dst = aterm.AppendString(dst, string(p))
		}
		dst = append(dst, ',')
		h := out.ca.Hash()
		dst = aterm.AppendString(dst, printMethodAlgo(out.ca, h.Type()))
		dst = append(dst, ',')
		dst = aterm.AppendString(dst, h.RawBase16())
		dst = append(dst, ')')
	default:
		return dst, fmt.Errorf("marshal %s output: uninitialized", outName)
	}
	return dst, nil
}

func parseOutput(s *aterm.Scanner) (outName string, out Output, err error) {
	if _, err := expectToken(s, aterm.LParen); err != nil {
		return "", Output{}, fmt.Errorf("parse output: %v", err)
	}
	tok, err := expectToken(s, aterm.String)
	if err != nil {
		return "", Output{}, fmt.Errorf("parse output: name: %v", err)
	}
	outName = tok.Value
	if !IsValidOutputName(outName) {
		return "", Output{}, fmt.Errorf("parse output: name: invalid name %q", outName)
	}

	tok, err = expectToken(s, aterm.String)
	if err != nil {
		return "", Output{}, fmt.Errorf("parse %s output: path: %v", outName, err)
	}
	path := tok.Value

	tok, err = expectToken(s, aterm.String)
	if err != nil {
		return "", Output{}, fmt.Errorf("parse %s output: hash algorithm: %v", outName, err)
	}
	caInfo := tok.Value

	tok, err = expectToken(s, aterm.String)
	if err != nil {
		return "", Output{}, fmt.Errorf("parse %s output: hash: %v", outName, err)
	}
	hashHex := tok.Value

	if _, err := expectToken(s, aterm.RParen); err != nil {
		return "", Output{}, fmt.Errorf("parse %s output: %v", outName, err)
	}

	if caInfo == "" && hashHex == "" {
		p, err := storepath.ParsePath(path)
		if err != nil {
			return outName, Output{}, fmt.Errorf("parse %s output: %v", outName, err)
		}
		return outName, Intensional(p), nil
	}

	prefix, hashAlgo, err := parseMethodAlgo(caInfo)
	if err != nil {
		return outName, Output{}, fmt.Errorf("parse %s output: hash algorithm: %v", outName, err)
	}
	hashBits, err := hex.DecodeString(hashHex)
	if err != nil {
		return outName, Output{}, fmt.Errorf("parse %s output: hash: %v", outName, err)
	}
	if got, want := len(hashBits), hashAlgo.Size(); got != want {
		return outName, Output{}, fmt.Errorf("parse %s output: hash: incorrect size (got %d bytes but %v uses %d)", outName, got, hashAlgo, want)
	}
	h := nix.NewHash(hashAlgo, hashBits)
	var ca nix.ContentAddress
	switch prefix {
	case recursivePrefix:
		ca = nix.RecursiveFileContentAddress(h)
	case textPrefix:
		ca = nix.TextContentAddress(h)
	default:
		ca = nix.FlatFileContentAddress(h)
	}
	return outName, Fixed(ca), nil
}

type methodPrefix int8

const (
	flatPrefix methodPrefix = iota
	recursivePrefix
	textPrefix
)

// printMethodAlgo returns the conventional ATerm prefix for a fixed
// output's hash algorithm: bare "<algo>" for flat files, "r:<algo>" for
// recursive (NAR) hashing, "text:<algo>" for text.
func printMethodAlgo(ca nix.ContentAddress, algo nix.HashType) string {
	switch {
	case ca.IsText():
		return "text:" + algo.String()
	case ca.IsRecursiveFile():
		return "r:" + algo.String()
	default:
		return algo.String()
	}
}

func parseMethodAlgo(s string) (methodPrefix, nix.HashType, error) {
	prefix := flatPrefix
	if rest, ok := strings.CutPrefix(s, "r:"); ok {
		prefix = recursivePrefix
		s = rest
	} else if rest, ok := strings.CutPrefix(s, "text:"); ok {
		prefix = textPrefix
		s = rest
	}
	typ, err := nix.ParseHashType(s)
	if err != nil {
		return prefix, 0, err
	}
	return prefix, typ, nil
}
