// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package drv

import (
	"encoding/binary"
	"fmt"
	"io"

	"lattice.dev/cachestore/internal/sets"
	"lattice.dev/cachestore/storepath"
	"zombiezen.com/go/nix"
)

// MarshalBinary encodes the derivation in the binary codec: a framed
// stream of length-prefixed fields used once a derivation's inputs have
// been fully resolved into input sources (post-resolution). Unlike the
// textual form, InputDerivations is intentionally absent from the binary
// form -- callers are expected to have already flattened transitive
// input derivation outputs into InputSources before encoding.
func (d *Derivation) MarshalBinary() ([]byte, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("marshal derivation: missing name")
	}
	outNames := sortedKeys(d.Outputs)
	var buf []byte
	buf = appendUint64(buf, uint64(len(outNames)))
	for _, outName := range outNames {
		out := d.Outputs[outName]
		p, err := out.Path(d.Dir, d.Name, outName)
		if err != nil {
			return nil, fmt.Errorf("marshal derivation %s: output %s: %v", d.Name, outName, err)
		}
		buf = appendString(buf, outName)
		buf = appendString(buf, string(p))
		if ca, ok := out.FixedCA(); ok {
			h := ca.Hash()
			buf = appendString(buf, printMethodAlgo(ca, h.Type()))
			buf = appendString(buf, h.RawBase16())
		} else {
			buf = appendString(buf, "")
			buf = appendString(buf, "")
		}
	}

	buf = appendUint64(buf, uint64(d.InputSources.Len()))
	for _, src := range d.InputSources.Slice() {
		buf = appendString(buf, string(src))
	}

	buf = appendString(buf, d.Platform)
	buf = appendString(buf, d.Builder)

	buf = appendUint64(buf, uint64(len(d.Args)))
	for _, arg := range d.Args {
		buf = appendString(buf, arg)
	}

	envKeys := sortedStringKeys(d.Env)
	buf = appendUint64(buf, uint64(len(envKeys)))
	for _, k := range envKeys {
		buf = appendString(buf, k)
		buf = appendString(buf, d.Env[k])
	}

	return buf, nil
}

// UnmarshalBinaryDerivation decodes a derivation previously produced by
// [Derivation.MarshalBinary]. Because the binary form omits
// InputDerivations, the returned derivation's InputDerivations field is
// always empty.
func UnmarshalBinaryDerivation(dir storepath.Directory, name string, data []byte) (*Derivation, error) {
	d := &Derivation{Dir: dir, Name: name, InputDerivations: map[storepath.Path]*sets.Sorted[string]{}}
	r := sliceReader{data}

	nOutputs, err := readUint64(&r)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s derivation: outputs: %v", name, err)
	}
	d.Outputs = make(map[string]Output, nOutputs)
	for i := uint64(0); i < nOutputs; i++ {
		outName, err := readString(&r)
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s derivation: output %d: name: %v", name, i, err)
		}
		path, err := readString(&r)
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s derivation: output %q: path: %v", name, outName, err)
		}
		methodAlgo, err := readString(&r)
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s derivation: output %q: hash algorithm: %v", name, outName, err)
		}
		hashHex, err := readString(&r)
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s derivation: output %q: hash: %v", name, outName, err)
		}

		if methodAlgo == "" && hashHex == "" {
			p, err := storepath.ParsePath(path)
			if err != nil {
				return nil, fmt.Errorf("unmarshal %s derivation: output %q: %v", name, outName, err)
			}
			d.Outputs[outName] = Intensional(p)
			continue
		}
		prefix, hashAlgo, err := parseMethodAlgo(methodAlgo)
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s derivation: output %q: hash algorithm: %v", name, outName, err)
		}
		hashBits, err := decodeHex(hashHex)
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s derivation: output %q: hash: %v", name, outName, err)
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
		d.Outputs[outName] = Fixed(ca)
	}

	nSources, err := readUint64(&r)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s derivation: input sources: %v", name, err)
	}
	for i := uint64(0); i < nSources; i++ {
		s, err := readString(&r)
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s derivation: input source %d: %v", name, i, err)
		}
		p, err := storepath.ParsePath(s)
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s derivation: input source %d: %v", name, i, err)
		}
		d.InputSources.Add(p)
	}

	d.Platform, err = readString(&r)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s derivation: platform: %v", name, err)
	}
	d.Builder, err = readString(&r)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s derivation: builder: %v", name, err)
	}

	nArgs, err := readUint64(&r)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s derivation: args: %v", name, err)
	}
	d.Args = make([]string, nArgs)
	for i := range d.Args {
		d.Args[i], err = readString(&r)
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s derivation: arg %d: %v", name, i, err)
		}
	}

	nEnv, err := readUint64(&r)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s derivation: env: %v", name, err)
	}
	d.Env = make(map[string]string, nEnv)
	for i := uint64(0); i < nEnv; i++ {
		k, err := readString(&r)
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s derivation: env %d: key: %v", name, i, err)
		}
		v, err := readString(&r)
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s derivation: env %q: %v", name, k, err)
		}
		d.Env[k] = v
	}

	if len(r.b) != 0 {
		return nil, fmt.Errorf("unmarshal %s derivation: trailing data", name)
	}
	return d, nil
}

func decodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, err := hexDigit(s[2*i])
		if err != nil {
			return nil, err
		}
		lo, err := hexDigit(s[2*i+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexDigit(c byte) (byte, error) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', nil
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, nil
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit %q", c)
	}
}

// stringAlign matches the 8-byte alignment used by the NAR archive
// format's own length-prefixed strings, so the binary derivation codec
// can share buffer-handling conventions with NAR decoding.
const stringAlign = 8

func appendUint64(dst []byte, n uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, n)
}

func appendString(dst []byte, s string) []byte {
	dst = appendUint64(dst, uint64(len(s)))
	dst = append(dst, s...)
	if off := len(s) % stringAlign; off != 0 {
		dst = append(dst, make([]byte, stringAlign-off)...)
	}
	return dst
}

func padStringSize(n int) int {
	return (n + stringAlign - 1) &^ (stringAlign - 1)
}

// sliceReader is a minimal cursor over an in-memory buffer, avoiding the
// need for an io.Reader indirection when the whole derivation is already
// resident in memory (as it always is -- derivations are small).
type sliceReader struct {
	b []byte
}

func readUint64(r *sliceReader) (uint64, error) {
	if len(r.b) < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	n := binary.LittleEndian.Uint64(r.b[:8])
	r.b = r.b[8:]
	return n, nil
}

func readString(r *sliceReader) (string, error) {
	n, err := readUint64(r)
	if err != nil {
		return "", err
	}
	if n > 1<<20 {
		return "", fmt.Errorf("string too large (%d bytes)", n)
	}
	readSize := padStringSize(int(n))
	if len(r.b) < readSize {
		return "", io.ErrUnexpectedEOF
	}
	s := string(r.b[:n])
	r.b = r.b[readSize:]
	return s, nil
}
