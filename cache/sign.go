// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package cache

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"

	jsonv2 "github.com/go-json-experiment/json"
	"zombiezen.com/go/nix"
)

// secretKeyFile is the on-disk JSON representation of a signing key,
// named the way the cache advertises it in a .narinfo's "Sig" lines
// ("<name>:<base64 signature>").
type secretKeyFile struct {
	Name string `json:"name"`
	Key  []byte `json:"key,format:base64"`
}

// Signer signs narinfo fingerprints with a single named Ed25519 key.
type Signer struct {
	name string
	key  ed25519.PrivateKey
}

// LoadSigner reads a secret key file written by [GenerateSigner] (or
// compatible tooling) and returns a [Signer] for it.
func LoadSigner(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load signer: %w", err)
	}
	var f secretKeyFile
	if err := jsonv2.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("load signer %s: %w", path, err)
	}
	if f.Name == "" {
		return nil, fmt.Errorf("load signer %s: missing name", path)
	}
	if len(f.Key) != ed25519.SeedSize {
		return nil, fmt.Errorf("load signer %s: key is wrong size (got %d, want %d)", path, len(f.Key), ed25519.SeedSize)
	}
	return &Signer{name: f.Name, key: ed25519.NewKeyFromSeed(f.Key)}, nil
}

// GenerateSigner creates a new random Ed25519 signing key named name
// and writes it to path as a secret key file readable by [LoadSigner].
func GenerateSigner(path, name string) (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate signer: %w", err)
	}
	data, err := jsonv2.Marshal(secretKeyFile{Name: name, Key: priv.Seed()})
	if err != nil {
		return nil, fmt.Errorf("generate signer: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("generate signer: %w", err)
	}
	return &Signer{name: name, key: priv}, nil
}

// Sign computes a [nix.Signature] over fingerprint.
func (s *Signer) Sign(fingerprint []byte) (*nix.Signature, error) {
	raw := ed25519.Sign(s.key, fingerprint)
	text := s.name + ":" + base64.StdEncoding.EncodeToString(raw)
	sig := new(nix.Signature)
	if err := sig.UnmarshalText([]byte(text)); err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}
