// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package cache_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"zombiezen.com/go/nix"
	"zombiezen.com/go/nix/nar"

	"lattice.dev/cachestore/backend"
	"lattice.dev/cachestore/cache"
	"lattice.dev/cachestore/narinfo"
	"lattice.dev/cachestore/storepath"
)

const testStoreDir = storepath.Directory("/cache/store")

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	st, err := cache.New(cache.Options{
		Backend:  backend.NewMemory(),
		StoreDir: testStoreDir,
	})
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func singleFileNAR(t *testing.T, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	nw := nar.NewWriter(&buf)
	if err := nw.WriteHeader(&nar.Header{Size: int64(len(content))}); err != nil {
		t.Fatal(err)
	}
	if _, err := nw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := nw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestInit(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	if err := st.Init(ctx); err != nil {
		t.Fatal(err)
	}
	// Init must be idempotent.
	if err := st.Init(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestAddAndQueryPathInfo(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	narBytes := singleFileNAR(t, []byte("hello, world"))
	path, err := testStoreDir.Object("abcdfghijklmnpqrsvwxyz0123456789-hello")
	if err != nil {
		t.Fatal(err)
	}
	info := narinfo.NarInfo{StorePath: path}

	added, err := st.AddToStore(ctx, info, bytes.NewReader(narBytes), cache.AddOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if added.NARSize != int64(len(narBytes)) {
		t.Errorf("NARSize = %d, want %d", added.NARSize, len(narBytes))
	}
	if added.URL == "" {
		t.Error("URL is empty after AddToStore")
	}

	valid, err := st.IsValidPath(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if !valid {
		t.Error("IsValidPath = false after AddToStore")
	}

	got, err := st.QueryPathInfo(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("QueryPathInfo = nil after AddToStore")
	}
	if diff := cmp.Diff(&added, got); diff != "" {
		t.Errorf("QueryPathInfo (-added +queried):\n%s", diff)
	}

	var out bytes.Buffer
	if err := st.NarFromPath(ctx, path, &out); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), narBytes) {
		t.Errorf("NarFromPath = %q, want %q", out.Bytes(), narBytes)
	}
}

func TestAddToStoreIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	narBytes := singleFileNAR(t, []byte("idempotent"))
	path, err := testStoreDir.Object("bbcdfghijklmnpqrsvwxyz0123456789-idempotent")
	if err != nil {
		t.Fatal(err)
	}
	info := narinfo.NarInfo{StorePath: path}

	if _, err := st.AddToStore(ctx, info, bytes.NewReader(narBytes), cache.AddOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.AddToStore(ctx, info, bytes.NewReader(narBytes), cache.AddOptions{}); err != nil {
		t.Fatal(err)
	}
	if got, want := st.Stats().Skipped, int64(1); got != want {
		t.Errorf("Stats().Skipped = %d, want %d", got, want)
	}
}

func TestAddToStoreInvalidReference(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	narBytes := singleFileNAR(t, []byte("dangling"))
	path, err := testStoreDir.Object("cbcdfghijklmnpqrsvwxyz0123456789-dangling")
	if err != nil {
		t.Fatal(err)
	}
	missingRef, err := testStoreDir.Object("dbcdfghijklmnpqrsvwxyz0123456789-missing")
	if err != nil {
		t.Fatal(err)
	}
	info := narinfo.NarInfo{StorePath: path, References: []storepath.Path{missingRef}}

	_, err = st.AddToStore(ctx, info, bytes.NewReader(narBytes), cache.AddOptions{})
	if !errors.Is(err, cache.ErrInvalidReference) {
		t.Errorf("AddToStore error = %v, want wrapping ErrInvalidReference", err)
	}
}

func TestAddToStoreIntegrityMismatch(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	narBytes := singleFileNAR(t, []byte("tampered"))
	path, err := testStoreDir.Object("gbcdfghijklmnpqrsvwxyz0123456789-tampered")
	if err != nil {
		t.Fatal(err)
	}
	h := nix.NewHasher(nix.SHA256)
	h.Write([]byte("not the nar bytes"))
	info := narinfo.NarInfo{StorePath: path, NARHash: h.SumHash()}

	_, err = st.AddToStore(ctx, info, bytes.NewReader(narBytes), cache.AddOptions{})
	if !errors.Is(err, cache.ErrIntegrity) {
		t.Errorf("AddToStore error = %v, want wrapping ErrIntegrity", err)
	}
}

func TestAddToStoreRejectsNonNAR(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	path, err := testStoreDir.Object("fbcdfghijklmnpqrsvwxyz0123456789-notnar")
	if err != nil {
		t.Fatal(err)
	}
	info := narinfo.NarInfo{StorePath: path}

	_, err = st.AddToStore(ctx, info, bytes.NewReader([]byte("not a nar file at all")), cache.AddOptions{})
	if !errors.Is(err, cache.ErrIntegrity) {
		t.Errorf("AddToStore error = %v, want wrapping ErrIntegrity", err)
	}
}

func TestQueryPathInfoMissing(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	path, err := testStoreDir.Object("0bcdfghijklmnpqrsvwxyz0123456789-missing")
	if err != nil {
		t.Fatal(err)
	}
	info, err := st.QueryPathInfo(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if info != nil {
		t.Errorf("QueryPathInfo(missing) = %v, want nil", info)
	}
}

func TestNarFromPathSubstituteGone(t *testing.T) {
	ctx := context.Background()
	be := backend.NewMemory()
	st, err := cache.New(cache.Options{Backend: be, StoreDir: testStoreDir})
	if err != nil {
		t.Fatal(err)
	}

	narBytes := singleFileNAR(t, []byte("gone"))
	path, err := testStoreDir.Object("1bcdfghijklmnpqrsvwxyz0123456789-gone")
	if err != nil {
		t.Fatal(err)
	}
	added, err := st.AddToStore(ctx, narinfo.NarInfo{StorePath: path}, bytes.NewReader(narBytes), cache.AddOptions{})
	if err != nil {
		t.Fatal(err)
	}

	// Overwrite the narinfo with one pointing at a blob URL that was
	// never uploaded, simulating a narinfo that outlived its blob.
	stale := added
	stale.URL = "nar/0000000000000000000000000000000000000000000000000000.nar.bz2"
	data, err := stale.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	if err := be.UpsertFile(ctx, path.HashPart()+narinfo.Extension, bytes.NewReader(data), narinfo.MIMEType); err != nil {
		t.Fatal(err)
	}

	// A second Store over the same backend starts with an empty path-info
	// cache, so it reads the overwritten narinfo rather than the record
	// AddToStore cached.
	st2, err := cache.New(cache.Options{Backend: be, StoreDir: testStoreDir})
	if err != nil {
		t.Fatal(err)
	}
	err = st2.NarFromPath(ctx, path, io.Discard)
	if !errors.Is(err, cache.ErrSubstituteGone) {
		t.Errorf("NarFromPath error = %v, want wrapping ErrSubstituteGone", err)
	}
}

func TestAddSignatures(t *testing.T) {
	ctx := context.Background()
	signer, err := cache.GenerateSigner(t.TempDir()+"/key.json", "test-cache-1")
	if err != nil {
		t.Fatal(err)
	}
	st, err := cache.New(cache.Options{
		Backend:  backend.NewMemory(),
		StoreDir: testStoreDir,
		Signer:   signer,
	})
	if err != nil {
		t.Fatal(err)
	}

	narBytes := singleFileNAR(t, []byte("signed"))
	path, err := testStoreDir.Object("2bcdfghijklmnpqrsvwxyz0123456789-signed")
	if err != nil {
		t.Fatal(err)
	}
	added, err := st.AddToStore(ctx, narinfo.NarInfo{StorePath: path}, bytes.NewReader(narBytes), cache.AddOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(added.Sig) != 1 {
		t.Fatalf("AddToStore with Signer set produced %d signatures, want 1", len(added.Sig))
	}

	signer2, err := cache.GenerateSigner(t.TempDir()+"/key2.json", "test-cache-2")
	if err != nil {
		t.Fatal(err)
	}
	var fp bytes.Buffer
	if err := added.WriteFingerprint(&fp); err != nil {
		t.Fatal(err)
	}
	sig2, err := signer2.Sign(fp.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.AddSignatures(ctx, path, sig2); err != nil {
		t.Fatal(err)
	}

	got, err := st.QueryPathInfo(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Sig) != 2 {
		t.Errorf("after AddSignatures, len(Sig) = %d, want 2", len(got.Sig))
	}
}
