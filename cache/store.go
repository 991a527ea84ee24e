// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	jsonv2 "github.com/go-json-experiment/json"
	"zombiezen.com/go/log"
	"zombiezen.com/go/nix"
	"zombiezen.com/go/nix/nar"

	"lattice.dev/cachestore/bytebuffer"
	"lattice.dev/cachestore/narinfo"
	"lattice.dev/cachestore/pathcache"
	"lattice.dev/cachestore/sink"
	"lattice.dev/cachestore/storepath"
)

// spoolNAR copies r to a temporary file and reads it back, rather than
// buffering the entire upload in memory while it is still in flight.
func spoolNAR(r io.Reader) ([]byte, error) {
	buf, err := (bytebuffer.TempFileCreator{Pattern: "cachestore-nar-*"}).CreateBuffer(-1)
	if err != nil {
		return nil, fmt.Errorf("spool nar: %w", err)
	}
	defer buf.Close()
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("spool nar: %w", err)
	}
	if _, err := buf.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("spool nar: %w", err)
	}
	data, err := io.ReadAll(buf)
	if err != nil {
		return nil, fmt.Errorf("spool nar: %w", err)
	}
	return data, nil
}

// Options configures a [Store].
type Options struct {
	// Backend is the underlying blob storage. Required.
	Backend Backend
	// StoreDir is the store directory this cache serves objects for.
	// Required.
	StoreDir storepath.Directory

	// PathCache is the two-tier path-info cache consulted before
	// falling back to Backend. If nil, a private memory-only cache is
	// created with default settings.
	PathCache *pathcache.Cache

	// Compression is the algorithm used to compress NAR blobs written
	// by AddToStore. Defaults to [narinfo.Bzip2].
	Compression narinfo.CompressionType
	// WriteNARListing controls whether AddToStore writes a ".ls" JSON
	// directory listing alongside the narinfo.
	WriteNARListing bool
	// WriteDebugInfo controls whether AddToStore indexes ELF build-id
	// debug members under "debuginfo/<buildId>".
	WriteDebugInfo bool
	// Signer, if set, signs every narinfo AddToStore writes.
	Signer *Signer
	// Priority is this cache's advertised priority in nix-cache-info.
	Priority int
	// WantMassQuery is this cache's advertised mass-query preference.
	WantMassQuery bool
}

// AddOptions controls a single [Store.AddToStore] call.
type AddOptions struct {
	// Repair forces re-verification and re-upload even if the path
	// already exists in the backend.
	Repair bool
}

// Store orchestrates reads and writes against a [Backend], presenting
// the binary cache protocol's operations. The zero value is not valid;
// use [New].
type Store struct {
	backend     Backend
	dir         storepath.Directory
	cache       *pathcache.Cache
	compression narinfo.CompressionType
	writeListing bool
	writeDebugInfo bool
	signer      *Signer
	priority    int
	wantMass    bool

	skipped atomic.Int64
	averted atomic.Int64
}

// New returns a [Store] built from opts.
func New(opts Options) (*Store, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("new cache store: backend is required")
	}
	if opts.StoreDir == "" {
		return nil, fmt.Errorf("new cache store: store directory is required")
	}
	compression := opts.Compression
	if compression == "" {
		compression = narinfo.Bzip2
	}
	pc := opts.PathCache
	if pc == nil {
		pc = pathcache.NewMemory(pathcache.Options{})
	}
	return &Store{
		backend:        opts.Backend,
		dir:            opts.StoreDir,
		cache:          pc,
		compression:    compression,
		writeListing:   opts.WriteNARListing,
		writeDebugInfo: opts.WriteDebugInfo,
		signer:         opts.Signer,
		priority:       opts.Priority,
		wantMass:       opts.WantMassQuery,
	}, nil
}

// Stats reports running counters: skipped counts AddToStore calls that
// returned early because the path was already valid; averted counts
// blob writes that were skipped because the exact compressed bytes
// were already present.
type Stats struct {
	Skipped int64
	Averted int64
}

// Stats returns a snapshot of the store's running counters.
func (s *Store) Stats() Stats {
	return Stats{Skipped: s.skipped.Load(), Averted: s.averted.Load()}
}

// Init ensures the backend's nix-cache-info header is present and
// agrees with s's configured store directory, writing it if absent.
func (s *Store) Init(ctx context.Context) error {
	r, err := s.backend.GetFile(ctx, narinfo.CacheInfoName)
	if errors.Is(err, ErrNotFound) {
		info := &narinfo.CacheInfo{
			StoreDir:      s.dir,
			WantMassQuery: s.wantMass,
			Priority:      s.priority,
			HasPriority:   true,
		}
		data, err := info.MarshalText()
		if err != nil {
			return fmt.Errorf("init cache: %w", err)
		}
		if err := s.backend.UpsertFile(ctx, narinfo.CacheInfoName, bytes.NewReader(data), "text/x-nix-cache-info"); err != nil {
			return fmt.Errorf("init cache: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("init cache: read nix-cache-info: %w", err)
	}
	info, err := narinfo.ParseCacheInfo(data)
	if err != nil {
		return fmt.Errorf("init cache: %w: %w", ErrFormat, err)
	}
	if info.StoreDir != s.dir {
		return fmt.Errorf("init cache: %w: nix-cache-info StoreDir %s does not match configured %s", ErrConfiguration, info.StoreDir, s.dir)
	}
	return nil
}

// IsValidPath reports whether path has a recorded narinfo in the
// backend, without consulting or populating the path-info cache.
func (s *Store) IsValidPath(ctx context.Context, path storepath.Path) (bool, error) {
	ok, err := s.backend.FileExists(ctx, narInfoKey(path))
	if err != nil {
		return false, fmt.Errorf("is valid path %s: %w", path, err)
	}
	return ok, nil
}

// QueryPathInfo returns path's narinfo, or (nil, nil) if path does not
// exist in the cache.
func (s *Store) QueryPathInfo(ctx context.Context, path storepath.Path) (*narinfo.NarInfo, error) {
	if result, ok, err := s.cache.Lookup(ctx, path); err != nil {
		log.Warnf(ctx, "path-info cache lookup for %s: %v", path, err)
	} else if ok {
		if !result.Found {
			return nil, nil
		}
		return result.Info, nil
	}

	r, err := s.backend.GetFile(ctx, narInfoKey(path))
	if errors.Is(err, ErrNotFound) {
		if err := s.cache.PutMissing(ctx, path); err != nil {
			log.Warnf(ctx, "path-info cache put-missing for %s: %v", path, err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query path info %s: %w", path, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("query path info %s: %w", path, err)
	}
	info := new(narinfo.NarInfo)
	if err := info.UnmarshalText(data); err != nil {
		return nil, fmt.Errorf("query path info %s: %w: %w", path, ErrFormat, err)
	}
	if err := s.cache.Put(ctx, path, info); err != nil {
		log.Warnf(ctx, "path-info cache put for %s: %v", path, err)
	}
	return info, nil
}

// AddToStore ingests a NAR read from narSource, recording info's
// metadata alongside it. narSource is spooled to a temporary file before
// any hashing or parsing happens, then read back into memory for the
// remainder of the pipeline.
func (s *Store) AddToStore(ctx context.Context, info narinfo.NarInfo, narSource io.Reader, opts AddOptions) (narinfo.NarInfo, error) {
	narBytes, err := spoolNAR(narSource)
	if err != nil {
		return narinfo.NarInfo{}, fmt.Errorf("add %s to store: read nar: %w", info.StorePath, err)
	}

	if !opts.Repair {
		if valid, err := s.IsValidPath(ctx, info.StorePath); err != nil {
			return narinfo.NarInfo{}, fmt.Errorf("add %s to store: %w", info.StorePath, err)
		} else if valid {
			s.skipped.Add(1)
			existing, err := s.QueryPathInfo(ctx, info.StorePath)
			if err != nil {
				return narinfo.NarInfo{}, fmt.Errorf("add %s to store: %w", info.StorePath, err)
			}
			if existing != nil {
				return *existing, nil
			}
		}
	}

	for _, ref := range info.References {
		if ref == info.StorePath {
			continue
		}
		if existing, err := s.QueryPathInfo(ctx, ref); err != nil {
			return narinfo.NarInfo{}, fmt.Errorf("add %s to store: reference %s: %w", info.StorePath, ref, err)
		} else if existing == nil {
			return narinfo.NarInfo{}, fmt.Errorf("add %s to store: reference %s: %w", info.StorePath, ref, ErrInvalidReference)
		}
	}

	if _, err := nar.NewReader(bytes.NewReader(narBytes)).Next(); err != nil {
		return narinfo.NarInfo{}, fmt.Errorf("add %s to store: %w: not a NAR archive: %v", info.StorePath, ErrIntegrity, err)
	}

	narHash := sha256.Sum256(narBytes)
	computedNARHash := nix.NewHash(nix.SHA256, narHash[:])
	if !info.NARHash.IsZero() && !info.NARHash.Equal(computedNARHash) {
		return narinfo.NarInfo{}, fmt.Errorf("add %s to store: %w: nar hash mismatch (recorded %v, computed %v)", info.StorePath, ErrIntegrity, info.NARHash, computedNARHash)
	}
	info.NARHash = computedNARHash
	info.NARSize = int64(len(narBytes))

	if s.writeListing {
		listing, err := buildListing(narBytes)
		if err != nil {
			return narinfo.NarInfo{}, fmt.Errorf("add %s to store: build listing: %w", info.StorePath, err)
		}
		if err := s.backend.UpsertFile(ctx, listingKey(info.StorePath), bytes.NewReader(listing), "application/json"); err != nil {
			return narinfo.NarInfo{}, fmt.Errorf("add %s to store: write listing: %w", info.StorePath, err)
		}
	}

	compressed, err := compressBytes(narBytes, s.compression)
	if err != nil {
		return narinfo.NarInfo{}, fmt.Errorf("add %s to store: compress: %w", info.StorePath, err)
	}
	fileHash := sha256.Sum256(compressed)
	info.Compression = s.compression
	info.FileHash = nix.NewHash(nix.SHA256, fileHash[:])
	info.FileSize = int64(len(compressed))
	info.URL = narKey(info.FileHash, s.compression)

	if s.writeDebugInfo {
		if err := s.indexDebugInfo(ctx, narBytes, info.StorePath); err != nil {
			log.Warnf(ctx, "add %s to store: index debuginfo: %v", info.StorePath, err)
		}
	}

	if opts.Repair {
		if err := s.backend.UpsertFile(ctx, info.URL, bytes.NewReader(compressed), "application/x-nix-nar"); err != nil {
			return narinfo.NarInfo{}, fmt.Errorf("add %s to store: write nar: %w", info.StorePath, err)
		}
	} else if exists, err := s.backend.FileExists(ctx, info.URL); err != nil {
		return narinfo.NarInfo{}, fmt.Errorf("add %s to store: %w", info.StorePath, err)
	} else if exists {
		s.averted.Add(1)
	} else if err := s.backend.UpsertFile(ctx, info.URL, bytes.NewReader(compressed), "application/x-nix-nar"); err != nil {
		return narinfo.NarInfo{}, fmt.Errorf("add %s to store: write nar: %w", info.StorePath, err)
	}

	if s.signer != nil {
		var fp bytes.Buffer
		if err := info.WriteFingerprint(&fp); err != nil {
			return narinfo.NarInfo{}, fmt.Errorf("add %s to store: sign: %w", info.StorePath, err)
		}
		sig, err := s.signer.Sign(fp.Bytes())
		if err != nil {
			return narinfo.NarInfo{}, fmt.Errorf("add %s to store: sign: %w", info.StorePath, err)
		}
		info.AddSignatures(sig)
	}

	narInfoData, err := info.MarshalText()
	if err != nil {
		return narinfo.NarInfo{}, fmt.Errorf("add %s to store: marshal narinfo: %w", info.StorePath, err)
	}
	if err := s.backend.UpsertFile(ctx, narInfoKey(info.StorePath), bytes.NewReader(narInfoData), narinfo.MIMEType); err != nil {
		return narinfo.NarInfo{}, fmt.Errorf("add %s to store: write narinfo: %w", info.StorePath, err)
	}

	if err := s.cache.Put(ctx, info.StorePath, &info); err != nil {
		log.Warnf(ctx, "add %s to store: path-info cache put: %v", info.StorePath, err)
	}

	return info, nil
}

// AddPathToStore ingests a single local file tree rooted at the store
// object boundary: method selects whether it is hashed as a flat file
// or recursively as a NAR, with the resulting store path computed from
// the fixed-output content address.
func (s *Store) AddPathToStore(ctx context.Context, name string, method storepath.FileIngestionMethod, hashAlgo nix.HashType, narSource io.Reader, opts AddOptions) (narinfo.NarInfo, error) {
	narBytes, err := spoolNAR(narSource)
	if err != nil {
		return narinfo.NarInfo{}, fmt.Errorf("add path %s to store: %w", name, err)
	}

	var ca nix.ContentAddress
	switch method {
	case storepath.Recursive:
		h := nix.NewHasher(hashAlgo)
		h.Write(narBytes)
		ca = nix.RecursiveFileContentAddress(h.SumHash())
	case storepath.Flat:
		nr := nar.NewReader(bytes.NewReader(narBytes))
		hdr, err := nr.Next()
		if err != nil {
			return narinfo.NarInfo{}, fmt.Errorf("add path %s to store: read nar: %w", name, err)
		}
		if !hdr.Mode.IsRegular() {
			return narinfo.NarInfo{}, fmt.Errorf("add path %s to store: %w: flat ingestion requires a single regular file", name, ErrFormat)
		}
		h := nix.NewHasher(hashAlgo)
		if _, err := io.Copy(h, nr); err != nil {
			return narinfo.NarInfo{}, fmt.Errorf("add path %s to store: %w", name, err)
		}
		ca = nix.FlatFileContentAddress(h.SumHash())
	default:
		return narinfo.NarInfo{}, fmt.Errorf("add path %s to store: unknown ingestion method", name)
	}

	path, err := storepath.FixedOutputPath(s.dir, name, ca, storepath.References{})
	if err != nil {
		return narinfo.NarInfo{}, fmt.Errorf("add path %s to store: %w", name, err)
	}

	info := narinfo.NarInfo{StorePath: path, CA: ca}
	return s.AddToStore(ctx, info, bytes.NewReader(narBytes), opts)
}

// AddTextToStore ingests the bytes of s (interpreted as a single flat
// file) under a text-addressed store path whose references are refs.
func (s *Store) AddTextToStore(ctx context.Context, name string, text []byte, refs storepath.References, opts AddOptions) (narinfo.NarInfo, error) {
	h := nix.NewHasher(nix.SHA256)
	h.Write(text)
	ca := nix.TextContentAddress(h.SumHash())
	path, err := storepath.FixedOutputPath(s.dir, name, ca, refs)
	if err != nil {
		return narinfo.NarInfo{}, fmt.Errorf("add text %s to store: %w", name, err)
	}
	if !opts.Repair {
		if valid, err := s.IsValidPath(ctx, path); err == nil && valid {
			existing, err := s.QueryPathInfo(ctx, path)
			if err == nil && existing != nil {
				return *existing, nil
			}
		}
	}

	var buf bytes.Buffer
	nw := nar.NewWriter(&buf)
	if err := nw.WriteHeader(&nar.Header{Size: int64(len(text))}); err != nil {
		return narinfo.NarInfo{}, fmt.Errorf("add text %s to store: %w", name, err)
	}
	if _, err := nw.Write(text); err != nil {
		return narinfo.NarInfo{}, fmt.Errorf("add text %s to store: %w", name, err)
	}
	if err := nw.Close(); err != nil {
		return narinfo.NarInfo{}, fmt.Errorf("add text %s to store: %w", name, err)
	}

	references := refs.Others.Slice()
	if refs.Self {
		references = append(append([]storepath.Path(nil), references...), path)
	}
	info := narinfo.NarInfo{StorePath: path, CA: ca, References: references}
	return s.AddToStore(ctx, info, &buf, opts)
}

// NarFromPath streams path's decompressed NAR bytes to dst.
func (s *Store) NarFromPath(ctx context.Context, path storepath.Path, dst io.Writer) error {
	info, err := s.QueryPathInfo(ctx, path)
	if err != nil {
		return fmt.Errorf("nar from %s: %w", path, err)
	}
	if info == nil {
		return fmt.Errorf("nar from %s: %w", path, ErrNotFound)
	}

	r, err := s.backend.GetFile(ctx, info.URL)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("nar from %s: %w", path, ErrSubstituteGone)
	}
	if err != nil {
		return fmt.Errorf("nar from %s: %w", path, err)
	}
	defer r.Close()

	dec, err := sink.NewDecompressor(r, info.Compression)
	if err != nil {
		return fmt.Errorf("nar from %s: %w", path, err)
	}
	counting := sink.NewCounting(dst)
	if _, err := io.Copy(counting, dec); err != nil {
		return fmt.Errorf("nar from %s: %w", path, err)
	}
	if err := dec.Finish(); err != nil {
		return fmt.Errorf("nar from %s: finish decompressor: %w", path, err)
	}
	return nil
}

// AddSignatures reads path's current narinfo, merges in sigs (skipping
// any already present), and rewrites the narinfo. Concurrent callers
// racing on the same path may lose each other's signatures: the last
// writer's AddSignatures call wins.
func (s *Store) AddSignatures(ctx context.Context, path storepath.Path, sigs ...*nix.Signature) error {
	info, err := s.QueryPathInfo(ctx, path)
	if err != nil {
		return fmt.Errorf("add signatures to %s: %w", path, err)
	}
	if info == nil {
		return fmt.Errorf("add signatures to %s: %w", path, ErrNotFound)
	}
	info.AddSignatures(sigs...)
	data, err := info.MarshalText()
	if err != nil {
		return fmt.Errorf("add signatures to %s: %w", path, err)
	}
	if err := s.backend.UpsertFile(ctx, narInfoKey(path), bytes.NewReader(data), narinfo.MIMEType); err != nil {
		return fmt.Errorf("add signatures to %s: %w", path, err)
	}
	if err := s.cache.Put(ctx, path, info); err != nil {
		log.Warnf(ctx, "add signatures to %s: path-info cache put: %v", path, err)
	}
	return nil
}

// GetBuildLog returns the build log recorded for path, which may be
// either a derivation path directly or any of its outputs.
func (s *Store) GetBuildLog(ctx context.Context, path storepath.Path) (io.ReadCloser, error) {
	drvPath := path
	if !strings.HasSuffix(path.Name(), ".drv") {
		info, err := s.QueryPathInfo(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("get build log for %s: %w", path, err)
		}
		if info == nil || info.Deriver == "" {
			return nil, fmt.Errorf("get build log for %s: %w", path, ErrNotFound)
		}
		drvPath = info.Deriver
	}
	r, err := s.backend.GetFile(ctx, buildLogKey(drvPath))
	if err != nil {
		return nil, fmt.Errorf("get build log for %s: %w", path, err)
	}
	return r, nil
}

func compressBytes(data []byte, algo narinfo.CompressionType) ([]byte, error) {
	var buf bytes.Buffer
	c, err := sink.NewCompressor(&buf, algo)
	if err != nil {
		return nil, err
	}
	if _, err := c.Write(data); err != nil {
		return nil, err
	}
	if err := c.Finish(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// narListing mirrors the {version, root} JSON shape of a ".ls" listing.
type narListing struct {
	Version int             `json:"version"`
	Root    *narListingNode `json:"root"`
}

type narListingNode struct {
	Type       string                     `json:"type"`
	Size       int64                      `json:"size,omitempty"`
	Executable bool                       `json:"executable,omitempty"`
	Target     string                     `json:"target,omitempty"`
	Entries    map[string]*narListingNode `json:"entries,omitempty"`
}

func marshalListing(v any) ([]byte, error) {
	return jsonv2.Marshal(v)
}

func buildListing(narBytes []byte) ([]byte, error) {
	nr := nar.NewReader(bytes.NewReader(narBytes))
	root := &narListingNode{}
	for {
		hdr, err := nr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		node := nodeForHeader(hdr)
		insertListingNode(root, hdr.Path, node)
	}
	data, err := marshalListing(&narListing{Version: 1, Root: root})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func nodeForHeader(hdr *nar.Header) *narListingNode {
	switch {
	case hdr.Mode.IsDir():
		return &narListingNode{Type: "directory", Entries: map[string]*narListingNode{}}
	case hdr.Mode&0o111 != 0 && hdr.Mode.IsRegular():
		return &narListingNode{Type: "regular", Size: hdr.Size, Executable: true}
	case hdr.Mode.IsRegular():
		return &narListingNode{Type: "regular", Size: hdr.Size}
	default:
		return &narListingNode{Type: "symlink", Target: hdr.LinkTarget}
	}
}

func insertListingNode(root *narListingNode, p string, node *narListingNode) {
	if p == "" || p == "." {
		*root = *node
		return
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	cur := root
	for _, part := range parts[:len(parts)-1] {
		if cur.Entries == nil {
			cur.Entries = map[string]*narListingNode{}
		}
		next, ok := cur.Entries[part]
		if !ok {
			next = &narListingNode{Type: "directory", Entries: map[string]*narListingNode{}}
			cur.Entries[part] = next
		}
		cur = next
	}
	if cur.Entries == nil {
		cur.Entries = map[string]*narListingNode{}
	}
	cur.Entries[parts[len(parts)-1]] = node
}

func (s *Store) indexDebugInfo(ctx context.Context, narBytes []byte, archivePath storepath.Path) error {
	members := findDebugInfoMembers(narBytes)
	if len(members) == 0 {
		return nil
	}
	pool := newWorkPool(ctx, debugInfoParallelism)
	for _, m := range members {
		m := m
		pool.Enqueue(func(ctx context.Context) error {
			key := debugInfoKey(m.buildID)
			if exists, err := s.backend.FileExists(ctx, key); err != nil {
				return fmt.Errorf("index debuginfo %s: %w", m.buildID, err)
			} else if exists {
				return nil
			}
			entry := map[string]string{"archive": string(archivePath), "member": m.path}
			data, err := marshalListing(entry)
			if err != nil {
				return fmt.Errorf("index debuginfo %s: %w", m.buildID, err)
			}
			if err := s.backend.UpsertFile(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
				return fmt.Errorf("index debuginfo %s: %w", m.buildID, err)
			}
			return nil
		})
	}
	return pool.Wait()
}

type debugInfoMember struct {
	buildID string
	path    string
}

// findDebugInfoMembers returns the NAR members whose paths have the form
// "/lib/debug/.build-id/<xx>/<rest>.debug" and name a valid build ID
// (see parseDebugPath). It stops at the first NAR read error.
func findDebugInfoMembers(narBytes []byte) []debugInfoMember {
	nr := nar.NewReader(bytes.NewReader(narBytes))
	var members []debugInfoMember
	for {
		hdr, err := nr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return members
		}
		if buildID, ok := parseDebugPath(hdr.Path); ok {
			members = append(members, debugInfoMember{buildID: buildID, path: hdr.Path})
		}
	}
	return members
}

func parseDebugPath(p string) (string, bool) {
	const prefix = "/lib/debug/.build-id/"
	const suffix = ".debug"
	if !strings.HasPrefix(p, prefix) || !strings.HasSuffix(p, suffix) {
		return "", false
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(p, prefix), suffix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return "", false
	}
	buildID := parts[0] + parts[1]
	if err := parseBuildID(buildID); err != nil {
		return "", false
	}
	return buildID, true
}
