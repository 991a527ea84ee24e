// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package pathcache implements the two-tier path-info cache that sits in
// front of a binary cache's backend: a bounded in-process LRU (tier one)
// backed by an optional sqlite-persisted disk cache (tier two), so that
// repeated QueryPathInfo lookups for the same store path avoid a round
// trip to the backend once either tier has seen the answer.
//
// Both a positive result (a path's narinfo) and a negative result (a path
// is known not to exist) are cacheable, each with their own expiry.
package pathcache

import (
	"container/list"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"zombiezen.com/go/log"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitemigration"
	"zombiezen.com/go/sqlite/sqlitex"

	"lattice.dev/cachestore/narinfo"
	"lattice.dev/cachestore/storepath"
)

// Result is the outcome of a path-info lookup, distinguishing a known
// miss (Found is false) from a result that was never cached at all (the
// zero Result, paired with a false "ok" return from [Cache.Lookup]).
type Result struct {
	// Info is the cached narinfo, non-nil only when Found is true.
	Info *narinfo.NarInfo
	// Found reports whether the store path exists in the backend.
	Found bool
}

// Options configures a [Cache].
type Options struct {
	// MemoryEntries bounds the number of entries held in the in-process
	// LRU tier. Zero selects a default of 1024.
	MemoryEntries int
	// PositiveTTL is how long a positive (found) result is trusted
	// before it must be re-verified against the backend. Zero means
	// positive results never expire: store objects are immutable, so a
	// positive hit for a content-addressed path remains valid forever.
	PositiveTTL time.Duration
	// NegativeTTL is how long a negative (not-found) result is trusted.
	// Zero selects a default of 30 seconds.
	NegativeTTL time.Duration
}

func (opts Options) withDefaults() Options {
	if opts.MemoryEntries <= 0 {
		opts.MemoryEntries = 1024
	}
	if opts.NegativeTTL <= 0 {
		opts.NegativeTTL = 30 * time.Second
	}
	return opts
}

// Cache is a two-tier path-info cache. The zero value is not valid; use
// [Open] or [NewMemory].
type Cache struct {
	opts Options

	mu    sync.Mutex
	lru   *list.List // of *memEntry, most-recently-used at front
	index map[string]*list.Element

	db *sqlitemigration.Pool // nil if there is no persistent tier
}

type memEntry struct {
	hashPart  string
	result    Result
	expiresAt time.Time // zero means never expires
}

// NewMemory returns a [Cache] with only the in-process LRU tier. Positive
// and negative results recorded with [Cache.Put] and [Cache.PutMissing]
// are kept only in memory: once evicted from the LRU, or when the process
// exits, they are gone and later lookups report a cache miss.
func NewMemory(opts Options) *Cache {
	opts = opts.withDefaults()
	return &Cache{
		opts:  opts,
		lru:   list.New(),
		index: make(map[string]*list.Element),
	}
}

// Open returns a [Cache] with both tiers: the in-process LRU plus a
// sqlite-backed persistent tier rooted at dbPath. dbPath may be
// ":memory:" for a private, process-lifetime-only database.
func Open(dbPath string, opts Options) *Cache {
	c := NewMemory(opts)
	c.db = sqlitemigration.NewPool(dbPath, loadSchema(), sqlitemigration.Options{
		Flags:       sqlite.OpenCreate | sqlite.OpenReadWrite,
		PrepareConn: prepareConn,
		OnStartMigrate: func() {
			log.Debugf(context.Background(), "pathcache: migrating %s", dbPath)
		},
		OnError: func(err error) {
			log.Errorf(context.Background(), "pathcache: migration of %s: %v", dbPath, err)
		},
	})
	return c
}

// Close releases the persistent tier's connection pool, if any.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Lookup reports the cached result for path, if any. ok is false if
// neither tier has an unexpired entry for path, in which case the
// caller must consult the backend directly.
func (c *Cache) Lookup(ctx context.Context, path storepath.Path) (result Result, ok bool, err error) {
	hashPart := path.HashPart()

	if result, ok := c.lookupMemory(hashPart); ok {
		return result, true, nil
	}

	if c.db == nil {
		return Result{}, false, nil
	}
	result, ok, err = c.lookupDisk(ctx, hashPart)
	if err != nil {
		return Result{}, false, err
	}
	if ok {
		c.putMemory(hashPart, result, c.ttlFor(result))
	}
	return result, ok, nil
}

// Put records a positive result: path exists and its narinfo is info.
func (c *Cache) Put(ctx context.Context, path storepath.Path, info *narinfo.NarInfo) error {
	return c.store(ctx, path, Result{Info: info, Found: true})
}

// PutMissing records a negative result: path is known not to exist.
func (c *Cache) PutMissing(ctx context.Context, path storepath.Path) error {
	return c.store(ctx, path, Result{Found: false})
}

// Invalidate removes any cached entry for path from both tiers.
func (c *Cache) Invalidate(ctx context.Context, path storepath.Path) error {
	hashPart := path.HashPart()

	c.mu.Lock()
	if elem, ok := c.index[hashPart]; ok {
		c.lru.Remove(elem)
		delete(c.index, hashPart)
	}
	c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	conn, err := c.db.Get(ctx)
	if err != nil {
		return fmt.Errorf("pathcache: invalidate %s: %w", path, err)
	}
	defer c.db.Put(conn)
	err = sqlitex.ExecuteFS(conn, sqlFiles(), "delete.sql", &sqlitex.ExecOptions{
		Named: map[string]any{":hash_part": hashPart},
	})
	if err != nil {
		return fmt.Errorf("pathcache: invalidate %s: %w", path, err)
	}
	return nil
}

func (c *Cache) store(ctx context.Context, path storepath.Path, result Result) error {
	hashPart := path.HashPart()
	ttl := c.ttlFor(result)
	c.putMemory(hashPart, result, ttl)

	if c.db == nil {
		return nil
	}

	var blob []byte
	if result.Found {
		data, err := result.Info.MarshalText()
		if err != nil {
			return fmt.Errorf("pathcache: put %s: %w", path, err)
		}
		blob = data
	}
	var expiresAt int64
	if !ttl.isZero {
		expiresAt = ttl.at.Unix()
	}

	conn, err := c.db.Get(ctx)
	if err != nil {
		return fmt.Errorf("pathcache: put %s: %w", path, err)
	}
	defer c.db.Put(conn)
	err = sqlitex.ExecuteFS(conn, sqlFiles(), "upsert.sql", &sqlitex.ExecOptions{
		Named: map[string]any{
			":hash_part":  hashPart,
			":store_path": string(path),
			":info":       blob,
			":expires_at": expiresAt,
		},
	})
	if err != nil {
		return fmt.Errorf("pathcache: put %s: %w", path, err)
	}
	return nil
}

// expiry pairs a zero-or-not flag with an absolute time, avoiding
// ambiguity between time.Time's zero value and "never expires".
type expiry struct {
	isZero bool
	at     time.Time
}

func (c *Cache) ttlFor(result Result) expiry {
	var ttl time.Duration
	if result.Found {
		ttl = c.opts.PositiveTTL
	} else {
		ttl = c.opts.NegativeTTL
	}
	if ttl <= 0 {
		return expiry{isZero: true}
	}
	return expiry{at: time.Now().Add(ttl)}
}

func (c *Cache) lookupMemory(hashPart string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.index[hashPart]
	if !ok {
		return Result{}, false
	}
	e := elem.Value.(*memEntry)
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.lru.Remove(elem)
		delete(c.index, hashPart)
		return Result{}, false
	}
	c.lru.MoveToFront(elem)
	return e.result, true
}

func (c *Cache) putMemory(hashPart string, result Result, ttl expiry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Time{}
	if !ttl.isZero {
		expiresAt = ttl.at
	}

	if elem, ok := c.index[hashPart]; ok {
		elem.Value.(*memEntry).result = result
		elem.Value.(*memEntry).expiresAt = expiresAt
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(&memEntry{hashPart: hashPart, result: result, expiresAt: expiresAt})
	c.index[hashPart] = elem

	for c.lru.Len() > c.opts.MemoryEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.lru.Remove(oldest)
		delete(c.index, oldest.Value.(*memEntry).hashPart)
	}
}

func (c *Cache) lookupDisk(ctx context.Context, hashPart string) (Result, bool, error) {
	conn, err := c.db.Get(ctx)
	if err != nil {
		return Result{}, false, fmt.Errorf("pathcache: lookup %s: %w", hashPart, err)
	}
	defer c.db.Put(conn)

	var (
		found     bool
		storePath string
		blob      []byte
		expiresAt int64
	)
	err = sqlitex.ExecuteFS(conn, sqlFiles(), "get.sql", &sqlitex.ExecOptions{
		Named: map[string]any{":hash_part": hashPart},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			storePath = stmt.GetText("store_path")
			if n := stmt.GetLen("info"); n > 0 {
				blob = make([]byte, n)
				stmt.GetBytes("info", blob)
			}
			expiresAt = stmt.GetInt64("expires_at")
			return nil
		},
	})
	if err != nil {
		return Result{}, false, fmt.Errorf("pathcache: lookup %s: %w", hashPart, err)
	}
	if !found {
		return Result{}, false, nil
	}
	if expiresAt != 0 && time.Now().After(time.Unix(expiresAt, 0)) {
		return Result{}, false, nil
	}

	if len(blob) == 0 {
		return Result{Found: false}, true, nil
	}
	info := new(narinfo.NarInfo)
	if err := info.UnmarshalText(blob); err != nil {
		return Result{}, false, fmt.Errorf("pathcache: lookup %s: decode cached %s: %w", hashPart, storePath, err)
	}
	return Result{Info: info, Found: true}, true, nil
}

func prepareConn(conn *sqlite.Conn) error {
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA journal_mode = wal;", nil); err != nil {
		return err
	}
	return sqlitex.ExecuteTransient(conn, "PRAGMA foreign_keys = on;", nil)
}

//go:embed sql/*.sql
//go:embed sql/schema/*.sql
var rawSQLFiles embed.FS

func sqlFiles() fs.FS {
	sub, err := fs.Sub(rawSQLFiles, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

var schemaState struct {
	init   sync.Once
	schema sqlitemigration.Schema
	err    error
}

func loadSchema() sqlitemigration.Schema {
	schemaState.init.Do(func() {
		for i := 1; ; i++ {
			migration, err := fs.ReadFile(sqlFiles(), fmt.Sprintf("schema/%02d.sql", i))
			if errors.Is(err, fs.ErrNotExist) {
				break
			}
			if err != nil {
				schemaState.err = err
				return
			}
			schemaState.schema.Migrations = append(schemaState.schema.Migrations, string(migration))
		}
	})
	if schemaState.err != nil {
		panic(schemaState.err)
	}
	return schemaState.schema
}
