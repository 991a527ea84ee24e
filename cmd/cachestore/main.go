// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Command cachestore serves and populates a content-addressed binary
// cache of build artifacts, speaking the same .narinfo/NAR protocol a
// Nix-style substituter understands.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go4.org/xdgdir"
	"zombiezen.com/go/log"

	"lattice.dev/cachestore/backend"
	"lattice.dev/cachestore/cache"
	"lattice.dev/cachestore/narinfo"
	"lattice.dev/cachestore/pathcache"
	"lattice.dev/cachestore/storepath"
)

// globalConfig holds the flags every subcommand can see.
type globalConfig struct {
	storeDir    storepath.Directory
	cacheDir    string
	cacheDB     string
	keyFile     string
	priority    int
	massQuery   bool
	compression narinfo.CompressionType
}

func (g *globalConfig) openBackend() (*backend.Dir, error) {
	return backend.NewDir(g.cacheDir)
}

func (g *globalConfig) openPathCache() *pathcache.Cache {
	if g.cacheDB == "" {
		return pathcache.NewMemory(pathcache.Options{})
	}
	return pathcache.Open(g.cacheDB, pathcache.Options{})
}

func (g *globalConfig) openSigner() (*cache.Signer, error) {
	if g.keyFile == "" {
		return nil, nil
	}
	return cache.LoadSigner(g.keyFile)
}

func (g *globalConfig) newStore() (*Store, error) {
	be, err := g.openBackend()
	if err != nil {
		return nil, err
	}
	pc := g.openPathCache()
	signer, err := g.openSigner()
	if err != nil {
		return nil, err
	}
	st, err := cache.New(cache.Options{
		Backend:         be,
		StoreDir:        g.storeDir,
		PathCache:       pc,
		WriteNARListing: true,
		WriteDebugInfo:  true,
		Signer:          signer,
		Priority:        g.priority,
		WantMassQuery:   g.massQuery,
		Compression:     g.compression,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}
	return &Store{Store: st, pathCache: pc}, nil
}

// Store bundles the cache orchestrator with the path-info cache it
// owns, so callers can close the latter once done.
type Store struct {
	*cache.Store
	pathCache *pathcache.Cache
}

func (s *Store) Close() error {
	return s.pathCache.Close()
}

func defaultCacheDir() string {
	if d := xdgdir.Cache.Path(); d != "" {
		return filepath.Join(d, "cachestore")
	}
	return filepath.Join(os.TempDir(), "cachestore")
}

func main() {
	rootCommand := &cobra.Command{
		Use:           "cachestore",
		Short:         "content-addressed binary cache store",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	g := &globalConfig{
		cacheDir: defaultCacheDir(),
	}
	rootCommand.PersistentFlags().Var((*storeDirectoryFlag)(&g.storeDir), "store", "path to store `dir`ectory")
	rootCommand.PersistentFlags().StringVar(&g.cacheDir, "cache-dir", g.cacheDir, "`dir`ectory to store cache blobs in")
	rootCommand.PersistentFlags().StringVar(&g.cacheDB, "cache-db", "", "`path` to persistent path-info database (empty disables the disk tier)")
	rootCommand.PersistentFlags().StringVar(&g.keyFile, "key-file", "", "`path` to a secret signing key")
	rootCommand.PersistentFlags().IntVar(&g.priority, "priority", 40, "advertised cache `priority`")
	rootCommand.PersistentFlags().BoolVar(&g.massQuery, "want-mass-query", true, "advertise support for mass path queries")
	compressionFlag := rootCommand.PersistentFlags().String("compression", string(narinfo.Bzip2), "NAR `compression` algorithm (none, bzip2)")
	configPath := rootCommand.PersistentFlags().String("config", "", "`path` to a JSON config file (flags take precedence over its fields)")
	showDebug := rootCommand.PersistentFlags().Bool("debug", false, "show debugging output")

	rootCommand.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogging(*showDebug)
		g.compression = narinfo.CompressionType(*compressionFlag)
		if *configPath != "" {
			if err := loadConfig(g, *configPath, cmd.Flags().Changed); err != nil {
				return err
			}
		}
		if g.storeDir == "" {
			dir, err := storepath.CleanDirectory("/zb/store")
			if err != nil {
				return err
			}
			g.storeDir = dir
		}
		return nil
	}

	rootCommand.AddCommand(
		newInitCommand(g),
		newAddCommand(g),
		newQueryCommand(g),
		newNARCommand(g),
		newKeygenCommand(g),
		newSignCommand(g),
		newLogCommand(g),
		newServeCommand(g),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCommand.ExecuteContext(ctx)
	cancel()
	if err != nil {
		initLogging(*showDebug)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}
}

var initLogOnce sync.Once

func initLogging(showDebug bool) {
	initLogOnce.Do(func() {
		minLogLevel := log.Info
		if showDebug {
			minLogLevel = log.Debug
		}
		log.SetDefault(&log.LevelFilter{
			Min:    minLogLevel,
			Output: log.New(os.Stderr, "cachestore: ", log.StdFlags, nil),
		})
	})
}

type storeDirectoryFlag storepath.Directory

func (f *storeDirectoryFlag) Type() string  { return "string" }
func (f storeDirectoryFlag) String() string { return string(f) }
func (f storeDirectoryFlag) Get() any       { return storepath.Directory(f) }

func (f *storeDirectoryFlag) Set(s string) error {
	dir, err := storepath.CleanDirectory(s)
	if err != nil {
		return err
	}
	*f = storeDirectoryFlag(dir)
	return nil
}
