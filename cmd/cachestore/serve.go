// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/spf13/cobra"
	"zombiezen.com/go/log"

	"lattice.dev/cachestore/backend"
	"lattice.dev/cachestore/cache"
)

func newServeCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "serve [options]",
		Short:                 "serve the cache's backend over HTTP using the binary cache protocol's key layout",
		DisableFlagsInUseLine: true,
		Args:                  cobra.NoArgs,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	listenAddr := c.Flags().String("listen", ":8080", "`address` to listen on")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		st, err := g.newStore()
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Init(cmd.Context()); err != nil {
			return err
		}

		be, err := g.openBackend()
		if err != nil {
			return err
		}
		srv := &cacheServer{backend: be}
		httpServer := &http.Server{
			Addr:              *listenAddr,
			Handler:           handlers.CombinedLoggingHandler(os.Stderr, srv),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx := cmd.Context()
		errc := make(chan error, 1)
		go func() { errc <- httpServer.ListenAndServe() }()
		log.Infof(ctx, "listening on %s", *listenAddr)
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	}
	return c
}

// cacheServer serves a [cache.Backend]'s keys directly over HTTP: a
// request for "/<key>" maps onto backend.GetFile(ctx, key). Since the
// binary cache protocol's on-wire paths (nix-cache-info, .narinfo,
// nar/<fileHash>.nar[.ext]) are themselves the backend's key layout,
// no translation layer is needed beyond stripping the leading slash.
type cacheServer struct {
	backend cache.Backend
}

func (srv *cacheServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/")
	if key == "" || strings.Contains(key, "..") {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	rc, err := srv.backend.GetFile(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		log.Errorf(ctx, "serve %s: %v", key, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", backend.ContentType(key))
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		log.Warnf(ctx, "serve %s: %v", key, err)
	}
}
