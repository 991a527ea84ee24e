// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"zombiezen.com/go/nix"
	"zombiezen.com/go/nix/nar"

	"lattice.dev/cachestore/cache"
	"lattice.dev/cachestore/storepath"
)

func newAddCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "add PATH",
		Short:                 "ingest a local file or directory tree into the cache",
		DisableFlagsInUseLine: true,
		Args:                  cobra.ExactArgs(1),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	name := c.Flags().String("name", "", "store object `name` (defaults to the base name of PATH)")
	recursive := c.Flags().Bool("recursive", true, "hash PATH as a NAR (false hashes a single flat file)")
	hashAlgoName := c.Flags().String("hash-algo", "sha256", "content-address hash `algorithm`")
	repair := c.Flags().Bool("repair", false, "re-verify and re-upload even if already present")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		hashAlgo, err := nix.ParseHashType(*hashAlgoName)
		if err != nil {
			return err
		}
		method := storepath.Recursive
		if !*recursive {
			method = storepath.Flat
		}
		objName := *name
		if objName == "" {
			objName = filepath.Base(args[0])
		}

		st, err := g.newStore()
		if err != nil {
			return err
		}
		defer st.Close()

		pr, pw, err := os.Pipe()
		if err != nil {
			return err
		}
		dumpErr := make(chan error, 1)
		go func() {
			defer pw.Close()
			dumpErr <- nar.DumpPath(pw, args[0])
		}()

		info, err := st.AddPathToStore(cmd.Context(), objName, method, hashAlgo, pr, cache.AddOptions{Repair: *repair})
		pr.Close()
		if derr := <-dumpErr; derr != nil && err == nil {
			err = fmt.Errorf("dump %s: %w", args[0], derr)
		}
		if err != nil {
			return err
		}
		_, err = fmt.Println(info.StorePath)
		return err
	}
	return c
}
