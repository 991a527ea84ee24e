// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"lattice.dev/cachestore/cache"
	"lattice.dev/cachestore/storepath"
)

func newKeygenCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "keygen NAME OUTPUT-PATH",
		Short:                 "generate a new signing key",
		DisableFlagsInUseLine: true,
		Args:                  cobra.ExactArgs(2),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		_, err := cache.GenerateSigner(args[1], args[0])
		return err
	}
	return c
}

func newSignCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "sign STOREPATH...",
		Short:                 "sign one or more store paths already in the cache with --key-file",
		DisableFlagsInUseLine: true,
		Args:                  cobra.MinimumNArgs(1),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		if g.keyFile == "" {
			return fmt.Errorf("sign: --key-file is required")
		}
		signer, err := cache.LoadSigner(g.keyFile)
		if err != nil {
			return err
		}
		st, err := g.newStore()
		if err != nil {
			return err
		}
		defer st.Close()

		for _, arg := range args {
			path, err := storepath.ParsePath(arg)
			if err != nil {
				return err
			}
			info, err := st.QueryPathInfo(cmd.Context(), path)
			if err != nil {
				return err
			}
			if info == nil {
				return fmt.Errorf("sign %s: not in cache", path)
			}
			var fp bytes.Buffer
			if err := info.WriteFingerprint(&fp); err != nil {
				return fmt.Errorf("sign %s: %w", path, err)
			}
			sig, err := signer.Sign(fp.Bytes())
			if err != nil {
				return fmt.Errorf("sign %s: %w", path, err)
			}
			if err := st.AddSignatures(cmd.Context(), path, sig); err != nil {
				return fmt.Errorf("sign %s: %w", path, err)
			}
		}
		return nil
	}
	return c
}
