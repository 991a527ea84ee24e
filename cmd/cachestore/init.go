// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"github.com/spf13/cobra"
)

func newInitCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "init",
		Short:                 "create or verify the cache's nix-cache-info header",
		DisableFlagsInUseLine: true,
		Args:                  cobra.NoArgs,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		st, err := g.newStore()
		if err != nil {
			return err
		}
		defer st.Close()
		return st.Init(cmd.Context())
	}
	return c
}
