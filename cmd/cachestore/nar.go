// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"os"

	"github.com/spf13/cobra"

	"lattice.dev/cachestore/storepath"
)

func newNARCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "nar STOREPATH",
		Short:                 "write a store path's decompressed NAR to stdout",
		DisableFlagsInUseLine: true,
		Args:                  cobra.ExactArgs(1),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	outputPath := c.Flags().StringP("output", "o", "", "`file` to write to (default is stdout)")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		path, err := storepath.ParsePath(args[0])
		if err != nil {
			return err
		}
		st, err := g.newStore()
		if err != nil {
			return err
		}
		defer st.Close()

		out := os.Stdout
		if *outputPath != "" {
			out, err = os.Create(*outputPath)
			if err != nil {
				return err
			}
			defer out.Close()
		}
		return st.NarFromPath(cmd.Context(), path, out)
	}
	return c
}
