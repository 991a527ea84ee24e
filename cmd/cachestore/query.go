// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lattice.dev/cachestore/storepath"
)

func newQueryCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "query STOREPATH",
		Short:                 "print the narinfo record for a store path",
		DisableFlagsInUseLine: true,
		Args:                  cobra.ExactArgs(1),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
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

		info, err := st.QueryPathInfo(cmd.Context(), path)
		if err != nil {
			return err
		}
		if info == nil {
			fmt.Fprintf(os.Stderr, "%s: not in cache\n", path)
			os.Exit(1)
		}
		data, err := info.MarshalText()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}
	return c
}
