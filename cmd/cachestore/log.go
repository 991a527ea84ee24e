// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"lattice.dev/cachestore/storepath"
)

func newLogCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "log STOREPATH",
		Short:                 "print a store path's build log",
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

		rc, err := st.GetBuildLog(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer rc.Close()
		_, err = io.Copy(os.Stdout, rc)
		return err
	}
	return c
}
