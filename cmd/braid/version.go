package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kode4food/braid"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of braid",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n",
				braid.Name, braid.Version)
		},
	}
}
