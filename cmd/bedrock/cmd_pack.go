package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/odvcencio/bedrock/pkg/object"
)

func (c *cli) newPackCmd() *cobra.Command {
	var opts object.PackOptions

	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Pack loose objects into a pack file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.openRepo()
			if err != nil {
				return err
			}

			summary, err := r.Pack(cmd.Context(), opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if summary.PackedObjects == 0 {
				fmt.Fprintln(out, "nothing to pack")
				return nil
			}
			c.log.WithFields(logrus.Fields{
				"pack":   summary.Pack,
				"count":  summary.PackedObjects,
				"pruned": summary.PrunedObjects,
			}).Info("wrote pack")

			fmt.Fprintf(
				out,
				"packed %d loose object(s) into %s (%s)\n",
				summary.PackedObjects,
				summary.PackFile,
				summary.IndexFile,
			)
			if opts.Prune {
				fmt.Fprintf(out, "pruned %d loose object(s)\n", summary.PrunedObjects)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Prune, "prune", false, "remove loose objects once packed")
	cmd.Flags().BoolVar(&opts.Compress, "compress", false, "zstd-compress pack entries")
	return cmd
}
