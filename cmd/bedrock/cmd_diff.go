package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/bedrock/pkg/diff"
	"github.com/odvcencio/bedrock/pkg/object"
)

func (c *cli) newDiffCmd() *cobra.Command {
	var patch bool

	cmd := &cobra.Command{
		Use:   "diff [from] <to>",
		Short: "Show changed paths between two commits",
		Long:  "With one revision, compare it against its parent commit.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.openRepo()
			if err != nil {
				return err
			}

			to, err := r.ResolveCommit(args[len(args)-1])
			if err != nil {
				return err
			}
			var from object.Hash
			if len(args) == 2 {
				if from, err = r.ResolveCommit(args[0]); err != nil {
					return err
				}
			} else {
				commit, err := r.Store.ReadCommit(to)
				if err != nil {
					return err
				}
				from = commit.Parent
			}

			changes, err := diff.Commits(cmd.Context(), r.Store, from, to)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, diff.FormatSummary(changes))
			if patch {
				return diff.WritePatch(out, r.Store, changes)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&patch, "patch", "p", false, "also show line changes of modified files")
	return cmd
}
