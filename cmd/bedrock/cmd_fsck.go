package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/bedrock/pkg/fsck"
	"github.com/odvcencio/bedrock/pkg/repo"
)

func (c *cli) newFsckCmd() *cobra.Command {
	var opts fsck.Options

	cmd := &cobra.Command{
		Use:   "fsck [repo]",
		Short: "Check the repository for consistency",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				r   *repo.Repo
				err error
			)
			if len(args) == 1 {
				r, err = repo.Open(args[0])
			} else {
				r, err = c.openRepo()
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			opts.Out = out
			opts.Logger = c.log
			report, err := fsck.New(r.Store, opts).Run(cmd.Context())
			if report != nil && !opts.Quiet {
				for _, name := range report.Deleted {
					fmt.Fprintf(out, "deleted corrupted object %s\n", name)
				}
			}
			if err != nil {
				return err
			}

			if !opts.Quiet {
				fmt.Fprintf(
					out,
					"ok: checked %d object(s) reachable from %d commit(s), %d pack file(s)\n",
					report.Checked,
					report.Commits,
					report.Packs,
				)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "only print errors")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "remove corrupted loose objects")
	cmd.Flags().BoolVar(&opts.KeepGoing, "keep-going", false, "continue past corrupted objects")
	return cmd
}
