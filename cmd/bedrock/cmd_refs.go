package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

func (c *cli) newRefsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refs [prefix]",
		Short: "List refs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.openRepo()
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			refs, err := r.ListRefs(prefix)
			if err != nil {
				return err
			}

			names := make([]string, 0, len(refs))
			for name := range refs {
				names = append(names, name)
			}
			sort.Strings(names)
			out := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintf(out, "%s %s\n", refs[name], name)
			}
			return nil
		},
	}
}

func (c *cli) newReflogCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "reflog <ref>",
		Short: "Show ref update history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.openRepo()
			if err != nil {
				return err
			}
			entries, err := r.ReadReflog(args[0], limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				ts := time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339)
				fmt.Fprintf(out, "%s %s %s %s\n", shortHash(e.NewHash), ts, e.Ref, e.Reason)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")
	return cmd
}
