package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/odvcencio/bedrock/pkg/object"
	"github.com/odvcencio/bedrock/pkg/repo"
)

func (c *cli) newCommitCmd() *cobra.Command {
	var (
		opts   repo.CommitOptions
		parent string
		meta   []string
	)

	cmd := &cobra.Command{
		Use:   "commit <dir>",
		Short: "Record a directory tree as a commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.openRepo()
			if err != nil {
				return err
			}

			if parent != "" {
				h, err := r.ResolveCommit(parent)
				if err != nil {
					return fmt.Errorf("parent: %w", err)
				}
				opts.Parent = h
			}
			opts.Metadata, err = parseMetadata(meta)
			if err != nil {
				return err
			}

			res, err := r.CommitDir(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			c.log.WithFields(logrus.Fields{
				"commit": res.Commit,
				"files":  res.Files,
				"dirs":   res.Dirs,
			}).Info("committed directory")

			out := cmd.OutOrStdout()
			if opts.Branch != "" {
				fmt.Fprintf(out, "[%s %s] %s\n", opts.Branch, shortHash(res.Commit), opts.Subject)
			}
			fmt.Fprintln(out, res.Commit)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Subject, "subject", "s", "", "commit subject")
	cmd.Flags().StringVar(&opts.Body, "body", "", "commit body")
	cmd.Flags().StringVar(&parent, "parent", "", "parent commit checksum or ref")
	cmd.Flags().StringVarP(&opts.Branch, "branch", "b", "", "branch to advance to the new commit")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "metadata entry KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&opts.Canonical, "canonical", false, "drop ownership and xattrs, normalize permissions")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// parseMetadata turns KEY=VALUE pairs into a commit metadata dictionary.
func parseMetadata(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q, want KEY=VALUE", p)
		}
		meta[k] = v
	}
	return meta, nil
}

func shortHash(h object.Hash) string {
	if len(h) > 8 {
		return string(h[:8])
	}
	return string(h)
}
