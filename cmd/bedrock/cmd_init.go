package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/bedrock/pkg/repo"
)

func (c *cli) newInitCmd() *cobra.Command {
	var opts repo.InitOptions

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.repoPath()
			if len(args) > 0 {
				path = args[0]
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}

			r, err := repo.Init(abs, opts)
			if err != nil {
				return err
			}
			c.log.WithField("path", r.Path).Info("initialized repository")

			fmt.Fprintf(cmd.OutOrStdout(), "initialized empty %s repository in %s (checksum %s)\n",
				r.Config.Core.Mode, r.Path, r.Config.Core.Checksum)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Mode, "mode", "bare", "repository mode: bare or archive")
	cmd.Flags().StringVar(&opts.Checksum, "checksum", "sha256", "checksum algorithm: sha256, blake2b-256 or blake3")
	cmd.Flags().StringVar(&opts.Compression, "compression", "zstd", "archive content codec: zstd, lz4 or none")
	return cmd
}
