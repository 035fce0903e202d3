package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/odvcencio/bedrock/pkg/repo"
)

const version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bedrock:", err)
		os.Exit(1)
	}
}

// cli carries the settings shared by every subcommand. Flags are bound into
// v so each one can also be set from a BEDROCK_* environment variable.
type cli struct {
	v   *viper.Viper
	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New(), log: logrus.New()}

	root := &cobra.Command{
		Use:           "bedrock",
		Short:         "Content-addressed store for filesystem trees",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setupLogging(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.String("repo", ".", "repository path")
	flags.String("log-level", "warn", "log level: trace, debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	cobra.CheckErr(c.v.BindPFlags(flags))
	c.v.SetEnvPrefix("BEDROCK")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root.AddCommand(newVersionCmd())
	root.AddCommand(c.newInitCmd())
	root.AddCommand(c.newCommitCmd())
	root.AddCommand(c.newPackCmd())
	root.AddCommand(c.newFsckCmd())
	root.AddCommand(c.newLsObjectsCmd())
	root.AddCommand(c.newDiffCmd())
	root.AddCommand(c.newRefsCmd())
	root.AddCommand(c.newReflogCmd())
	return root
}

func (c *cli) setupLogging(w io.Writer) error {
	level, err := logrus.ParseLevel(c.v.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	c.log.SetLevel(level)
	c.log.SetOutput(w)

	switch strings.ToLower(c.v.GetString("log-format")) {
	case "text":
		c.log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:          true,
			DisableLevelTruncation: true,
			PadLevelText:           true,
			QuoteEmptyFields:       true,
		})
	case "json":
		c.log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", c.v.GetString("log-format"))
	}
	return nil
}

// repoPath returns the repository named by --repo or BEDROCK_REPO.
func (c *cli) repoPath() string {
	if p := c.v.GetString("repo"); p != "" {
		return p
	}
	return "."
}

func (c *cli) openRepo() (*repo.Repo, error) {
	r, err := repo.Open(c.repoPath())
	if err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{
		"path":     r.Path,
		"mode":     r.Config.Core.Mode,
		"checksum": r.Config.Core.Checksum,
	}).Debug("opened repository")
	return r, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "bedrock", version)
		},
	}
}
