// Package commands implements the ledgerctl operator CLI.
package commands

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ledgerline/ledgerline/internal/app"
	"github.com/ledgerline/ledgerline/internal/buildinfo"
)

// Env supplies the collaborators commands need. Tests replace the openers
// with fakes; DefaultEnv connects to the real infrastructure.
type Env struct {
	Out          io.Writer
	LoadConfig   func() (*app.Config, error)
	OpenImporter func(ctx context.Context, cfg *app.Config) (StatementImporter, func(), error)
	OpenJobs     func(cfg *app.Config) (JobsClient, error)
}

// DefaultEnv wires commands against Postgres and the Asynq queue.
func DefaultEnv() Env {
	return Env{
		Out:          os.Stdout,
		LoadConfig:   app.LoadConfig,
		OpenImporter: openImporter,
		OpenJobs: func(cfg *app.Config) (JobsClient, error) {
			return NewJobsCLI(cfg.RedisAddr)
		},
	}
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(env Env) *cobra.Command {
	if env.Out == nil {
		env.Out = os.Stdout
	}
	if env.LoadConfig == nil {
		env.LoadConfig = app.LoadConfig
	}
	rootCmd := &cobra.Command{
		Use:     "ledgerctl",
		Short:   "Operate the Ledgerline reconciliation engine",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.SetOut(env.Out)

	rootCmd.AddCommand(newImportCommand(env))
	rootCmd.AddCommand(newJobsCommand(env))
	rootCmd.AddCommand(newRulesCommand(env))

	return rootCmd
}
