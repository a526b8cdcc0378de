package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcoot/rankdir/internal/client"
)

var (
	cfg  *Config
	api  *client.Client
	ctrl *client.Controller
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "rankdir",
		Short: "CLI tool for the rankdir leaderboard directory",
		Long: `rankdir logs in to a rankdir server and queries its account directory.

Logging in may need a second factor code and an emailed verification token.
The flow is kept in a state file so each step can be a separate command.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			snap, err := cfg.LoadState()
			if err != nil {
				return fmt.Errorf("failed to read state file: %w", err)
			}

			api = client.New(cfg.APIURL(), cfg.Timeout)
			ctrl = client.RestoreController(api, nil, snap)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: RANKDIR_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.BasePath, "base-path", cfg.BasePath, "API base path (env: RANKDIR_BASE_PATH)")
	rootCmd.PersistentFlags().StringVar(&cfg.StateFile, "state-file", cfg.StateFile, "Flow state file path (env: RANKDIR_STATE_FILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Request timeout")

	// Add subcommands
	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newSecondFactorCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newResendCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newAccountsCmd())
	rootCmd.AddCommand(newTOTPCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		NewOutput(cfg.Output, os.Stdout, os.Stderr).PrintError(err)
		os.Exit(1)
	}
}
