package main

import (
	"fmt"

	"proz/internal/appversion"

	"github.com/spf13/cobra"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configFile string
	baseURL    string
	logLevel   string
}

// newRootCmd creates the root proz command with all subcommands attached.
func newRootCmd() *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:           "proz",
		Short:         "Assign professionals to work requests",
		Long:          "proz ranks professionals for a work request and assigns one.\nAssignments made while the backend is unreachable are queued and replayed later.",
		Version:       fmt.Sprintf("proz %s", appversion.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.PersistentFlags().StringVar(&g.configFile, "config", "", "config file (default $PROZ_HOME/config.toml or config.yaml)")
	cmd.PersistentFlags().StringVar(&g.baseURL, "base-url", "", "backend base URL (overrides config and PROZ_BASE_URL)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newRankCmd(&g),
		newAssignCmd(&g),
		newAssignTopCmd(&g),
		newPendingCmd(&g),
		newReconcileCmd(&g),
		newStatusCmd(&g),
		newLogsCmd(&g),
		newLoginCmd(&g),
		newLogoutCmd(&g),
		newVersionCmd(),
	)

	return cmd
}

// newVersionCmd creates the "proz version" subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the proz version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "proz %s\n", appversion.Long())
			return nil
		},
	}
}
