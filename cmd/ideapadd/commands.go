package main

import (
	"github.com/spf13/cobra"

	"github.com/dokzlo13/ideapadd/internal/config"
)

const defaultConfigPath = "config.yaml"

// cli carries global flags and the loaded configuration between commands.
type cli struct {
	configPath string
	cfg        *config.Config
}

func buildRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "ideapadd",
		Short: "Manage Lenovo IdeaPad battery and performance firmware settings",
		Long: `ideapadd reads and writes the IdeaPad firmware settings exposed through
the ideapad_acpi sysfs attribute and the acpi_call kernel module:

  conservation_mode  off | on
  rapid_charge       off | on
  performance_mode   intelligent_cooling | extreme_performance | battery_saving

Run "ideapadd serve" to keep the chosen settings applied, switch profiles on
AC/battery changes and expose an HTTP API.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", defaultConfigPath, "Path to configuration file")

	rootCmd.AddCommand(
		buildStatusCmd(c),
		buildSetCmd(c),
		buildProfileCmd(c),
		buildHistoryCmd(c),
		buildServeCmd(c),
	)
	return rootCmd
}

func buildStatusCmd(c *cli) *cobra.Command {
	var asJSON, cached bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Read and show the current firmware settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, c, asJSON, cached)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().BoolVar(&cached, "cached", false, "Show the last state stored by the daemon instead of reading the hardware")
	return cmd
}

func buildSetCmd(c *cli) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "set SETTING=VALUE...",
		Short: "Change firmware settings",
		Long: `Change one or more firmware settings. Settings that already have the
requested value are not written, and settings whose current state cannot be
read are never written.

Example:
  ideapadd set conservation_mode=on performance_mode=battery_saving`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(cmd, c, args, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the commands that would run without executing them")
	return cmd
}

func buildProfileCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "List and apply profiles from the Lua script",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List profiles",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runProfileList(cmd, c)
			},
		},
		&cobra.Command{
			Use:   "apply NAME",
			Short: "Apply a profile",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runProfileApply(cmd, c, args[0])
			},
		},
	)
	return cmd
}

func buildHistoryCmd(c *cli) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent writes from the audit ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, c, limit, asJSON)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func buildServeCmd(c *cli) *cobra.Command {
	var resetState bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(c, resetState)
		},
	}
	cmd.Flags().BoolVar(&resetState, "reset-state", false, "Clear stored desired state on startup")
	return cmd
}
