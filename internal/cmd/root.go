package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configPath   string
	serverAddr   string
	outputFormat string
	debug        bool
)

func Execute(version string) error {
	rootCmd := &cobra.Command{
		Use:   "updater",
		Short: "OS update orchestrator",
		Long: `updater tracks, downloads, verifies and installs system updates.

Run "updater serve" to start the daemon. Every other command talks to a running daemon.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "", "Daemon address, defaults to listenAddr from config")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newSubmitCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newOfflineCmd())
	rootCmd.AddCommand(newActionCmd("start", "Start downloading an update"))
	rootCmd.AddCommand(newActionCmd("pause", "Pause a running download"))
	rootCmd.AddCommand(newActionCmd("resume", "Resume a paused download"))
	rootCmd.AddCommand(newActionCmd("install", "Install a verified update"))
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newMirrorsCmd())
	rootCmd.AddCommand(newPinCmd())
	rootCmd.AddCommand(newPerformanceCmd())
	rootCmd.AddCommand(newWatchCmd())

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd.Execute()
}
