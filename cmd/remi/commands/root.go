// Package commands provides the CLI commands for Remi.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/lsj5031/remi/internal/logging"
)

var (
	// Version information set at build time.
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	flagDir      string
	flagDB       string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "remi",
	Short: "Remi archives and searches coding-agent session history",
	Long: `Remi ingests session transcripts from multiple coding agents into a
single searchable, archivable store.

Run 'remi sync' to pull in new sessions, 'remi search' to query them, and
'remi archive' to move old sessions to cold storage.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := flagLogLevel
		if !cmd.Flags().Changed("log-level") {
			if cfg, err := loadConfig(); err == nil && cfg.LogLevel != "" {
				level = cfg.LogLevel
			}
		}
		logging.InitFromLevel(level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "project directory for config discovery (defaults to the git worktree root containing cwd, or cwd itself)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "path to the Remi SQLite store (defaults to XDG data dir)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "INFO", "log level (DEBUG|INFO|WARN|ERROR)")

	rootCmd.SetVersionTemplate("remi " + Version + " (" + BuildTime + ")\n")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(doctorCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
