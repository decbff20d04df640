package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lsj5031/remi/internal/archive"
	"github.com/lsj5031/remi/internal/config"
)

var (
	archiveOlderThanDays int
	archiveKeepLatest    int
	archiveExecute       bool
	archiveDeleteSource  bool
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Plan, run, and restore cold-storage archive runs",
}

var archivePlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Select sessions eligible for archival and record a run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		olderThanDays := archiveOlderThanDays
		if olderThanDays == 0 {
			olderThanDays = cfg.Archive.OlderThanDays
		}
		keepLatest := archiveKeepLatest
		if !cmd.Flags().Changed("keep-latest") {
			keepLatest = cfg.Archive.KeepLatest
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		eng := archive.New(st, config.GetPaths().ArchiveDir())
		runID, err := eng.Plan(ctx, time.Duration(olderThanDays)*24*time.Hour, keepLatest)
		if err != nil {
			return fmt.Errorf("archive plan: %w", err)
		}
		fmt.Println(runID)
		return nil
	},
}

var archiveRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Execute (or dry-run) a previously planned archive run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		eng := archive.New(st, config.GetPaths().ArchiveDir())
		msg, err := eng.Run(ctx, args[0], archiveExecute, archiveDeleteSource)
		if err != nil {
			return fmt.Errorf("archive run: %w", err)
		}
		fmt.Println(msg)
		return nil
	},
}

var archiveRestoreCmd = &cobra.Command{
	Use:   "restore <bundle-path>",
	Short: "Replay an archived bundle back into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		eng := archive.New(st, config.GetPaths().ArchiveDir())
		msg, err := eng.Restore(ctx, args[0])
		if err != nil {
			return fmt.Errorf("archive restore: %w", err)
		}
		fmt.Println(msg)
		return nil
	},
}

func init() {
	archivePlanCmd.Flags().IntVar(&archiveOlderThanDays, "older-than-days", 0, "archive sessions last updated more than this many days ago (defaults to config)")
	archivePlanCmd.Flags().IntVar(&archiveKeepLatest, "keep-latest", 0, "always keep this many most-recent sessions per agent (defaults to config)")

	archiveRunCmd.Flags().BoolVar(&archiveExecute, "execute", false, "materialize the bundle instead of reporting a dry-run count")
	archiveRunCmd.Flags().BoolVar(&archiveDeleteSource, "delete-source", false, "delete archived sessions from the store after a verified write (requires --execute)")

	archiveCmd.AddCommand(archivePlanCmd)
	archiveCmd.AddCommand(archiveRunCmd)
	archiveCmd.AddCommand(archiveRestoreCmd)
}
