package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lsj5031/remi/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the Remi data directories and an empty store",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := config.GetPaths()
		if err := paths.EnsurePaths(); err != nil {
			return fmt.Errorf("init: ensure paths: %w", err)
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		fmt.Printf("initialized Remi store at %s\n", dbPath())
		return nil
	},
}
