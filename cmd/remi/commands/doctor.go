package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run the store's integrity check and report the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := st.IntegrityCheck(ctx)
		if err != nil {
			return fmt.Errorf("doctor: %w", err)
		}
		fmt.Println(result)
		return nil
	},
}
