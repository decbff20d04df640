package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionsListLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List or show ingested sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recently updated sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sessions, err := st.ListSessions(ctx, sessionsListLimit)
		if err != nil {
			return fmt.Errorf("sessions list: %w", err)
		}
		for _, s := range sessions {
			fmt.Printf("%s  %-8s  %s  %s\n", s.ID, s.Agent, s.UpdatedAt.Format("2006-01-02 15:04"), s.Title)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show every message in one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sess, err := st.GetSession(ctx, args[0])
		if err != nil {
			return fmt.Errorf("sessions show: %w", err)
		}
		fmt.Printf("session %s (%s) %s\n\n", sess.ID, sess.Agent, sess.Title)

		msgs, err := st.GetSessionMessages(ctx, args[0])
		if err != nil {
			return fmt.Errorf("sessions show: %w", err)
		}
		for _, m := range msgs {
			fmt.Printf("[%s] %s: %s\n", m.Ts.Format("15:04:05"), m.Role, m.Content)
		}
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().IntVar(&sessionsListLimit, "limit", 20, "maximum sessions to list")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
}
