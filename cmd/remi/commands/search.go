package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lsj5031/remi/internal/search"
)

var searchLimit int
var searchSessions bool

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search session content with hybrid lexical/recency/semantic ranking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		emb, err := openEmbedder(cfg)
		if err != nil {
			return err
		}
		if emb != nil {
			defer emb.Close()
		}

		var engine *search.Engine
		if emb != nil {
			engine = search.New(st, emb)
		} else {
			engine = search.New(st, nil)
		}

		if searchSessions {
			hits, err := engine.SearchSessions(ctx, args[0], searchLimit)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			for _, h := range hits {
				fmt.Printf("%-8.4f  %s  %s\n", h.Score, h.SessionID, h.Top.Content)
			}
			return nil
		}

		hits, err := engine.SearchMessages(ctx, args[0], searchLimit)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		for _, h := range hits {
			fmt.Printf("%-8.4f  %s  %s\n", h.Score, h.SessionID, h.Content)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results")
	searchCmd.Flags().BoolVar(&searchSessions, "sessions", false, "group and rank by session instead of individual message")
}
