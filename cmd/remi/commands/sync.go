package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lsj5031/remi/internal/ingest"
)

var syncAgents []string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Ingest new sessions from one or more agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		agents := syncAgents
		if len(agents) == 0 {
			agents = cfg.Agents
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
		// A nil *embedding.Embedder converted directly to the
		// ingest.Embedder interface would be a non-nil interface holding
		// a nil pointer; only assign it in when it's genuinely present.
		var embedder ingest.Embedder
		if emb != nil {
			defer emb.Close()
			embedder = emb
		}

		for _, name := range agents {
			a, err := newAdapter(name)
			if err != nil {
				return err
			}
			n, err := ingest.Sync(ctx, a, st, embedder, func(p ingest.Progress) {
				if p.Phase == ingest.PhaseDone {
					fmt.Printf("%s: synced %d record(s)\n", a.Kind(), p.TotalRecords)
				}
			})
			if err != nil {
				return fmt.Errorf("sync: agent %s: %w", name, err)
			}
			if n == 0 {
				fmt.Printf("%s: nothing new\n", a.Kind())
			}
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().StringSliceVar(&syncAgents, "agent", nil, "agent(s) to sync (repeatable); defaults to the configured agent list")
}
