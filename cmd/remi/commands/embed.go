package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lsj5031/remi/internal/ingest"
)

var embedRebuild bool

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Manage message embeddings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !embedRebuild {
			return fmt.Errorf("embed: pass --rebuild to re-embed every stored message")
		}

		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		emb, err := openEmbedder(cfg)
		if err != nil {
			return err
		}
		if emb == nil {
			return fmt.Errorf("embed: no embedding model configured (set embedding.model_dir in config)")
		}
		defer emb.Close()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := ingest.RebuildEmbeddings(ctx, st, emb)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		fmt.Printf("rebuilt embeddings for %d message(s)\n", n)
		return nil
	},
}

func init() {
	embedCmd.Flags().BoolVar(&embedRebuild, "rebuild", false, "re-embed every stored message")
}
