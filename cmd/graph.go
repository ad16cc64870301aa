package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/casefold/matterflow/internal/model"
)

var (
	graphEntityType   string
	graphJurisdiction string
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect and maintain the knowledge graph",
}

var graphEntitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List graph entities by type",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("graph"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		g := newGraph(st)
		entities, err := g.QueryByType(ctx, model.EntityType(graphEntityType), graphJurisdiction)
		if err != nil {
			return err
		}

		zap.L().Info("entities listed",
			zap.String("type", graphEntityType),
			zap.String("jurisdiction", graphJurisdiction),
			zap.Int("count", len(entities)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entities)
	},
}

var graphDecayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Apply recency decay to entities past their validity window",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("graph"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		g := newGraph(st)
		n, err := g.DecayConfidence(ctx, time.Now())
		if err != nil {
			return err
		}

		zap.L().Info("decay pass complete", zap.Int("entities_decayed", n))
		return nil
	},
}

var graphSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired research cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("graph"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.DeleteExpiredCitations(ctx, time.Now())
		if err != nil {
			return err
		}

		zap.L().Info("cache sweep complete", zap.Int("entries_deleted", n))
		return nil
	},
}

func init() {
	graphEntitiesCmd.Flags().StringVar(&graphEntityType, "type", "fact", "entity type: party, fact, issue, citation")
	graphEntitiesCmd.Flags().StringVar(&graphJurisdiction, "jurisdiction", "", "jurisdiction filter")
	graphCmd.AddCommand(graphEntitiesCmd)
	graphCmd.AddCommand(graphDecayCmd)
	graphCmd.AddCommand(graphSweepCmd)
	rootCmd.AddCommand(graphCmd)
}
