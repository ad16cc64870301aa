package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/casefold/matterflow/internal/claims"
	"github.com/casefold/matterflow/internal/model"
)

var causesJurisdiction string

var causesCmd = &cobra.Command{
	Use:   "causes",
	Short: "Detect causes of action from the facts in the knowledge graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("causes"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		g := newGraph(st)

		catalog, err := initCatalog(ctx)
		if err != nil {
			return err
		}
		engine, err := claims.NewEngine(catalog, claims.Options{MinConfidence: cfg.Claims.MinConfidence})
		if err != nil {
			return err
		}

		facts, err := g.QueryByType(ctx, model.EntityTypeFact, causesJurisdiction)
		if err != nil {
			return err
		}
		causes, err := engine.DetectCauses(facts, causesJurisdiction)
		if err != nil {
			return err
		}

		zap.L().Info("cause detection complete",
			zap.String("jurisdiction", causesJurisdiction),
			zap.Int("facts", len(facts)),
			zap.Int("causes", len(causes)),
		)

		type causeReport struct {
			Cause    model.CauseOfAction    `json:"cause"`
			Strength model.StrengthAnalysis `json:"strength"`
		}
		out := make([]causeReport, 0, len(causes))
		for _, c := range causes {
			out = append(out, causeReport{Cause: c, Strength: claims.AnalyzeStrength(c)})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	causesCmd.Flags().StringVar(&causesJurisdiction, "jurisdiction", "", "matter jurisdiction, e.g. US-CA (required)")
	_ = causesCmd.MarkFlagRequired("jurisdiction")
	rootCmd.AddCommand(causesCmd)
}
