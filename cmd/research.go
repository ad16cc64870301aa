package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/casefold/matterflow/internal/model"
)

var (
	researchQuery        string
	researchJurisdiction string
	researchIssues       []string
)

var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Run an ad-hoc query through the research provider chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("research"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		g := newGraph(st)
		executor := initExecutor(g)

		q := model.ResearchQuery{
			Text:         strings.TrimSpace(researchQuery),
			Jurisdiction: researchJurisdiction,
			LegalIssues:  researchIssues,
		}

		result, err := executor.Execute(ctx, q)
		if err != nil {
			return err
		}

		zap.L().Info("research complete",
			zap.String("fingerprint", result.Fingerprint),
			zap.Int("citations", len(result.Citations)),
			zap.String("source_provider", result.SourceProvider),
			zap.Bool("stale", result.Stale),
			zap.Bool("insufficient_coverage", result.InsufficientCoverage),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	researchCmd.Flags().StringVar(&researchQuery, "query", "", "query text (required)")
	researchCmd.Flags().StringVar(&researchJurisdiction, "jurisdiction", "", "jurisdiction filter, e.g. US-CA")
	researchCmd.Flags().StringArrayVar(&researchIssues, "issue", nil, "legal issue (repeatable)")
	_ = researchCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(researchCmd)
}
