package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/casefold/matterflow/internal/model"
)

var (
	runJurisdiction string
	runParties      []string
	runFacts        []string
	runIssues       []string
	runAutoApprove  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive a document-production session end to end",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		intake := map[string]string{
			"jurisdiction": runJurisdiction,
			"parties":      strings.Join(runParties, ", "),
			"facts":        strings.Join(runFacts, "\n"),
			"issues":       strings.Join(runIssues, ", "),
		}

		id, err := env.Orch.StartSession(ctx, intake)
		if err != nil {
			return err
		}

		for _, phase := range []model.Phase{
			model.PhaseIntake, model.PhaseOutline, model.PhaseResearch,
			model.PhaseDrafting, model.PhaseReview, model.PhaseEditing,
		} {
			if err := env.Orch.DispatchPhaseTasks(ctx, id); err != nil {
				return eris.Wrapf(err, "dispatch %s", phase)
			}

			s, err := env.Orch.Session(id)
			if err != nil {
				return err
			}
			if s.State == model.SessionErrored {
				return eris.Errorf("session errored in phase %s", phase)
			}

			if needsApproval(phase) {
				if !runAutoApprove {
					zap.L().Info("phase awaits approval, stopping here",
						zap.String("session_id", id),
						zap.String("phase", string(phase)),
					)
					return printSession(env, id)
				}
				if err := env.Orch.RequestApproval(id, phase); err != nil {
					return err
				}
				if err := env.Orch.GrantApproval(id, phase); err != nil {
					return err
				}
				zap.L().Info("phase auto-approved", zap.String("phase", string(phase)))
			}

			if err := env.Orch.AdvancePhase(ctx, id, phase); err != nil {
				return eris.Wrapf(err, "advance %s", phase)
			}
		}

		zap.L().Info("session complete", zap.String("session_id", id))
		return printSession(env, id)
	},
}

func needsApproval(phase model.Phase) bool {
	for _, n := range cfg.Workflow.ApprovalPhases {
		if model.Phase(n) == phase {
			return true
		}
	}
	return false
}

func printSession(env *appEnv, id string) error {
	s, err := env.Orch.Session(id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func init() {
	runCmd.Flags().StringVar(&runJurisdiction, "jurisdiction", "", "matter jurisdiction, e.g. US-CA (required)")
	runCmd.Flags().StringArrayVar(&runParties, "party", nil, "party name (repeatable)")
	runCmd.Flags().StringArrayVar(&runFacts, "fact", nil, "intake fact sentence (repeatable)")
	runCmd.Flags().StringArrayVar(&runIssues, "issue", nil, "legal issue to research (repeatable)")
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "grant approval gates without stopping")
	_ = runCmd.MarkFlagRequired("jurisdiction")
	rootCmd.AddCommand(runCmd)
}
