package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/casefold/matterflow/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "matterflow",
	Short: "Legal document production orchestrator",
	Long:  "Drives matters from intake through outline, research, drafting, review, and editing: agents write to a shared knowledge graph, authorities come from public case-law APIs, and phase gates hold for human approval.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
