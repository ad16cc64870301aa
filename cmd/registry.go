package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/casefold/matterflow/internal/registry"
	"github.com/casefold/matterflow/pkg/notion"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Validate the cause-of-action element registry in Notion",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("registry"); err != nil {
			return err
		}
		ctx := cmd.Context()

		notionClient := notion.NewClient(cfg.Notion.Token)
		catalog, err := registry.LoadCauseTemplates(ctx, notionClient, cfg.Notion.ElementDB)
		if err != nil {
			return err
		}

		elements := 0
		for _, tpl := range catalog.Templates {
			elements += len(tpl.Elements)
		}
		zap.L().Info("registry valid",
			zap.Int("templates", len(catalog.Templates)),
			zap.Int("elements", elements),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(registryCmd)
}
