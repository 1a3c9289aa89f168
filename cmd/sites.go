package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "Manage registered sites",
	}
	cmd.AddCommand(newSitesAddCmd())
	cmd.AddCommand(newSitesListCmd())
	return cmd
}

func newSitesAddCmd() *cobra.Command {
	var (
		property string
		label    string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a property for syncing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			id, err := a.Sites.CreateSite(cmd.Context(), property, label)
			if err != nil {
				return err
			}
			a.Logger.Info("site registered", zap.Int64("site_id", id), zap.String("property", property))
			return printJSON(cmd, map[string]int64{"site_id": id})
		},
	}

	cmd.Flags().StringVar(&property, "property", "", "property identifier, e.g. sc-domain:example.com (required)")
	cmd.Flags().StringVar(&label, "label", "", "human-readable label")
	_ = cmd.MarkFlagRequired("property")

	return cmd
}

func newSitesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered sites",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sites, err := a.Sites.ListSites(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, sites)
		},
	}
}
