package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCleanupCmd() *cobra.Command {
	var keepDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old completed sync progress rows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			keepFor := a.Config.Retention()
			if keepDays > 0 {
				keepFor = time.Duration(keepDays) * 24 * time.Hour
			}
			removed, err := a.Progress.CleanupOldProgress(cmd.Context(), keepFor)
			if err != nil {
				return err
			}
			a.Logger.Info("progress cleanup done", zap.Int64("removed", removed))
			return printJSON(cmd, map[string]int64{"removed": removed})
		},
	}

	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "retention window in days (default from config)")

	return cmd
}
