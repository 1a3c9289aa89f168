package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seolens/searchsync/internal/search"
	"github.com/seolens/searchsync/internal/syncer"
)

func newSyncCmd() *cobra.Command {
	var (
		siteID   int64
		syncType string
		days     int
		mode     string
		resume   bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync job to completion",
		Long: `Fetches search performance rows day by day from the upstream API
and persists them. Interrupt the job with Ctrl-C and rerun with
--resume to continue from the last completed day.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			st, err := search.ParseSyncType(syncType)
			if err != nil {
				return err
			}
			m := search.UpsertMode(mode)
			if !m.Valid() {
				return fmt.Errorf("invalid mode %q, want skip or overwrite", mode)
			}
			if days <= 0 {
				days = a.Config.Sync.DefaultDays
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stats, err := a.Syncer.Sync(ctx, syncer.Options{
				SiteID:    siteID,
				TotalDays: days,
				SyncType:  st,
				Mode:      m,
				Resume:    resume,
			})
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}

			a.Logger.Info("sync finished",
				zap.Int64("progress_id", stats.ProgressID),
				zap.Int("days_attempted", stats.DaysAttempted),
				zap.Int("days_failed", stats.DaysFailed),
				zap.Int64("records_synced", stats.RecordsSynced),
			)
			return printJSON(cmd, stats)
		},
	}

	cmd.Flags().Int64Var(&siteID, "site", 0, "site ID to sync (required)")
	cmd.Flags().StringVar(&syncType, "type", "daily", "sync type: daily or hourly")
	cmd.Flags().IntVar(&days, "days", 0, "days back from today to cover (default from config)")
	cmd.Flags().StringVar(&mode, "mode", "skip", "upsert mode: skip or overwrite")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume an incomplete sync instead of starting fresh")
	_ = cmd.MarkFlagRequired("site")

	return cmd
}

func printJSON(cmd *cobra.Command, payload any) error {
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	cmd.Println(string(out))
	return nil
}
