package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func newAggregateCmd() *cobra.Command {
	var (
		siteID    int64
		date      string
		startDate string
		endDate   string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Roll hourly rows up into daily aggregates",
		Long: `Recomputes daily performance rows from stored hourly rows for one
date (--date) or an inclusive date range (--start/--end). Existing
daily rows are left alone unless --force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			if date != "" {
				d, err := time.Parse(dateLayout, date)
				if err != nil {
					return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", date)
				}
				res := a.Aggregator.AggregateDay(cmd.Context(), siteID, d, force)
				return printJSON(cmd, res)
			}

			if startDate == "" || endDate == "" {
				return fmt.Errorf("either --date or both --start and --end are required")
			}
			start, err := time.Parse(dateLayout, startDate)
			if err != nil {
				return fmt.Errorf("invalid --start %q, want YYYY-MM-DD", startDate)
			}
			end, err := time.Parse(dateLayout, endDate)
			if err != nil {
				return fmt.Errorf("invalid --end %q, want YYYY-MM-DD", endDate)
			}
			summary, err := a.Aggregator.AggregateRange(cmd.Context(), siteID, start, end, force)
			if err != nil {
				return fmt.Errorf("aggregate: %w", err)
			}
			return printJSON(cmd, summary)
		},
	}

	cmd.Flags().Int64Var(&siteID, "site", 0, "site ID to aggregate (required)")
	cmd.Flags().StringVar(&date, "date", "", "single date to aggregate (YYYY-MM-DD)")
	cmd.Flags().StringVar(&startDate, "start", "", "range start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end", "", "range end date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&force, "force", false, "recompute even when daily rows already exist")
	_ = cmd.MarkFlagRequired("site")

	return cmd
}
