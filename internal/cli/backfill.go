package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nbp-rate-archive/internal/app"
	"nbp-rate-archive/internal/table"
)

var (
	backfillFrom string
	backfillTo   string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Backfill a historical date range, ignoring the completion marker",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.BackfillOptions{}

		if backfillFrom != "" {
			from, err := time.Parse(table.DateLayout, backfillFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if backfillTo != "" {
			to, err := time.Parse(table.DateLayout, backfillTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Start date (YYYY-MM-DD, inclusive; defaults to configured start year)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "End date (YYYY-MM-DD, inclusive; defaults to today)")
}
