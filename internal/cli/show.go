package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nbp-rate-archive/internal/app"
	"nbp-rate-archive/internal/table"
)

var showDate string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display one archived date's quote table",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ShowOptions{}

		if showDate != "" {
			day, err := time.Parse(table.DateLayout, showDate)
			if err != nil {
				return fmt.Errorf("invalid --date value: %w", err)
			}
			opts.Date = &day
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showDate, "date", "", "Date to display (YYYY-MM-DD; defaults to the most recent artifact)")
}
