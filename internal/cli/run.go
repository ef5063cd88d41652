package cli

import (
	"github.com/spf13/cobra"
)

var runForce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one ingestion pass: migrate, backfill-or-skip, catch-up",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), runForce)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force-backfill", false, "Rerun the full backfill even when the completion marker exists")
}
