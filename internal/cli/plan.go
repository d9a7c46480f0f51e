package cli

import (
	"github.com/spf13/cobra"

	"github.com/Ashar20/lifi-rotator/internal/app"
)

var (
	planMode  string
	planLimit int
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Scan positions and print ranked plans without executing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Plan(cmd.Context(), app.PlanOptions{
			Mode:  planMode,
			Limit: planLimit,
		})
	},
}

func init() {
	planCmd.Flags().StringVar(&planMode, "mode", "", "Override engine mode (rotate or arbitrage)")
	planCmd.Flags().IntVar(&planLimit, "limit", 10, "Maximum plans to print")
}
