package cli

import (
	"github.com/spf13/cobra"

	"github.com/Ashar20/lifi-rotator/internal/app"
)

var (
	historyLimit int
	historyClear bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear the execution ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().History(cmd.Context(), app.HistoryOptions{
			Limit: historyLimit,
			Clear: historyClear,
		})
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "Maximum records to show (defaults to the full ledger)")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Clear the ledger and reset cumulative profit")
}
