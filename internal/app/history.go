package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Ashar20/lifi-rotator/internal/storage"
)

// History prints the recorded executions, most recent last, with the
// cumulative realized profit as a footer. With Clear set it wipes the
// ledger instead.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot read execution history")
	}
	defer closeStore()

	if opts.Clear {
		if err := store.ClearExecutions(ctx); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "execution history cleared")
		return nil
	}

	limit := opts.Limit
	if limit <= 0 || limit > storage.HistoryLimit {
		limit = storage.HistoryLimit
	}
	records, err := store.ListExecutions(ctx, limit)
	if err != nil {
		return err
	}
	slices.Reverse(records)
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no executions recorded")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tKind\tToken\tFrom\tTo\tAmount$\tNet$\tStatus\tTx\tError")
	for _, record := range records {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			record.ExecutedAt.UTC().Format(time.RFC3339),
			record.Kind,
			record.TokenSymbol,
			record.FromChainID,
			record.ToChainID,
			record.AmountUSD.StringFixed(2),
			record.NetBenefitUSD.StringFixed(2),
			record.Status,
			record.TxHash,
			sanitizeInline(record.Error),
		)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	profit, err := store.CumulativeProfit(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\ncumulative realized profit: $%s\n", profit.StringFixed(2))
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
