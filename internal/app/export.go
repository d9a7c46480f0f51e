package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/Ashar20/lifi-rotator/internal/storage"
)

// Export renders the execution ledger as CSV and/or a profit chart PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	records, err := store.ListExecutions(ctx, storage.HistoryLimit)
	if err != nil {
		return err
	}
	// Chart series and CSV rows run oldest to newest.
	slices.Reverse(records)
	records = filterWindow(records, opts.From, opts.To)
	if len(records) == 0 {
		a.Logger.Info().Msg("no executions found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting executions")

	if opts.CSVPath != "" {
		if err := writeRecordsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeProfitPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func filterWindow(records []storage.ExecutionRecord, from, to *time.Time) []storage.ExecutionRecord {
	if from == nil && to == nil {
		return records
	}
	out := records[:0:0]
	for _, record := range records {
		if from != nil && record.ExecutedAt.Before(*from) {
			continue
		}
		if to != nil && !record.ExecutedAt.Before(*to) {
			continue
		}
		out = append(out, record)
	}
	return out
}

func downsampleRecords(records []storage.ExecutionRecord, max int) []storage.ExecutionRecord {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]storage.ExecutionRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeRecordsCSV(path string, records []storage.ExecutionRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"executed_at", "kind", "token", "from_chain", "to_chain", "amount_usd", "net_benefit_usd", "status", "tx_hash", "realized_profit_usd", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, record := range records {
		realized := ""
		if record.RealizedProfit != nil {
			realized = record.RealizedProfit.String()
		}
		row := []string{
			record.ExecutedAt.UTC().Format(time.RFC3339),
			record.Kind,
			record.TokenSymbol,
			strconv.FormatInt(record.FromChainID, 10),
			strconv.FormatInt(record.ToChainID, 10),
			record.AmountUSD.String(),
			record.NetBenefitUSD.String(),
			record.Status,
			record.TxHash,
			realized,
			record.Error,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeProfitPNG(path string, records []storage.ExecutionRecord) error {
	if len(records) < 2 {
		return errors.New("need at least two executions to render a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	net := make([]float64, len(records))
	cumulative := make([]float64, len(records))

	running := decimal.Zero
	for i, record := range records {
		x[i] = record.ExecutedAt
		net[i] = record.NetBenefitUSD.InexactFloat64()
		if record.Success && record.RealizedProfit != nil {
			running = running.Add(*record.RealizedProfit)
		}
		cumulative[i] = running.InexactFloat64()
	}

	usdFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "$%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "USD",
			ValueFormatter: usdFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Net benefit",
				XValues: x,
				YValues: net,
			},
			chart.TimeSeries{
				Name:    "Cumulative profit",
				XValues: x,
				YValues: cumulative,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
