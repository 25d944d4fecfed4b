// Package report renders a completed job's result to disk: the JSON egress
// envelope, the ledger CSV, and a one-row summary CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/riverglen/backreplay/internal/accountant"
	"github.com/riverglen/backreplay/internal/metrics"
)

// ChartData is the unrealized-balance and benchmark overlay series.
type ChartData struct {
	Timestamps        []time.Time `json:"timestamps"`
	UnrealizedBalance []float64   `json:"unrealized_balance"`
	BHTimestamps      []time.Time `json:"bh_timestamps"`
	BHBalance         []float64   `json:"bh_balance"`
	Drawdown          []float64   `json:"drawdown"`
}

// RealizedChartData is the realized-balance series.
type RealizedChartData struct {
	Timestamps       []time.Time `json:"timestamps"`
	RealBalance      []float64   `json:"real_balance"`
	RealizedDrawdown []float64   `json:"realized_drawdown"`
}

// Envelope is the full JSON result shape.
type Envelope struct {
	Status            string            `json:"status"`
	Message           string            `json:"message,omitempty"`
	Metrics           metrics.Metrics   `json:"metrics"`
	ChartData         ChartData         `json:"chartData"`
	ChartDataRealized RealizedChartData `json:"chart_data_realized"`
	DfOut             []accountant.LedgerRow `json:"df_out"`
}

// OutputDir is the job's result directory, matching the reference
// implementation's <DATA_DIR>/backtest_results/<strategy_name>/ layout.
func OutputDir(dataDir, strategyName string) string {
	safe := strings.ReplaceAll(strategyName, string(filepath.Separator), "_")
	return filepath.Join(dataDir, "backtest_results", safe)
}

// WriteJSON marshals the full envelope with segmentio/encoding/json, a
// faster drop-in replacement for encoding/json.
func WriteJSON(env Envelope, path string) error {
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result envelope: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

var ledgerHeaders = []string{
	"timestamp", "symbol", "action", "price", "quantity", "trade_id", "trade_comment",
	"position", "order_size", "trade_size", "profit_loss", "balance", "real_balance",
	"free_cash", "position_change", "position_held", "unrealized_balance",
	"drawdown", "max_drawdown", "realized_drawdown", "max_realized_drawdown",
}

// WriteLedgerCSV writes df_out: one row per accepted or audited trade event.
func WriteLedgerCSV(rows []accountant.LedgerRow, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write(ledgerHeaders); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.Timestamp.Format(time.RFC3339),
			r.Symbol,
			r.Action,
			fmt.Sprintf("%.8f", r.Price),
			fmt.Sprintf("%.8f", r.Quantity),
			r.TradeID,
			r.TradeComment,
			fmt.Sprintf("%.8f", r.Position),
			fmt.Sprintf("%.8f", r.OrderSize),
			fmt.Sprintf("%.8f", r.TradeSize),
			fmt.Sprintf("%.8f", r.ProfitLoss),
			fmt.Sprintf("%.8f", r.Balance),
			fmt.Sprintf("%.8f", r.RealBalance),
			fmt.Sprintf("%.8f", r.FreeCash),
			fmt.Sprintf("%.8f", r.PositionChange),
			fmt.Sprintf("%.8f", r.PositionHeld),
			fmt.Sprintf("%.8f", r.UnrealizedBalance),
			fmt.Sprintf("%.8f", r.Drawdown),
			fmt.Sprintf("%.8f", r.MaxDrawdown),
			fmt.Sprintf("%.8f", r.RealizedDrawdown),
			fmt.Sprintf("%.8f", r.MaxRealizedDrawdown),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}

var summaryHeaders = []string{
	"strategy_name", "net_profit", "total_profit", "sharpe", "sortino",
	"profit_factor", "win_rate", "max_drawdown", "max_realized_drawdown",
	"exposure_fraction", "var95", "yearly_return", "max_deal_duration", "avg_deal_duration",
}

// WriteSummaryCSV writes the one-row aggregate summary alongside the ledger.
func WriteSummaryCSV(strategyName string, m metrics.Metrics, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write(summaryHeaders); err != nil {
		return err
	}
	record := []string{
		strategyName,
		fmt.Sprintf("%.6f", m.NetProfit),
		fmt.Sprintf("%.6f", m.TotalProfit),
		fmt.Sprintf("%.6f", m.Sharpe),
		fmt.Sprintf("%.6f", m.Sortino),
		m.ProfitFactor.String(),
		fmt.Sprintf("%.6f", m.WinRate),
		fmt.Sprintf("%.6f", m.MaxDrawdown),
		fmt.Sprintf("%.6f", m.MaxRealizedDrawdown),
		fmt.Sprintf("%.6f", m.ExposureFraction),
		fmt.Sprintf("%.6f", m.VaR95),
		fmt.Sprintf("%.6f", m.YearlyReturn),
		metrics.FormatDHM(m.MaxDealDuration),
		metrics.FormatDHM(m.AverageDealDuration),
	}
	if err := w.Write(record); err != nil {
		return err
	}
	return w.Error()
}
