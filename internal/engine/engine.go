// Package engine wires the pipeline end to end: payload → Schema Resolver
// → Data Loader → Simulation Kernel → Accountant → Metrics + Benchmark
// Overlay → Report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/riverglen/backreplay/internal/accountant"
	"github.com/riverglen/backreplay/internal/config"
	"github.com/riverglen/backreplay/internal/data"
	"github.com/riverglen/backreplay/internal/kernel"
	"github.com/riverglen/backreplay/internal/logger"
	"github.com/riverglen/backreplay/internal/metrics"
	"github.com/riverglen/backreplay/internal/report"
	"github.com/riverglen/backreplay/internal/schema"
	"github.com/riverglen/backreplay/internal/telemetry"
)

// Sentinel errors for the run-failure taxonomy, matched with errors.Is/errors.As
// by callers that need to distinguish configuration problems from data or
// trade-journal problems.
var (
	ErrDataMissing      = errors.New("instrument table missing")
	ErrEmptyAfterFilter = errors.New("no data after filtering dates")
	ErrNoTrades         = errors.New("no trades generated")
)

// Result is the engine's complete egress shape.
type Result struct {
	RunID        string
	Status       string // "success" | "error"
	Message      string
	Metrics      metrics.Metrics
	Ledger       []accountant.LedgerRow
	Benchmark    []metrics.BenchmarkPoint
	EarlyStopped bool
}

// Engine holds the process-wide dependencies an orchestrated run needs.
type Engine struct {
	Store   data.Store
	DataDir string
}

// New builds an Engine backed by the given Store.
func New(store data.Store, dataDir string) *Engine {
	return &Engine{Store: store, DataDir: dataDir}
}

// Run executes one job from its validated payload to a written report
//, threading ctx's deadline into the loader and
// kernel as the job's wall-clock budget.
func (e *Engine) Run(ctx context.Context, payload config.Payload) (Result, error) {
	runID := uuid.NewString()
	if err := config.Validate(payload); err != nil {
		return Result{RunID: runID, Status: "error", Message: err.Error()}, err
	}

	start, err := config.ParseDate(payload.StartDate)
	if err != nil {
		return Result{RunID: runID, Status: "error", Message: err.Error()}, err
	}
	end, err := config.ParseDate(payload.EndDate)
	if err != nil {
		return Result{RunID: runID, Status: "error", Message: err.Error()}, err
	}

	base := data.Timeframe(payload.BaseTimeframe)
	cs := schema.Resolve(base, payload.EntryConditions, payload.SafetyConditions, payload.ExitConditions)
	index := cs.Index()
	schema.Compile(base, cs, payload.EntryConditions, payload.SafetyConditions, payload.ExitConditions)

	loader := &data.Loader{Store: e.Store}
	logger.Infof("run %s: loading %d symbols", runID, len(payload.Pairs))
	_, merged, err := loader.LoadAll(ctx, payload.Pairs, cs.Columns, index, start, end)
	if err != nil {
		if errors.Is(err, data.ErrTableMissing) {
			return Result{RunID: runID, Status: "error", Message: err.Error()}, fmt.Errorf("%w: %v", ErrDataMissing, err)
		}
		return Result{RunID: runID, Status: "error", Message: err.Error()}, err
	}
	if len(merged) == 0 {
		return Result{RunID: runID, Status: "success", Message: ErrEmptyAfterFilter.Error()}, nil
	}

	closeIdx, ok := index["close"]
	if !ok {
		return Result{RunID: runID, Status: "error", Message: "schema resolver did not include close column"}, fmt.Errorf("internal: missing close column")
	}

	k := kernel.New(payload, closeIdx)
	kres, err := k.Run(ctx, merged)
	if err != nil {
		return Result{RunID: runID, Status: "error", Message: err.Error()}, err
	}
	telemetry.ActiveDeals.Set(0)
	for _, ev := range kres.Events {
		telemetry.TradeEventsTotal.WithLabelValues(ev.Action).Inc()
	}

	if len(kres.Events) == 0 {
		telemetry.JobsTotal.WithLabelValues("no_trades").Inc()
		return Result{RunID: runID, Status: "success", Message: ErrNoTrades.Error()}, nil
	}

	acct := accountant.New(payload)
	ares := acct.Run(kres.Events)
	if len(ares.Rows) == 0 {
		telemetry.JobsTotal.WithLabelValues("no_trades").Inc()
		return Result{RunID: runID, Status: "success", Message: ErrNoTrades.Error()}, nil
	}
	telemetry.ActiveDeals.Set(float64(ares.Rows[len(ares.Rows)-1].ActiveDeals))

	m := metrics.Compute(ares.Rows, payload.InitialBalance, start, end)

	var bench []metrics.BenchmarkPoint
	if benchRows, ok := loadBenchmark(ctx, loader, payload, cs, index, start, end); ok {
		timestamps := make([]time.Time, len(ares.Rows))
		for i, r := range ares.Rows {
			timestamps[i] = r.Timestamp
		}
		bench = metrics.BuildBenchmark(benchRows, closeIdx, payload.InitialBalance, timestamps)
	}

	outcome := "success"
	message := ""
	if kres.EarlyStopped {
		outcome = "early_stop"
		message = kres.StopMessage
	} else if ares.EarlyStopped {
		outcome = "early_stop"
		message = ares.StopMessage
	}
	telemetry.JobsTotal.WithLabelValues(outcome).Inc()

	if err := e.writeReport(payload, m, ares.Rows, bench); err != nil {
		logger.Errorf("run %s: failed writing report: %v", runID, err)
	}

	return Result{
		RunID:        runID,
		Status:       "success",
		Message:      message,
		Metrics:      m,
		Ledger:       ares.Rows,
		Benchmark:    bench,
		EarlyStopped: kres.EarlyStopped || ares.EarlyStopped,
	}, nil
}

func loadBenchmark(ctx context.Context, loader *data.Loader, payload config.Payload, cs schema.ColumnSet, index map[string]int, start, end time.Time) ([]data.Row, bool) {
	if payload.BenchmarkSymbol == "" {
		return nil, false
	}
	rows, err := loader.Store.Load(ctx, payload.BenchmarkSymbol, cs.Columns, index)
	if err != nil {
		logger.Debugf(logger.Sym(payload.BenchmarkSymbol, "benchmark load failed: %v"), err)
		return nil, false
	}
	rows = data.PostProcess(rows, index, start, end)
	return rows, len(rows) > 0
}

func (e *Engine) writeReport(payload config.Payload, m metrics.Metrics, ledger []accountant.LedgerRow, bench []metrics.BenchmarkPoint) error {
	dir := report.OutputDir(e.DataDir, payload.StrategyName)
	if err := ensureDir(dir); err != nil {
		return err
	}

	env := report.Envelope{
		Status:  "success",
		Metrics: m,
		DfOut:   ledger,
	}
	for _, r := range ledger {
		env.ChartData.Timestamps = append(env.ChartData.Timestamps, r.Timestamp)
		env.ChartData.UnrealizedBalance = append(env.ChartData.UnrealizedBalance, r.UnrealizedBalance)
		env.ChartData.Drawdown = append(env.ChartData.Drawdown, r.Drawdown)
		env.ChartDataRealized.Timestamps = append(env.ChartDataRealized.Timestamps, r.Timestamp)
		env.ChartDataRealized.RealBalance = append(env.ChartDataRealized.RealBalance, r.RealBalance)
		env.ChartDataRealized.RealizedDrawdown = append(env.ChartDataRealized.RealizedDrawdown, r.RealizedDrawdown)
	}
	for _, b := range bench {
		env.ChartData.BHTimestamps = append(env.ChartData.BHTimestamps, b.Timestamp)
		env.ChartData.BHBalance = append(env.ChartData.BHBalance, b.Balance)
	}

	if err := report.WriteJSON(env, filepath.Join(dir, "result.json")); err != nil {
		return err
	}
	if err := report.WriteLedgerCSV(ledger, filepath.Join(dir, "ledger.csv")); err != nil {
		return err
	}
	return report.WriteSummaryCSV(payload.StrategyName, m, filepath.Join(dir, "summary.csv"))
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
