package metrics_test

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverglen/backreplay/internal/accountant"
	"github.com/riverglen/backreplay/internal/kernel"
	"github.com/riverglen/backreplay/internal/metrics"
)

func row(ts time.Time, action string, profitLoss float64, activeDeals int) accountant.LedgerRow {
	return accountant.LedgerRow{
		Timestamp:   ts,
		Action:      action,
		TradeID:     "1-BTCUSDT",
		ProfitLoss:  profitLoss,
		ActiveDeals: activeDeals,
	}
}

func TestProfitFactorFiniteBothSides(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []accountant.LedgerRow{
		row(t0, kernel.ActionBuy, 0, 1),
		row(t0.Add(time.Hour), kernel.ActionSell, 100, 0),
		row(t0.Add(2*time.Hour), kernel.ActionBuy, 0, 1),
		row(t0.Add(3*time.Hour), kernel.ActionSell, -40, 0),
	}
	m := metrics.Compute(rows, 10000, t0, t0.Add(4*time.Hour))
	require.Equal(t, metrics.ProfitFactorFinite, m.ProfitFactor.Kind)
	assert.InDelta(t, 2.5, m.ProfitFactor.Value, 1e-9, "gross win 100 / gross loss 40")
	assert.InDelta(t, 0.5, m.WinRate, 1e-9, "1 of 2 closed trades won")
}

func TestProfitFactorUnboundedWithNoLosses(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []accountant.LedgerRow{
		row(t0, kernel.ActionBuy, 0, 1),
		row(t0.Add(time.Hour), kernel.ActionSell, 50, 0),
	}
	m := metrics.Compute(rows, 10000, t0, t0.Add(2*time.Hour))
	assert.Equal(t, metrics.ProfitFactorUnbounded, m.ProfitFactor.Kind)
	assert.Equal(t, "Infinity", m.ProfitFactor.String())
}

func TestProfitFactorUndefinedWithNoClosedTrades(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []accountant.LedgerRow{
		row(t0, kernel.ActionBuy, 0, 1),
	}
	m := metrics.Compute(rows, 10000, t0, t0.Add(time.Hour))
	assert.Equal(t, metrics.ProfitFactorUndefined, m.ProfitFactor.Kind)
	assert.Equal(t, "1.0", m.ProfitFactor.String())
}

func TestComputeOnEmptyLedgerReturnsUndefinedProfitFactor(t *testing.T) {
	m := metrics.Compute(nil, 10000, time.Time{}, time.Time{})
	assert.Equal(t, metrics.ProfitFactorUndefined, m.ProfitFactor.Kind)
	assert.Equal(t, 1.0, m.ProfitFactor.Value)
}

func TestFormatDHM(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0d 0h 0m"},
		{90 * time.Minute, "0d 1h 30m"},
		{25 * time.Hour, "1d 1h 0m"},
		{48*time.Hour + 3*time.Minute, "2d 0h 3m"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, metrics.FormatDHM(c.d))
	}
}

// exposureFraction sums the wall-clock stretch during which ActiveDeals > 0,
// divided by the ledger's total elapsed span.
func TestExposureFractionHalfOpenHalfFlat(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []accountant.LedgerRow{
		row(t0, kernel.ActionBuy, 0, 1),
		row(t0.Add(time.Hour), kernel.ActionSell, 10, 0),
		row(t0.Add(2*time.Hour), kernel.ActionBuy, 0, 1),
	}
	m := metrics.Compute(rows, 10000, t0, t0.Add(2*time.Hour))
	assert.InDelta(t, 0.5, m.ExposureFraction, 1e-9, "one open hour out of two elapsed hours")
}

func TestExposureFractionAllFlatIsZero(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []accountant.LedgerRow{
		row(t0, kernel.ActionHourCheck, 0, 0),
		row(t0.Add(time.Hour), kernel.ActionHourCheck, 0, 0),
	}
	m := metrics.Compute(rows, 10000, t0, t0.Add(time.Hour))
	assert.Equal(t, 0.0, m.ExposureFraction)
}

// sharpe/sortino/var95 all derive from the same daily-resampled pct-change
// series, so a hand-built two-day ledger with a known balance path is
// enough to check each one isn't NaN/Inf and has the expected sign.
func TestSharpeSortinoVaROnRisingSeries(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []accountant.LedgerRow{
		{Timestamp: t0, Action: kernel.ActionHourCheck, RealBalance: 10000, UnrealizedBalance: 10000},
		{Timestamp: t0.AddDate(0, 0, 1), Action: kernel.ActionHourCheck, RealBalance: 10100, UnrealizedBalance: 10100},
		{Timestamp: t0.AddDate(0, 0, 2), Action: kernel.ActionHourCheck, RealBalance: 10200, UnrealizedBalance: 10200},
	}
	m := metrics.Compute(rows, 10000, t0, t0.AddDate(0, 0, 2))
	assert.False(t, math.IsNaN(m.Sharpe))
	assert.False(t, math.IsNaN(m.Sortino))
	assert.Greater(t, m.Sharpe, 0.0, "a monotonically rising balance has a positive sharpe")
	assert.Equal(t, 0.0, m.Sortino, "no negative returns means no downside deviation to divide by")
	assert.LessOrEqual(t, m.VaR95, 0.0, "var95 on an all-positive return series is never reported as a loss")
}

func TestYearlyReturnAnnualizesNetProfit(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := t0.AddDate(1, 0, 0)
	rows := []accountant.LedgerRow{
		{Timestamp: t0, Action: kernel.ActionBuy, RealBalance: 10000, UnrealizedBalance: 10000},
		{Timestamp: end, Action: kernel.ActionSell, RealBalance: 12000, UnrealizedBalance: 12000, ProfitLoss: 2000},
	}
	m := metrics.Compute(rows, 10000, t0, end)
	assert.InDelta(t, 0.2, m.NetProfit, 1e-9)
	assert.InDelta(t, 0.2, m.YearlyReturn, 1e-2, "one calendar year at 20% net profit annualizes to ~20%")
}

func TestSummaryDoesNotPanicAndIncludesHumanizedFigures(t *testing.T) {
	m := metrics.Metrics{
		NetProfit:    0.15,
		WinRate:      0.6,
		MaxDrawdown:  0.05,
		ProfitFactor: metrics.ProfitFactor{Kind: metrics.ProfitFactorFinite, Value: 1.8},
	}
	s := metrics.Summary(m, 11500)
	assert.True(t, strings.Contains(s, "11,500"), "large balances are rendered with thousands separators")
	assert.True(t, strings.Contains(s, "1.8000"))
}
