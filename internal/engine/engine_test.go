package engine_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverglen/backreplay/internal/config"
	"github.com/riverglen/backreplay/internal/data"
	"github.com/riverglen/backreplay/internal/engine"
	"github.com/riverglen/backreplay/internal/indicator"
)

type bar struct {
	ts    time.Time
	close float64
}

type fakeStore struct {
	bars map[string][]bar
}

func (f *fakeStore) Load(ctx context.Context, symbol string, columns []string, index map[string]int) ([]data.Row, error) {
	bars, ok := f.bars[symbol]
	if !ok {
		return nil, data.ErrTableMissing
	}
	rows := make([]data.Row, len(bars))
	for i, b := range bars {
		vals := make([]float64, len(index))
		for j := range vals {
			vals[j] = math.NaN()
		}
		for _, col := range []string{"open", "high", "low", "close"} {
			if idx, ok := index[col]; ok {
				vals[idx] = b.close
			}
		}
		if idx, ok := index["volume"]; ok {
			vals[idx] = 1000
		}
		if idx, ok := index["RSI_14"]; ok {
			vals[idx] = 100
		}
		rows[i] = data.Row{
			Timestamp: b.ts,
			Symbol:    symbol,
			Values:    vals,
			Strings:   map[string]string{},
			BarClose:  map[data.Timeframe]bool{},
		}
	}
	return rows, nil
}

func basePayload(symbol string) config.Payload {
	threshold := -1e18
	p := config.Payload{
		StrategyName:   "always-in-out",
		Pairs:          []string{symbol},
		StartDate:      "2024-01-01T00:00:00Z",
		EndDate:        "2024-01-01T10:00:00Z",
		BaseTimeframe:  "1h",
		InitialBalance: 10000,
		BaseOrderSize:  1000,
		MaxActiveDeals: 1,
		TargetProfit:   5,
		EntryConditions: []indicator.Predicate{{
			Family:    indicator.FamilyRSI,
			Timeframe: "1h",
			Operator:  indicator.OpGreaterThan,
			Threshold: &threshold,
		}},
		ExitConditions: []indicator.Predicate{{
			Family:    indicator.FamilyRSI,
			Timeframe: "1h",
			Operator:  indicator.OpGreaterThan,
			Threshold: &threshold,
		}},
	}
	return config.ApplyDefaults(p)
}

func hourlyBars(t0 time.Time, closes ...float64) []bar {
	bars := make([]bar, len(closes))
	for i, c := range closes {
		bars[i] = bar{ts: t0.Add(time.Duration(i) * time.Hour), close: c}
	}
	return bars
}

// TestEngineRunFullPipeline exercises every stage end to end: the entry and
// exit conditions are both always-true, so a symbol enters on one bar and
// exits via the condition branch on the very next one, then re-enters and
// exits once more before the window closes.
func TestEngineRunFullPipeline(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{bars: map[string][]bar{
		"AAA": hourlyBars(t0, 100, 110, 105, 115),
	}}

	eng := engine.New(store, t.TempDir())
	res, err := eng.Run(context.Background(), basePayload("AAA"))
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	require.NotEmpty(t, res.Ledger)

	var buys, sells int
	for _, row := range res.Ledger {
		switch row.Action {
		case "BUY":
			buys++
		case "SELL":
			sells++
		}
		assert.False(t, row.Skipped)
	}
	assert.Equal(t, 2, buys, "enters once at bar 0 and again once the first deal exits")
	assert.Equal(t, 2, sells, "the always-true exit condition closes both deals before the window ends")

	require.NotEmpty(t, res.Benchmark, "benchmark_symbol defaults to the only pair and should produce an overlay")
	assert.InDelta(t, 10000, res.Benchmark[0].Balance, 1e-6)
}

func TestEngineRunMissingTableWrapsErrDataMissing(t *testing.T) {
	store := &fakeStore{bars: map[string][]bar{}}
	eng := engine.New(store, t.TempDir())

	_, err := eng.Run(context.Background(), basePayload("GHOST"))
	assert.ErrorIs(t, err, engine.ErrDataMissing)
}

func TestEngineRunEmptyAfterFilterIsNotAnError(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{bars: map[string][]bar{
		"AAA": hourlyBars(t0, 100, 110),
	}}
	eng := engine.New(store, t.TempDir())

	payload := basePayload("AAA")
	res, err := eng.Run(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, engine.ErrEmptyAfterFilter.Error(), res.Message)
	assert.Empty(t, res.Ledger)
}

func TestEngineRunRejectsInvalidPayload(t *testing.T) {
	store := &fakeStore{}
	eng := engine.New(store, t.TempDir())

	_, err := eng.Run(context.Background(), config.Payload{})
	require.Error(t, err)
	var cfgErr *config.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
