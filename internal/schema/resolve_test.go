package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverglen/backreplay/internal/data"
	"github.com/riverglen/backreplay/internal/indicator"
	"github.com/riverglen/backreplay/internal/schema"
)

func samplePredicates() []indicator.Predicate {
	return []indicator.Predicate{
		{Family: indicator.FamilyRSI, Timeframe: data.TF4h, RSI: &indicator.RSIParams{Length: 14}},
		{Family: indicator.FamilyMA, Timeframe: data.TF1h, MA: &indicator.MAParams{FastLength: 9, FastType: "EMA", SlowLength: 21, SlowType: "EMA"}},
	}
}

func TestResolveAlwaysIncludesBaseOHLCV(t *testing.T) {
	cs := schema.Resolve(data.TF1h, samplePredicates())
	for _, want := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		assert.Contains(t, cs.Columns, want)
	}
}

func TestResolveAddsNonBaseTimeframeMirrors(t *testing.T) {
	cs := schema.Resolve(data.TF1h, samplePredicates())
	assert.Contains(t, cs.Columns, "RSI_14_4h")
	assert.Contains(t, cs.Columns, "close_4h")
	assert.Contains(t, cs.Columns, "Bar_Close_4h")
	assert.NotContains(t, cs.Columns, "close_1h", "the base timeframe's close mirror is just \"close\"")
}

// Idempotence of schema resolution: resolving the same
// predicate list twice yields an equal set.
func TestResolveIsIdempotent(t *testing.T) {
	preds := samplePredicates()
	a := schema.Resolve(data.TF1h, preds)
	b := schema.Resolve(data.TF1h, preds)
	require.Equal(t, a.Columns, b.Columns)
	require.Equal(t, a.Timeframes, b.Timeframes)
}

func TestResolveDedupesAcrossLists(t *testing.T) {
	entry := []indicator.Predicate{{Family: indicator.FamilyRSI, Timeframe: data.TF1h, RSI: &indicator.RSIParams{Length: 14}}}
	exit := []indicator.Predicate{{Family: indicator.FamilyRSI, Timeframe: data.TF1h, RSI: &indicator.RSIParams{Length: 14}}}
	cs := schema.Resolve(data.TF1h, entry, exit)

	count := 0
	for _, c := range cs.Columns {
		if c == "RSI_14" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestCompileResolvesIndicesAgainstSharedIndex(t *testing.T) {
	preds := samplePredicates()
	cs := schema.Resolve(data.TF1h, preds)
	schema.Compile(data.TF1h, cs, preds)

	idx := cs.Index()
	row := &data.Row{Values: make([]float64, len(idx))}
	row.Values[idx["RSI_14_4h"]] = 42
	v, ok := row.At(idx["RSI_14_4h"])
	require.True(t, ok)
	assert.Equal(t, 42.0, v)
}
