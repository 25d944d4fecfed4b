package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverglen/backreplay/internal/config"
	"github.com/riverglen/backreplay/internal/indicator"
)

func validPayload() config.Payload {
	p := config.Payload{
		StrategyName:   "rsi-dip",
		Pairs:          []string{"BTCUSDT"},
		StartDate:      "2024-01-01",
		EndDate:        "2024-06-01",
		InitialBalance: 10000,
		BaseOrderSize:  100,
	}
	return config.ApplyDefaults(p)
}

func TestValidateAcceptsDefaultedPayload(t *testing.T) {
	require.NoError(t, config.Validate(validPayload()))
}

func TestValidateRejectsEmptyPairs(t *testing.T) {
	p := validPayload()
	p.Pairs = nil
	err := config.Validate(p)
	require.Error(t, err)

	var cerr *config.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.NotEmpty(t, cerr.Problems)
}

func TestValidateRejectsUnparseableDates(t *testing.T) {
	p := validPayload()
	p.StartDate = "not-a-date"
	err := config.Validate(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start_date")
}

func TestValidateRejectsUnknownIndicatorFamily(t *testing.T) {
	p := validPayload()
	p.EntryConditions = []indicator.Predicate{
		{Family: "NotAFamily", Timeframe: "1h", Operator: indicator.OpGreaterThan},
	}
	err := config.Validate(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "knownfamily")
}

func TestApplyDefaultsFillsBenchmarkFromFirstPair(t *testing.T) {
	p := config.Payload{Pairs: []string{"ETHUSDT", "BTCUSDT"}}
	p = config.ApplyDefaults(p)
	assert.Equal(t, "ETHUSDT", p.BenchmarkSymbol)
	assert.Equal(t, "1h", p.BaseTimeframe)
	assert.Equal(t, config.TakeProfitPercentageTotal, p.TakeProfitType)
}
