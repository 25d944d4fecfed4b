package indicator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverglen/backreplay/internal/data"
	"github.com/riverglen/backreplay/internal/indicator"
)

func TestEvalRSIThresholds(t *testing.T) {
	p := &indicator.Predicate{Family: indicator.FamilyRSI, Timeframe: data.TF1h, RSI: &indicator.RSIParams{Length: 14}}
	idx := map[string]int{"RSI_14": 0}
	p.Compile(data.TF1h, idx)

	below := &data.Row{Values: []float64{29}}
	above := &data.Row{Values: []float64{71}}

	lt := 30.0
	p.Operator = indicator.OpLessThan
	p.Threshold = &lt
	assert.True(t, indicator.Eval(below, nil, p))
	assert.False(t, indicator.Eval(above, nil, p))

	gt := 70.0
	p.Operator = indicator.OpGreaterThan
	p.Threshold = &gt
	assert.True(t, indicator.Eval(above, nil, p))
	assert.False(t, indicator.Eval(below, nil, p))
}

func TestEvalCrossingRequiresPreviousRow(t *testing.T) {
	p := &indicator.Predicate{Family: indicator.FamilyRSI, Timeframe: data.TF1h, Operator: indicator.OpCrossingUp, RSI: &indicator.RSIParams{Length: 14}}
	idx := map[string]int{"RSI_14": 0}
	p.Compile(data.TF1h, idx)

	row := &data.Row{Values: []float64{50}}
	require.False(t, indicator.Eval(row, nil, p))

	prev := &data.Row{Values: []float64{49}}
	thr := 49.5
	p.Threshold = &thr
	require.True(t, indicator.Eval(row, prev, p))
}

func TestEvalGatedByBarClose(t *testing.T) {
	p := &indicator.Predicate{Family: indicator.FamilyRSI, Timeframe: data.TF4h, RSI: &indicator.RSIParams{Length: 14}}
	idx := map[string]int{"RSI_14_4h": 0}
	p.Compile(data.TF1h, idx)
	thr := 50.0
	p.Operator = indicator.OpGreaterThan
	p.Threshold = &thr

	row := &data.Row{
		Values:   []float64{60},
		BarClose: map[data.Timeframe]bool{data.TF4h: false},
	}
	assert.False(t, indicator.Eval(row, nil, p), "a present-and-false bar-close flag must suppress evaluation")

	row.BarClose[data.TF4h] = true
	assert.True(t, indicator.Eval(row, nil, p))

	row2 := &data.Row{Values: []float64{60}} // no flag recorded at all
	assert.True(t, indicator.Eval(row2, nil, p), "an absent flag must not gate the predicate")
}

func TestEvalTradingViewSynonyms(t *testing.T) {
	p := &indicator.Predicate{Family: indicator.FamilyTradingView, Timeframe: data.TF1h, TradingView: &indicator.TradingViewParams{Rating: "Buy"}}
	idx := map[string]int{"TV_Rating": 0}
	p.Compile(data.TF1h, idx)

	buy := &data.Row{Strings: map[string]string{"TV_Rating": "Buy"}}
	strongBuy := &data.Row{Strings: map[string]string{"TV_Rating": "Strong Buy"}}
	sell := &data.Row{Strings: map[string]string{"TV_Rating": "Sell"}}

	assert.True(t, indicator.Eval(buy, nil, p))
	assert.True(t, indicator.Eval(strongBuy, nil, p), "Buy must also match Strong Buy")
	assert.False(t, indicator.Eval(sell, nil, p))
}

func TestEvalAllIsConjunctive(t *testing.T) {
	rsiLow := indicator.Predicate{Family: indicator.FamilyRSI, Timeframe: data.TF1h, Operator: indicator.OpLessThan, RSI: &indicator.RSIParams{Length: 14}}
	thr := 30.0
	rsiLow.Threshold = &thr

	idx := map[string]int{"RSI_14": 0}
	rsiLow.Compile(data.TF1h, idx)

	preds := []indicator.Predicate{rsiLow}
	passing := &data.Row{Values: []float64{20}}
	failing := &data.Row{Values: []float64{40}}

	assert.True(t, indicator.EvalAll(passing, nil, preds))
	assert.False(t, indicator.EvalAll(failing, nil, preds))
}
