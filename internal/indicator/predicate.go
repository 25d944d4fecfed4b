// Package indicator represents entry/safety/exit conditions as a tagged
// variant keyed by indicator family and evaluates them against bar rows.
//
// This deliberately replaces a string-keyed expression dispatch (the kind
// the reference implementation uses) with a closed Go type: every family
// the evaluator knows about has its own parameter struct and its own eval
// function, so an unrecognized family is a config-time error rather than a
// silently-false predicate discovered at run time.
package indicator

import (
	"fmt"

	"github.com/riverglen/backreplay/internal/data"
)

// Family is the indicator family a predicate is evaluated against.
type Family string

const (
	FamilyRSI            Family = "RSI"
	FamilyMA             Family = "MA"
	FamilyBollingerBands Family = "BollingerBands"
	FamilyMACD           Family = "MACD"
	FamilyStochastic     Family = "Stochastic"
	FamilyParabolicSAR   Family = "ParabolicSAR"
	FamilyHeikenAshi     Family = "HeikenAshi"
	FamilyTradingView    Family = "TradingViewRating"
)

// KnownFamilies lists every family the evaluator dispatches, used by
// internal/config to reject unknown families at ingestion time instead of
// letting them fail silently during simulation.
var KnownFamilies = []Family{
	FamilyRSI, FamilyMA, FamilyBollingerBands, FamilyMACD,
	FamilyStochastic, FamilyParabolicSAR, FamilyHeikenAshi, FamilyTradingView,
}

// Operator is the comparison or crossing test a predicate applies.
type Operator string

const (
	OpLessThan      Operator = "LessThan"
	OpGreaterThan   Operator = "GreaterThan"
	OpCrossingUp    Operator = "CrossingUp"
	OpCrossingDown  Operator = "CrossingDown"
	OpCrossingLong  Operator = "CrossingLong"
	OpCrossingShort Operator = "CrossingShort"
	OpKxDUp         Operator = "KxD-up"
	OpKxDDown       Operator = "KxD-down"
)

var crossingOperators = map[Operator]bool{
	OpCrossingUp: true, OpCrossingDown: true,
	OpCrossingLong: true, OpCrossingShort: true,
	OpKxDUp: true, OpKxDDown: true,
}

// RSIParams parametrizes the RSI family: a single length, column "RSI_<L>".
type RSIParams struct {
	Length int `json:"length" yaml:"length"`
}

// MAParams parametrizes the MA family: two moving averages compared to each
// other, columns "<FastType>_<FastLength>" and "<SlowType>_<SlowLength>".
type MAParams struct {
	FastLength int    `json:"fast_length" yaml:"fast_length"`
	FastType   string `json:"fast_type" yaml:"fast_type"` // "SMA" | "EMA"
	SlowLength int    `json:"slow_length" yaml:"slow_length"`
	SlowType   string `json:"slow_type" yaml:"slow_type"`
}

// BollingerParams parametrizes %B, column "BB_PCTB_<Length>_<StdDev>".
type BollingerParams struct {
	Length int     `json:"length" yaml:"length"`
	StdDev float64 `json:"std_dev" yaml:"std_dev"`
}

// MACDParams parametrizes MACD, columns "MACD_<f>_<s>_<g>" and its signal
// line "MACDs_<f>_<s>_<g>"; ZeroLineFilter, if set, requires the MACD line
// to additionally be above or below zero.
type MACDParams struct {
	Fast           int     `json:"fast" yaml:"fast"`
	Slow           int     `json:"slow" yaml:"slow"`
	Signal         int     `json:"signal" yaml:"signal"`
	ZeroLineFilter *string `json:"zero_line_filter,omitempty" yaml:"zero_line_filter,omitempty"` // "above" | "below"
}

// StochasticParams parametrizes %K/%D, columns "STOCHK_<k>_<d>_<smooth>" and
// "STOCHD_<k>_<d>_<smooth>".
type StochasticParams struct {
	KLength int `json:"k_length" yaml:"k_length"`
	DLength int `json:"d_length" yaml:"d_length"`
	Smooth  int `json:"smooth" yaml:"smooth"`
}

// PSARParams parametrizes Parabolic SAR, column "PSAR_<step>_<max>".
type PSARParams struct {
	Step float64 `json:"step" yaml:"step"`
	Max  float64 `json:"max" yaml:"max"`
}

// HeikenAshiParams has no tunables; the column is always "HA_Close".
type HeikenAshiParams struct{}

// TradingViewParams names the desired rating synonym class.
type TradingViewParams struct {
	Rating string `json:"rating" yaml:"rating"` // e.g. "Buy", "Strong Buy", "Sell", "Neutral"
}

// Predicate is a single conjunctive condition: an indicator family, the
// timeframe it is read at, a comparison operator, and exactly the
// family-specific parameter struct that operator needs.
type Predicate struct {
	Family    Family        `json:"family" yaml:"family" validate:"required,knownfamily"`
	Timeframe data.Timeframe `json:"timeframe" yaml:"timeframe" validate:"required"`
	Operator  Operator      `json:"operator" yaml:"operator" validate:"required"`
	Threshold *float64      `json:"threshold,omitempty" yaml:"threshold,omitempty"`

	RSI         *RSIParams         `json:"rsi,omitempty" yaml:"rsi,omitempty"`
	MA          *MAParams          `json:"ma,omitempty" yaml:"ma,omitempty"`
	Bollinger   *BollingerParams   `json:"bollinger,omitempty" yaml:"bollinger,omitempty"`
	MACD        *MACDParams        `json:"macd,omitempty" yaml:"macd,omitempty"`
	Stochastic  *StochasticParams  `json:"stochastic,omitempty" yaml:"stochastic,omitempty"`
	PSAR        *PSARParams        `json:"psar,omitempty" yaml:"psar,omitempty"`
	HeikenAshi  *HeikenAshiParams  `json:"heiken_ashi,omitempty" yaml:"heiken_ashi,omitempty"`
	TradingView *TradingViewParams `json:"trading_view,omitempty" yaml:"trading_view,omitempty"`

	// compiled indices, populated by Compile; -1 means "column not in the
	// job's resolved schema" and the predicate deterministically fails.
	idxA, idxB int
	closeIdx   int
	strCol     string
}

func suffixed(name string, tf, base data.Timeframe) []string {
	if tf == base {
		return []string{name}
	}
	return []string{name + "_" + string(tf)}
}

// Columns returns the canonical column name(s) this predicate reads, given
// the job's base timeframe, following the schema's column-naming convention. It does not
// include the bar-close flag or close mirror columns — those are a
// schema-resolver concern shared across predicates, not a per-predicate one.
func (p Predicate) Columns(base data.Timeframe) []string {
	switch p.Family {
	case FamilyRSI:
		length := 14
		if p.RSI != nil {
			length = p.RSI.Length
		}
		return suffixed(fmt.Sprintf("RSI_%d", length), p.Timeframe, base)
	case FamilyMA:
		if p.MA == nil {
			return nil
		}
		fast := suffixed(fmt.Sprintf("%s_%d", p.MA.FastType, p.MA.FastLength), p.Timeframe, base)
		slow := suffixed(fmt.Sprintf("%s_%d", p.MA.SlowType, p.MA.SlowLength), p.Timeframe, base)
		return append(fast, slow...)
	case FamilyBollingerBands:
		length, std := 20, 2.0
		if p.Bollinger != nil {
			length, std = p.Bollinger.Length, p.Bollinger.StdDev
		}
		return suffixed(fmt.Sprintf("BB_PCTB_%d_%.1f", length, std), p.Timeframe, base)
	case FamilyMACD:
		f, s, g := 12, 26, 9
		if p.MACD != nil {
			f, s, g = p.MACD.Fast, p.MACD.Slow, p.MACD.Signal
		}
		main := suffixed(fmt.Sprintf("MACD_%d_%d_%d", f, s, g), p.Timeframe, base)
		sig := suffixed(fmt.Sprintf("MACDs_%d_%d_%d", f, s, g), p.Timeframe, base)
		return append(main, sig...)
	case FamilyStochastic:
		k, d, sm := 14, 3, 3
		if p.Stochastic != nil {
			k, d, sm = p.Stochastic.KLength, p.Stochastic.DLength, p.Stochastic.Smooth
		}
		kCol := suffixed(fmt.Sprintf("STOCHK_%d_%d_%d", k, d, sm), p.Timeframe, base)
		dCol := suffixed(fmt.Sprintf("STOCHD_%d_%d_%d", k, d, sm), p.Timeframe, base)
		return append(kCol, dCol...)
	case FamilyParabolicSAR:
		step, max := 0.02, 0.2
		if p.PSAR != nil {
			step, max = p.PSAR.Step, p.PSAR.Max
		}
		cols := suffixed(fmt.Sprintf("PSAR_%.2f_%.2f", step, max), p.Timeframe, base)
		if p.Operator == OpCrossingLong || p.Operator == OpCrossingShort {
			cols = append(cols, data.CloseColumn(p.Timeframe, base))
		}
		return cols
	case FamilyHeikenAshi:
		return suffixed("HA_Close", p.Timeframe, base)
	case FamilyTradingView:
		return suffixed("TV_Rating", p.Timeframe, base)
	default:
		return nil
	}
}

// Compile resolves this predicate's columns against the job's column index
// (name -> slot in data.Row.Values), so the hot loop looks values up by
// integer index instead of hashing a column name on every bar. A column
// absent from the index resolves to -1, which At() treats as missing.
func (p *Predicate) Compile(base data.Timeframe, index map[string]int) {
	p.idxA, p.idxB, p.closeIdx = -1, -1, -1
	cols := p.Columns(base)
	switch p.Family {
	case FamilyTradingView:
		if len(cols) > 0 {
			p.strCol = cols[0]
		}
		return
	case FamilyMA, FamilyMACD, FamilyStochastic:
		if len(cols) >= 2 {
			if i, ok := index[cols[0]]; ok {
				p.idxA = i
			}
			if i, ok := index[cols[1]]; ok {
				p.idxB = i
			}
		}
	case FamilyParabolicSAR:
		if len(cols) >= 1 {
			if i, ok := index[cols[0]]; ok {
				p.idxA = i
			}
		}
		if len(cols) >= 2 {
			if i, ok := index[cols[1]]; ok {
				p.closeIdx = i
			}
		}
	default:
		if len(cols) >= 1 {
			if i, ok := index[cols[0]]; ok {
				p.idxA = i
			}
		}
	}
}
