// Package data defines the bar-row shape consumed by the simulation kernel
// and the indicator store abstractions that produce it.
package data

import (
	"math"
	"time"
)

// Timeframe is one of the fixed candle resolutions a predicate or column
// mirror may reference.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// CloseColumn returns the column name holding tf's close price on a row
// whose base timeframe is base: the bare "close" column for the base
// timeframe, or the "close_<tf>" mirror otherwise.
func CloseColumn(tf, base Timeframe) string {
	if tf == base {
		return "close"
	}
	return "close_" + string(tf)
}

// BarCloseFlagColumn returns the name of tf's bar-close boolean column.
func BarCloseFlagColumn(tf Timeframe) string {
	return "Bar_Close_" + string(tf)
}

// Row is one bar of one instrument, with numeric columns resolved to a
// job-wide column index (see internal/schema) so the hot loop indexes a
// slice instead of hashing a map per lookup.
type Row struct {
	Timestamp time.Time
	Symbol    string

	// Values holds numeric columns positioned by the job's ColumnIndex.
	// A NaN entry means the column was requested but the source table had
	// no value for this row.
	Values []float64

	// Strings holds the rare non-numeric columns (TradingView rating),
	// keyed directly by column name since there are at most a handful.
	Strings map[string]string

	// BarClose holds, per timeframe actually referenced by some predicate,
	// whether this row closes a bar of that timeframe.
	BarClose map[Timeframe]bool

	DailyVolUSDT float64
}

// At returns the value at idx, or (0, false) if idx is out of range or the
// stored value is NaN (missing).
func (r *Row) At(idx int) (float64, bool) {
	if r == nil || idx < 0 || idx >= len(r.Values) {
		return 0, false
	}
	v := r.Values[idx]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Str returns a string-valued column, or ("", false) if absent.
func (r *Row) Str(col string) (string, bool) {
	if r == nil || r.Strings == nil {
		return "", false
	}
	v, ok := r.Strings[col]
	return v, ok
}

// Closed reports whether this row may be evaluated at timeframe tf. A
// timeframe with no recorded flag is treated as "not gated" (returns true):
// the flag only suppresses evaluation when it is present and false.
func (r *Row) Closed(tf Timeframe) bool {
	if r == nil || r.BarClose == nil {
		return true
	}
	flag, ok := r.BarClose[tf]
	if !ok {
		return true
	}
	return flag
}
