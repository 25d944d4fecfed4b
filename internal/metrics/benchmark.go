package metrics

import (
	"sort"
	"time"

	"github.com/riverglen/backreplay/internal/data"
)

// BenchmarkPoint is one sample of the buy-and-hold overlay curve.
type BenchmarkPoint struct {
	Timestamp time.Time
	Balance   float64
}

// BuildBenchmark turns a reference instrument's 1-minute close series into
// a buy-and-hold equity curve seeded at initialBalance, then left-joins it
// onto the ledger's timestamps using a "most recent sample at or before"
// lookup, implemented as a binary search since the benchmark series is
// already sorted ascending by construction.
func BuildBenchmark(rows []data.Row, closeIdx int, initialBalance float64, ledgerTimestamps []time.Time) []BenchmarkPoint {
	if len(rows) == 0 || len(ledgerTimestamps) == 0 {
		return nil
	}

	entryClose, ok := rows[0].At(closeIdx)
	if !ok || entryClose == 0 {
		return nil
	}
	qty := initialBalance / entryClose

	out := make([]BenchmarkPoint, 0, len(ledgerTimestamps))
	for _, ts := range ledgerTimestamps {
		idx := mostRecentAtOrBefore(rows, ts)
		if idx < 0 {
			out = append(out, BenchmarkPoint{Timestamp: ts, Balance: initialBalance})
			continue
		}
		close, ok := rows[idx].At(closeIdx)
		if !ok {
			close = entryClose
		}
		out = append(out, BenchmarkPoint{Timestamp: ts, Balance: qty * close})
	}
	return out
}

// mostRecentAtOrBefore returns the index of the last row whose timestamp is
// <= ts, or -1 if every row is after ts (the series is forward-filled from
// its first sample otherwise).
func mostRecentAtOrBefore(rows []data.Row, ts time.Time) int {
	i := sort.Search(len(rows), func(i int) bool { return rows[i].Timestamp.After(ts) })
	return i - 1
}
