// Package schema computes the minimal set of indicator-store columns a job
// needs to load: per-case resolution by indicator family and timeframe,
// deduplicated across the entry, safety, and exit condition lists.
package schema

import (
	"sort"

	"github.com/riverglen/backreplay/internal/data"
	"github.com/riverglen/backreplay/internal/indicator"
)

// baseColumns are always loaded regardless of which predicates reference
// them: every bar needs OHLCV to drive the kernel's accounting even if no
// predicate reads "open" or "volume" directly.
var baseColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// ColumnSet is the resolved, deduplicated set of column names a job needs,
// plus the timeframes whose Bar_Close flag must be loaded alongside them.
type ColumnSet struct {
	Columns    []string
	Timeframes []data.Timeframe
}

// Index builds a name -> slot map suitable for indicator.Predicate.Compile
// and data.Row.Values indexing.
func (cs ColumnSet) Index() map[string]int {
	idx := make(map[string]int, len(cs.Columns))
	for i, c := range cs.Columns {
		idx[c] = i
	}
	return idx
}

// Resolve computes the minimal column set for a job's entry, safety, and
// exit predicate lists against the given base timeframe. Resolving the same
// lists twice yields an equal set: the only source of
// nondeterminism would be map iteration order, which is avoided below by
// sorting before returning.
func Resolve(base data.Timeframe, predicateLists ...[]indicator.Predicate) ColumnSet {
	seen := make(map[string]bool, 32)
	var cols []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			cols = append(cols, name)
		}
	}
	for _, c := range baseColumns {
		add(c)
	}

	timeframesSeen := make(map[data.Timeframe]bool)
	for _, list := range predicateLists {
		for _, p := range list {
			for _, c := range p.Columns(base) {
				add(c)
			}
			if p.Timeframe != base {
				timeframesSeen[p.Timeframe] = true
			}
		}
	}

	tfs := make([]data.Timeframe, 0, len(timeframesSeen))
	for tf := range timeframesSeen {
		tfs = append(tfs, tf)
	}
	sort.Slice(tfs, func(i, j int) bool { return tfs[i] < tfs[j] })

	for _, tf := range tfs {
		add(data.CloseColumn(tf, base))
		add(data.BarCloseFlagColumn(tf))
	}

	return ColumnSet{Columns: cols, Timeframes: tfs}
}

// Compile resolves every predicate in the given lists against cs's index,
// populating each predicate's internal column indices once per job.
func Compile(base data.Timeframe, cs ColumnSet, predicateLists ...[]indicator.Predicate) {
	idx := cs.Index()
	for _, list := range predicateLists {
		for i := range list {
			list[i].Compile(base, idx)
		}
	}
}
