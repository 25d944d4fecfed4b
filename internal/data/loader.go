package data

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/riverglen/backreplay/internal/logger"
)

// MaxConcurrentLoads bounds the Data Loader's worker pool: the
// kernel itself is strictly single-threaded, but per-instrument table reads
// overlap up to this many at once.
const MaxConcurrentLoads = 4

// Loader loads every instrument's table from a Store, applies the
// post-load contract, and merges the result into one globally-sorted
// stream. Grounded on the reference implementation's
// load_parquets_in_parallel (a bounded ThreadPoolExecutor) and re-expressed
// with golang.org/x/sync's errgroup+semaphore, the pattern
// stadam23-Eve-flipper uses for its own bounded background work.
type Loader struct {
	Store Store
}

// MergedRow pairs a bar with the symbol it came from, for the kernel's
// globally-sorted stream (the symbol is already on Row, this alias just
// documents intent at call sites).
type MergedRow = Row

// LoadAll loads every symbol in parallel (bounded to MaxConcurrentLoads),
// post-processes each instrument's table, and returns one slice per symbol
// plus the full merge sorted by (timestamp, symbol) ascending — the
// ordering the kernel and accountant both depend on.
func (l *Loader) LoadAll(ctx context.Context, symbols []string, columns []string, index map[string]int, start, end time.Time) (map[string][]Row, []Row, error) {
	results := make(map[string][]Row, len(symbols))
	sem := semaphore.NewWeighted(MaxConcurrentLoads)
	g, gctx := errgroup.WithContext(ctx)

	type out struct {
		symbol string
		rows   []Row
	}
	ch := make(chan out, len(symbols))

	for _, sym := range symbols {
		sym := sym
		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			logger.Debugf(logger.Sym(sym, "loading indicator table"))
			rows, err := l.Store.Load(gctx, sym, columns, index)
			if err != nil {
				return err
			}
			rows = PostProcess(rows, index, start, end)
			ch <- out{symbol: sym, rows: rows}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	close(ch)
	for o := range ch {
		results[o.symbol] = o.rows
	}

	var merged []Row
	for _, rows := range results {
		merged = append(merged, rows...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].Timestamp.Before(merged[j].Timestamp)
		}
		return merged[i].Symbol < merged[j].Symbol
	})

	return results, merged, nil
}
