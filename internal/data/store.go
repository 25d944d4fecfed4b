package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Store is the indicator store abstraction: given a symbol and the set of
// columns a job's schema resolution decided it needs, return that symbol's
// bars in ascending timestamp order. Two concrete backends exist side by
// side so the kernel never depends on which one a
// deployment chooses.
type Store interface {
	Load(ctx context.Context, symbol string, columns []string, index map[string]int) ([]Row, error)
}

// PathFor returns the on-disk naming convention: a symbol's "/" is
// replaced with "_" before building the file name.
func PathFor(dataDir, symbol, ext string) string {
	safe := strings.ReplaceAll(symbol, "/", "_")
	return filepath.Join(dataDir, fmt.Sprintf("%s_all_tf_merged.%s", safe, ext))
}

// csvStore reads "<DATA_DIR>/<SYMBOL>_all_tf_merged.csv", narrowing the
// read to exactly the requested columns and classifying each one as
// numeric, boolean bar-close flag, or string rating.
type csvStore struct {
	dataDir string
}

// NewCSVStore returns a Store backed by per-symbol CSV files under dataDir.
func NewCSVStore(dataDir string) Store {
	return &csvStore{dataDir: dataDir}
}

func (s *csvStore) Load(ctx context.Context, symbol string, columns []string, index map[string]int) ([]Row, error) {
	path := PathFor(s.dataDir, symbol, "csv")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTableMissing, path)
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	colPos := make(map[string]int, len(header))
	for i, h := range header {
		colPos[h] = i
	}

	wanted := make(map[string]bool, len(columns))
	for _, c := range columns {
		wanted[c] = true
	}

	var rows []Row
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row of %s: %w", path, err)
		}
		ts, err := parseTimestamp(firstOf(rec, colPos, "timestamp"))
		if err != nil {
			continue
		}
		row := Row{
			Timestamp: ts,
			Symbol:    symbol,
			Values:    make([]float64, len(index)),
			Strings:   map[string]string{},
			BarClose:  map[Timeframe]bool{},
		}
		for i := range row.Values {
			row.Values[i] = math.NaN()
		}
		for col := range wanted {
			pos, ok := colPos[col]
			if !ok || pos >= len(rec) {
				continue
			}
			raw := rec[pos]
			switch {
			case strings.HasPrefix(col, "Bar_Close_"):
				tf := Timeframe(strings.TrimPrefix(col, "Bar_Close_"))
				row.BarClose[tf] = parseBool(raw)
			case strings.HasPrefix(col, "TV_Rating"):
				row.Strings[col] = raw
			default:
				if slot, ok := index[col]; ok {
					if v, err := strconv.ParseFloat(raw, 64); err == nil {
						row.Values[slot] = v
					}
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func firstOf(rec []string, pos map[string]int, col string) string {
	if i, ok := pos[col]; ok && i < len(rec) {
		return rec[i]
	}
	return ""
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, raw)
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "t", "yes":
		return true
	default:
		return false
	}
}

// ErrTableMissing is the sentinel wrapped into a data-missing run error.
var ErrTableMissing = fmt.Errorf("instrument table missing")

// PostProcess applies the post-load contract to one instrument's raw
// rows: drop duplicate timestamps (keep last), sort ascending, clip to
// [start, end], and compute volume_in_usdt / daily_vol_usdt.
//
// close and volume are looked up by index since they are always present in
// any resolved schema (baseColumns in internal/schema always includes
// them).
func PostProcess(rows []Row, index map[string]int, start, end time.Time) []Row {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })

	dedup := make([]Row, 0, len(rows))
	for i, r := range rows {
		if i+1 < len(rows) && rows[i+1].Timestamp.Equal(r.Timestamp) {
			continue // keep last of any run of equal timestamps
		}
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		dedup = append(dedup, r)
	}

	closeIdx, hasClose := index["close"]
	volIdx, hasVol := index["volume"]
	dailyTotals := map[string]float64{}
	volUSDT := make([]float64, len(dedup))
	if hasClose && hasVol {
		for i := range dedup {
			c, _ := dedup[i].At(closeIdx)
			v, _ := dedup[i].At(volIdx)
			vu := v * c
			volUSDT[i] = vu
			day := dedup[i].Timestamp.Format("2006-01-02")
			dailyTotals[day] += vu
		}
		for i := range dedup {
			day := dedup[i].Timestamp.Format("2006-01-02")
			dedup[i].DailyVolUSDT = dailyTotals[day]
		}
	}
	return dedup
}
