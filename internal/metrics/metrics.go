// Package metrics computes the aggregate performance statistics a
// completed run reports, from the accountant's ledger alone.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/riverglen/backreplay/internal/accountant"
	"github.com/riverglen/backreplay/internal/kernel"
)

// ProfitFactorKind tags ProfitFactor's three possible shapes: the reference
// implementation reports a plain float, the string "Infinity", or 1.0 when
// there were no trades at all — a tagged variant keeps those distinct
// instead of overloading a sentinel float.
type ProfitFactorKind int

const (
	ProfitFactorFinite ProfitFactorKind = iota
	ProfitFactorUnbounded
	ProfitFactorUndefined
)

type ProfitFactor struct {
	Kind  ProfitFactorKind
	Value float64
}

func (p ProfitFactor) String() string {
	switch p.Kind {
	case ProfitFactorUnbounded:
		return "Infinity"
	case ProfitFactorUndefined:
		return "1.0"
	default:
		return fmt.Sprintf("%.4f", p.Value)
	}
}

// Metrics is the aggregate result computed over one job's ledger.
type Metrics struct {
	NetProfit   float64
	TotalProfit float64

	Sharpe  float64
	Sortino float64

	ProfitFactor ProfitFactor
	WinRate      float64

	MaxDealDuration     time.Duration
	AverageDealDuration time.Duration

	ExposureFraction float64
	VaR95            float64
	YearlyReturn     float64

	MaxDrawdown         float64
	MaxRealizedDrawdown float64
}

// Compute derives every reported statistic from the ledger. start/end bound the
// job's date window, used for the yearly-return annualization.
func Compute(rows []accountant.LedgerRow, initialBalance float64, start, end time.Time) Metrics {
	if len(rows) == 0 {
		return Metrics{ProfitFactor: ProfitFactor{Kind: ProfitFactorUndefined, Value: 1.0}}
	}

	last := rows[len(rows)-1]
	m := Metrics{
		NetProfit:           (last.RealBalance - initialBalance) / initialBalance,
		TotalProfit:         (last.UnrealizedBalance - initialBalance) / initialBalance,
		MaxDrawdown:         last.MaxDrawdown,
		MaxRealizedDrawdown: last.MaxRealizedDrawdown,
	}

	m.ProfitFactor, m.WinRate = profitFactorAndWinRate(rows)
	m.MaxDealDuration, m.AverageDealDuration = dealDurations(rows)
	m.ExposureFraction = exposureFraction(rows)

	daily := dailyLastValues(rows, func(r accountant.LedgerRow) float64 { return r.UnrealizedBalance })
	rets := pctChange(daily)
	m.Sharpe = sharpe(rets)
	m.Sortino = sortino(rets)
	m.VaR95 = var95(rets)

	years := end.Sub(start).Hours() / 24 / 365.25
	if years > 0 {
		m.YearlyReturn = math.Pow(1+m.NetProfit, 1/years) - 1
	}

	return m
}

func profitFactorAndWinRate(rows []accountant.LedgerRow) (ProfitFactor, float64) {
	var grossWin, grossLoss float64
	var wins, closed int
	for _, r := range rows {
		if r.Skipped || !isExit(r.Action) {
			continue
		}
		closed++
		switch {
		case r.ProfitLoss > 0:
			grossWin += r.ProfitLoss
			wins++
		case r.ProfitLoss < 0:
			grossLoss += -r.ProfitLoss
		}
	}
	if closed == 0 {
		return ProfitFactor{Kind: ProfitFactorUndefined, Value: 1.0}, 0
	}
	winRate := float64(wins) / float64(closed)
	if grossLoss == 0 {
		if grossWin > 0 {
			return ProfitFactor{Kind: ProfitFactorUnbounded}, winRate
		}
		return ProfitFactor{Kind: ProfitFactorUndefined, Value: 1.0}, winRate
	}
	return ProfitFactor{Kind: ProfitFactorFinite, Value: grossWin / grossLoss}, winRate
}

func isExit(action string) bool {
	switch action {
	case kernel.ActionSell, kernel.ActionStopLossExit, kernel.ActionTakeProfitExit, kernel.ActionTimeoutExit:
		return true
	default:
		return false
	}
}

func isOpen(action string) bool {
	return action == kernel.ActionBuy
}

// dealDurations matches each trade-id's open and close events and reports
// the max and average span, formatted d/h/m at the call site (FormatDHM).
func dealDurations(rows []accountant.LedgerRow) (max, avg time.Duration) {
	opened := map[string]time.Time{}
	var total time.Duration
	var n int
	for _, r := range rows {
		if r.Skipped {
			continue
		}
		if isOpen(r.Action) {
			opened[r.TradeID] = r.Timestamp
			continue
		}
		if isExit(r.Action) {
			if t0, ok := opened[r.TradeID]; ok {
				d := r.Timestamp.Sub(t0)
				total += d
				n++
				if d > max {
					max = d
				}
				delete(opened, r.TradeID)
			}
		}
	}
	if n > 0 {
		avg = total / time.Duration(n)
	}
	return max, avg
}

// FormatDHM renders a duration as the machine-readable "<d>d <h>h <m>m"
// format mandated for ledger/report fields. Human-facing CLI summary
// lines use humanize instead; see Summary.
func FormatDHM(d time.Duration) string {
	d = d.Round(time.Minute)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}

// exposureFraction sums the wall-clock time at least one deal was open,
// divided by the ledger's total elapsed time.
func exposureFraction(rows []accountant.LedgerRow) float64 {
	if len(rows) < 2 {
		return 0
	}
	total := rows[len(rows)-1].Timestamp.Sub(rows[0].Timestamp)
	if total <= 0 {
		return 0
	}
	var exposed time.Duration
	activeDeals := 0
	prevTS := rows[0].Timestamp
	for _, r := range rows {
		if r.Timestamp.After(prevTS) && activeDeals > 0 {
			exposed += r.Timestamp.Sub(prevTS)
		}
		prevTS = r.Timestamp
		activeDeals = r.ActiveDeals
	}
	return float64(exposed) / float64(total)
}

// dailyLastValues resamples a ledger series at 1-day resolution, keeping
// the last observation of each calendar day and forward-filling any day
// with no events at all.
func dailyLastValues(rows []accountant.LedgerRow, field func(accountant.LedgerRow) float64) []float64 {
	byDay := map[string]float64{}
	var days []string
	for _, r := range rows {
		key := r.Timestamp.Format("2006-01-02")
		if _, ok := byDay[key]; !ok {
			days = append(days, key)
		}
		byDay[key] = field(r)
	}
	sort.Strings(days)

	if len(days) == 0 {
		return nil
	}
	start, _ := time.Parse("2006-01-02", days[0])
	end, _ := time.Parse("2006-01-02", days[len(days)-1])

	var out []float64
	last := byDay[days[0]]
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		if v, ok := byDay[key]; ok {
			last = v
		}
		out = append(out, last)
	}
	return out
}

func pctChange(series []float64) []float64 {
	if len(series) < 2 {
		return nil
	}
	out := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (series[i]-series[i-1])/series[i-1])
	}
	return out
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	std = math.Sqrt(sq / float64(len(xs)-1))
	return mean, std
}

// sharpe follows the usual sample-stddev-then-annualize shape, computed
// over pct-change returns rather than log returns.
func sharpe(rets []float64) float64 {
	mean, std := meanStd(rets)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}

func sortino(rets []float64) float64 {
	mean, _ := meanStd(rets)
	var neg []float64
	for _, r := range rets {
		if r < 0 {
			neg = append(neg, r)
		}
	}
	_, downside := meanStd(neg)
	if downside == 0 {
		return 0
	}
	return mean / downside * math.Sqrt(252)
}

func var95(rets []float64) float64 {
	if len(rets) == 0 {
		return 0
	}
	sorted := append([]float64(nil), rets...)
	sort.Float64s(sorted)
	idx := int(math.Floor(0.05 * float64(len(sorted)-1)))
	return -sorted[idx]
}

// Summary renders a short human-readable line for the CLI, using
// go-humanize for the large notional figure and percentages — the
// machine-readable ledger/report fields above are never replaced by these
// humanized strings.
func Summary(m Metrics, finalBalance float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "final balance %s, net profit %s, win rate %s, profit factor %s, max drawdown %s, longest deal %s",
		humanize.Comma(int64(finalBalance)),
		humanizePercent(m.NetProfit), humanizePercent(m.WinRate), m.ProfitFactor.String(),
		humanizePercent(m.MaxDrawdown), humanize.RelTime(time.Time{}, time.Time{}.Add(m.MaxDealDuration), "", ""))
	return b.String()
}

func humanizePercent(f float64) string {
	return humanize.FormatFloat("#,###.##", f*100) + "%"
}
