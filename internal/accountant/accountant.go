// Package accountant implements the second pass over the kernel's trade
// event journal: it independently re-enforces the admission cap from
// the event stream alone, tracks realized/unrealized balances and both
// drawdown series, and produces the per-event ledger the metrics and report
// stages consume.
package accountant

import (
	"strings"
	"time"

	"github.com/riverglen/backreplay/internal/config"
	"github.com/riverglen/backreplay/internal/kernel"
)

// LedgerRow is one accepted (or audited) trade event plus the accounting
// state it produced.
type LedgerRow struct {
	Timestamp     time.Time
	Symbol        string
	Action        string
	Price         float64
	Quantity      float64
	TradeID       string
	TradeComment  string

	Position           float64
	OrderSize          float64
	TradeSize          float64
	ProfitLoss         float64
	Balance            float64
	RealBalance        float64
	FreeCash           float64
	PositionChange     float64
	PositionHeld       float64
	UnrealizedBalance  float64
	Drawdown           float64
	MaxDrawdown        float64
	RealizedDrawdown   float64
	MaxRealizedDrawdown float64

	Skipped bool // no-position exit or a BUY/SO past the admitted cap

	// ActiveDeals is the count of currently-open deals across all symbols
	// immediately after this event, used by Metrics' exposure calculation.
	ActiveDeals int
}

// Result is the accountant's complete output.
type Result struct {
	Rows            []LedgerRow
	SkippedTradeIDs []string
	EarlyStopped    bool
	StopMessage     string
}

type openTrade struct {
	symbol       string
	quantity     float64
	tradeSize    float64
	fractionOpen float64
}

// Accountant replays a sorted trade event stream and rebuilds the ledger
// from scratch, independent of whatever bookkeeping the kernel did.
type Accountant struct {
	fee            float64
	reinvest       float64
	riskReduction  float64
	initialBalance float64
	earlyStopDD    float64

	freeCash    float64
	realBalance float64
	riskBalance float64

	positions map[string]float64
	lastClose map[string]float64

	activeTradeID   map[string]string
	open            map[string]*openTrade
	skipped         map[string]bool
	activeDealCount int
	maxActiveDeals  int

	peakUnreal  float64
	peakReal    float64
	maxDrawdown float64
	maxRealDD   float64
}

// New builds an Accountant for one job from the same payload the kernel ran
// with.
func New(cfg config.Payload) *Accountant {
	return &Accountant{
		fee:            cfg.TradingFee / 100,
		reinvest:       cfg.ReinvestProfit / 100,
		riskReduction:  cfg.RiskReduction / 100,
		initialBalance: cfg.InitialBalance,
		earlyStopDD:    cfg.EarlyStop.AccountantDrawdown,
		freeCash:       cfg.InitialBalance,
		realBalance:    cfg.InitialBalance,
		riskBalance:    cfg.InitialBalance,
		positions:      map[string]float64{},
		lastClose:      map[string]float64{},
		activeTradeID:  map[string]string{},
		open:           map[string]*openTrade{},
		skipped:        map[string]bool{},
		maxActiveDeals: cfg.MaxActiveDeals,
	}
}

// Run processes events in the order the kernel emitted them (non-decreasing
// timestamp); it does not re-sort them.
func (a *Accountant) Run(events []kernel.TradeEvent) Result {
	var rows []LedgerRow

	for _, ev := range events {
		row := a.apply(ev)
		rows = append(rows, row)

		if a.earlyStopDD > 0 && a.maxRealDD >= a.earlyStopDD {
			return Result{
				Rows:            rows,
				SkippedTradeIDs: a.skippedList(),
				EarlyStopped:    true,
				StopMessage:     "early stop: accountant realized drawdown reached threshold",
			}
		}
	}

	return Result{Rows: rows, SkippedTradeIDs: a.skippedList()}
}

func (a *Accountant) skippedList() []string {
	ids := make([]string, 0, len(a.skipped))
	for id := range a.skipped {
		ids = append(ids, id)
	}
	return ids
}

func (a *Accountant) apply(ev kernel.TradeEvent) LedgerRow {
	switch {
	case ev.Action == kernel.ActionHourCheck:
		return a.applyHeartbeat(ev)
	case ev.Action == kernel.ActionBuy:
		return a.applyOpenOrAdd(ev, true)
	case strings.HasPrefix(ev.Action, "Safety Order #"):
		return a.applyOpenOrAdd(ev, false)
	default:
		return a.applyExit(ev)
	}
}

func (a *Accountant) applyHeartbeat(ev kernel.TradeEvent) LedgerRow {
	a.lastClose[ev.Symbol] = ev.Price
	a.markToMarket()
	return a.snapshot(ev)
}

// applyOpenOrAdd handles BUY (isOpen) and Safety Order events, the two
// kinds that can grow a trade's position.
func (a *Accountant) applyOpenOrAdd(ev kernel.TradeEvent, isOpen bool) LedgerRow {
	if isOpen {
		if a.activeDealCount >= a.maxActiveDeals {
			a.skipped[ev.TradeID] = true
			a.lastClose[ev.Symbol] = ev.Price
			a.markToMarket()
			row := a.snapshot(ev)
			row.Skipped = true
			return row
		}
		a.activeDealCount++
		a.activeTradeID[ev.Symbol] = ev.TradeID
		a.open[ev.TradeID] = &openTrade{
			symbol:       ev.Symbol,
			fractionOpen: a.realBalance / a.initialBalance,
		}
	}

	if a.skipped[ev.TradeID] {
		a.lastClose[ev.Symbol] = ev.Price
		a.markToMarket()
		row := a.snapshot(ev)
		row.Skipped = true
		return row
	}

	tr := a.open[ev.TradeID]
	if tr == nil {
		// a safety-order event for a trade-id that was never admitted.
		a.skipped[ev.TradeID] = true
		a.lastClose[ev.Symbol] = ev.Price
		a.markToMarket()
		row := a.snapshot(ev)
		row.Skipped = true
		return row
	}

	scaledQty := ev.Quantity * tr.fractionOpen
	orderSize := ev.Price * scaledQty

	tr.quantity += scaledQty
	tr.tradeSize += orderSize
	a.positions[ev.Symbol] += scaledQty
	a.freeCash -= orderSize * (1 + a.fee)
	a.lastClose[ev.Symbol] = ev.Price
	a.markToMarket()

	row := a.snapshot(ev)
	row.OrderSize = orderSize
	row.TradeSize = tr.tradeSize
	row.Position = tr.quantity
	row.PositionChange = scaledQty
	row.PositionHeld = a.positions[ev.Symbol]
	return row
}

// applyExit handles every closing action (Sell, Stop Loss, Take Profit,
// Timeout). An exit whose trade-id was never admitted is recorded verbatim
// as a no-position audit row.
func (a *Accountant) applyExit(ev kernel.TradeEvent) LedgerRow {
	tr := a.open[ev.TradeID]
	if tr == nil || a.skipped[ev.TradeID] {
		a.lastClose[ev.Symbol] = ev.Price
		a.markToMarket()
		row := a.snapshot(ev)
		row.Skipped = true
		return row
	}

	orderSize := ev.Price * tr.quantity
	profitLoss := orderSize*(1-a.fee) - tr.tradeSize*(1+a.fee)

	a.freeCash += orderSize * (1 - a.fee)
	a.positions[ev.Symbol] -= tr.quantity
	a.realBalance += profitLoss - orderSize*a.fee

	if profitLoss > 0 {
		a.riskBalance += profitLoss * a.reinvest
	} else {
		a.riskBalance += profitLoss * a.riskReduction
	}

	a.activeDealCount--
	delete(a.activeTradeID, ev.Symbol)
	delete(a.open, ev.TradeID)

	a.lastClose[ev.Symbol] = ev.Price
	a.markToMarket()

	row := a.snapshot(ev)
	row.OrderSize = orderSize
	row.TradeSize = 0
	row.ProfitLoss = profitLoss
	row.Position = 0
	row.PositionChange = -tr.quantity
	row.PositionHeld = a.positions[ev.Symbol]
	return row
}

func (a *Accountant) markToMarket() {
	unreal := a.freeCash
	for sym, qty := range a.positions {
		if qty == 0 {
			continue
		}
		unreal += qty * a.lastClose[sym] * (1 - a.fee)
	}
	if unreal > a.peakUnreal {
		a.peakUnreal = unreal
	}
	if a.peakUnreal > 0 {
		if dd := (a.peakUnreal - unreal) / a.peakUnreal; dd > a.maxDrawdown {
			a.maxDrawdown = dd
		}
	}
	if a.realBalance > a.peakReal {
		a.peakReal = a.realBalance
	}
	if a.peakReal > 0 {
		if dd := (a.peakReal - a.realBalance) / a.peakReal; dd > a.maxRealDD {
			a.maxRealDD = dd
		}
	}
}

func (a *Accountant) snapshot(ev kernel.TradeEvent) LedgerRow {
	unreal := a.freeCash
	for sym, qty := range a.positions {
		if qty == 0 {
			continue
		}
		unreal += qty * a.lastClose[sym] * (1 - a.fee)
	}
	var drawdown, realizedDD float64
	if a.peakUnreal > 0 {
		drawdown = (a.peakUnreal - unreal) / a.peakUnreal
	}
	if a.peakReal > 0 {
		realizedDD = (a.peakReal - a.realBalance) / a.peakReal
	}
	return LedgerRow{
		Timestamp:           ev.Timestamp,
		Symbol:              ev.Symbol,
		Action:              ev.Action,
		Price:               ev.Price,
		Quantity:            ev.Quantity,
		TradeID:             ev.TradeID,
		TradeComment:        ev.TradeComment,
		Balance:             a.riskBalance,
		RealBalance:         a.realBalance,
		FreeCash:            a.freeCash,
		UnrealizedBalance:   unreal,
		Drawdown:            drawdown,
		MaxDrawdown:         a.maxDrawdown,
		RealizedDrawdown:    realizedDD,
		MaxRealizedDrawdown: a.maxRealDD,
		ActiveDeals:         a.activeDealCount,
	}
}
