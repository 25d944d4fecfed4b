package kernel

import (
	"context"
	"fmt"
	"time"

	"github.com/riverglen/backreplay/internal/config"
	"github.com/riverglen/backreplay/internal/data"
	"github.com/riverglen/backreplay/internal/indicator"
)

// Result is the first pass's complete output.
type Result struct {
	Events       []TradeEvent
	EarlyStopped bool
	StopMessage  string
}

type symbolState struct {
	deal             *Deal
	hasLastClose     bool
	lastCloseTime    time.Time
	lastRow          *data.Row
	hasLastHourCheck bool
	lastHourCheck    time.Time
}

type candidate struct {
	row *data.Row
}

// Kernel runs the first pass: the deterministic, single-threaded event loop
// over the globally-sorted row stream.
type Kernel struct {
	cfg config.Payload

	closeIdx int // slot of "close" in data.Row.Values, from the job's schema index

	fee            float64
	reinvest       float64
	riskReduction  float64
	priceDeviation float64
	stopLossValue  float64
	targetProfit   float64
	minimalProfit  float64

	cooldown        time.Duration
	stopLossTimeout time.Duration
	closeTimeout    time.Duration

	states      map[string]*symbolState
	candidates  []candidate
	freeCash    float64
	realBalance float64
	positions   map[string]float64
	lastClose   map[string]float64
	peakUnreal  float64
	peakReal    float64
	maxDrawdown float64
	maxRealDD   float64

	tradeCounter int
}

// New builds a Kernel for one job, converting payload percentages to
// fractions and minute counts to durations once up front. closeIdx is the
// slot "close" occupies in the job's resolved column index.
func New(cfg config.Payload, closeIdx int) *Kernel {
	return &Kernel{
		cfg:             cfg,
		closeIdx:        closeIdx,
		fee:             cfg.TradingFee / 100,
		reinvest:        cfg.ReinvestProfit / 100,
		riskReduction:   cfg.RiskReduction / 100,
		priceDeviation:  cfg.PriceDeviation / 100,
		stopLossValue:   cfg.StopLossValue / 100,
		targetProfit:    cfg.TargetProfit / 100,
		minimalProfit:   cfg.MinimalProfit / 100,
		cooldown:        time.Duration(cfg.CooldownBetweenDeals) * time.Minute,
		stopLossTimeout: time.Duration(cfg.StopLossTimeout) * time.Minute,
		closeTimeout:    time.Duration(cfg.CloseDealAfterTimeout) * time.Minute,
		states:          map[string]*symbolState{},
		positions:       map[string]float64{},
		lastClose:       map[string]float64{},
		freeCash:        cfg.InitialBalance,
		realBalance:     cfg.InitialBalance,
		peakUnreal:      cfg.InitialBalance,
		peakReal:        cfg.InitialBalance,
	}
}

func (k *Kernel) closeOf(row *data.Row) (float64, bool) {
	return row.At(k.closeIdx)
}

// Run replays rows (already globally sorted by (timestamp, symbol)) and
// returns the trade event journal.
func (k *Kernel) Run(ctx context.Context, rows []data.Row) (Result, error) {
	var events []TradeEvent
	var havePrevTS bool
	var prevTS time.Time

	for i := range rows {
		select {
		case <-ctx.Done():
			return Result{Events: events}, ctx.Err()
		default:
		}
		row := &rows[i]

		if havePrevTS && !row.Timestamp.Equal(prevTS) && len(k.candidates) > 0 {
			events = append(events, k.drainCandidates()...)
		}
		prevTS = row.Timestamp
		havePrevTS = true

		if row.DailyVolUSDT < k.cfg.MinDailyVolume {
			continue
		}

		st := k.states[row.Symbol]
		if st == nil {
			st = &symbolState{}
			k.states[row.Symbol] = st
		}

		if st.hasLastClose && row.Timestamp.Sub(st.lastCloseTime) < k.cooldown {
			st.lastRow = row
			continue
		}

		prevRow := st.lastRow
		if st.deal == nil {
			if len(k.cfg.EntryConditions) > 0 && indicator.EvalAll(row, prevRow, k.cfg.EntryConditions) {
				k.candidates = append(k.candidates, candidate{row: row})
			}
		} else {
			events = append(events, k.stepActiveDeal(st, row, prevRow)...)
		}

		st.lastRow = row
		if c, ok := k.closeOf(row); ok {
			k.lastClose[row.Symbol] = c
		}
		k.markToMarket()

		if k.cfg.EarlyStop.KernelDrawdown > 0 && k.maxDrawdown >= k.cfg.EarlyStop.KernelDrawdown {
			return Result{
				Events:       events,
				EarlyStopped: true,
				StopMessage:  fmt.Sprintf("early stop: kernel drawdown reached %.4f", k.maxDrawdown),
			}, nil
		}
	}

	if len(k.candidates) > 0 {
		events = append(events, k.drainCandidates()...)
	}

	return Result{Events: events}, nil
}

func (k *Kernel) markToMarket() {
	unreal := k.freeCash
	for sym, qty := range k.positions {
		if qty == 0 {
			continue
		}
		unreal += qty * k.lastClose[sym] * (1 - k.fee)
	}
	if unreal > k.peakUnreal {
		k.peakUnreal = unreal
	}
	if k.peakUnreal > 0 {
		if dd := (k.peakUnreal - unreal) / k.peakUnreal; dd > k.maxDrawdown {
			k.maxDrawdown = dd
		}
	}
	if k.realBalance > k.peakReal {
		k.peakReal = k.realBalance
	}
	if k.peakReal > 0 {
		if dd := (k.peakReal - k.realBalance) / k.peakReal; dd > k.maxRealDD {
			k.maxRealDD = dd
		}
	}
}
