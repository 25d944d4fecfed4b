package kernel

import (
	"fmt"
	"sort"
	"time"

	"github.com/riverglen/backreplay/internal/config"
	"github.com/riverglen/backreplay/internal/data"
	"github.com/riverglen/backreplay/internal/indicator"
)

// stepActiveDeal applies the "if active deal" branches in
// their mandated order: SL -> Timeout -> Condition -> Heartbeat -> TP ->
// Safety-Ladder, stopping at the first branch that closes the deal.
func (k *Kernel) stepActiveDeal(st *symbolState, row, prevRow *data.Row) []TradeEvent {
	deal := st.deal
	close, ok := k.closeOf(row)
	if !ok {
		return nil
	}
	timeSinceOpen := row.Timestamp.Sub(deal.TimeOpened)
	var events []TradeEvent

	// a. Stop-loss.
	if k.cfg.StopLossToggle && deal.StopLossTrigger != nil &&
		timeSinceOpen >= k.stopLossTimeout && close <= *deal.StopLossTrigger {
		events = append(events, k.closeDeal(st, row, close, ActionStopLossExit, ""))
		return events
	}

	// b. Timeout.
	if k.cfg.CloseDealAfterTimeout > 0 && timeSinceOpen >= k.closeTimeout {
		events = append(events, k.closeDeal(st, row, close, ActionTimeoutExit, ""))
		return events
	}

	// c. Condition exit.
	if len(k.cfg.ExitConditions) > 0 && indicator.EvalAll(row, prevRow, k.cfg.ExitConditions) {
		profitPct := (close - deal.EntryPrice) / deal.EntryPrice
		if !k.cfg.MinProfitToggle || profitPct >= k.minimalProfit {
			events = append(events, k.closeDeal(st, row, close, ActionSell, ""))
			return events
		}
	}

	// d. Hourly heartbeat (non-trade; does not prevent TP/SO below).
	if !st.hasLastHourCheck || row.Timestamp.Sub(st.lastHourCheck) >= time.Hour {
		st.hasLastHourCheck = true
		st.lastHourCheck = row.Timestamp
		events = append(events, TradeEvent{
			Timestamp: row.Timestamp, Symbol: row.Symbol, Action: ActionHourCheck,
			Price: close, TradeID: deal.TradeID,
		})
	}

	// e. Take-profit — closes at the trigger price, not the bar close.
	if k.cfg.PriceChangeActive && deal.TakeProfitTrigger != nil && close >= *deal.TakeProfitTrigger {
		events = append(events, k.closeDeal(st, row, *deal.TakeProfitTrigger, ActionTakeProfitExit, ""))
		return events
	}

	// f. Safety-order ladder.
	if k.cfg.SafetyOrderToggle && deal.PlacedSOCount < k.cfg.MaxSafetyOrdersCount {
		if len(k.cfg.SafetyConditions) == 0 || indicator.EvalAll(row, prevRow, k.cfg.SafetyConditions) {
			events = append(events, k.fillSafetyLadder(deal, row, close)...)
		}
	}

	return events
}

// fillSafetyLadder executes every safety-order tranche the current close
// triggers in this bar, iterating the geometric ladder.
func (k *Kernel) fillSafetyLadder(deal *Deal, row *data.Row, close float64) []TradeEvent {
	var events []TradeEvent
	for deal.PlacedSOCount < k.cfg.MaxSafetyOrdersCount {
		trigger := deal.LastSOPrice * (1 - k.priceDeviation*deal.SODevFactor)
		if close > trigger {
			break
		}
		deal.LastSOSize *= k.cfg.SafetyOrderVolumeScale
		fillPrice := close
		qtyAdded := deal.LastSOSize / fillPrice

		deal.Quantity += qtyAdded
		deal.TotalCost += deal.LastSOSize
		deal.PlacedSOCount++
		deal.LastSOPrice = fillPrice
		deal.SODevFactor *= k.cfg.SafetyOrderStepScale
		deal.NextSOTriggerPrice = deal.LastSOPrice * (1 - k.priceDeviation*deal.SODevFactor)

		if k.cfg.TakeProfitType == config.TakeProfitPercentageTotal {
			k.recomputeTakeProfit(deal)
		}

		k.freeCash -= deal.LastSOSize * (1 + k.fee)
		k.positions[row.Symbol] += qtyAdded

		events = append(events, TradeEvent{
			Timestamp:   row.Timestamp,
			Symbol:      row.Symbol,
			Action:      SafetyOrderAction(deal.PlacedSOCount),
			Price:       fillPrice,
			Quantity:    qtyAdded,
			Amount:      deal.LastSOSize,
			TotalAmount: deal.TotalCost,
			TradeID:     deal.TradeID,
		})
	}
	return events
}

func (k *Kernel) recomputeTakeProfit(deal *Deal) {
	avg := deal.TotalCost / deal.Quantity
	switch k.cfg.TakeProfitType {
	case config.TakeProfitPercentageTotal:
		trig := avg * (1 + k.targetProfit)
		deal.TakeProfitTrigger = &trig
	case config.TakeProfitPercentageBase:
		if deal.TakeProfitTrigger == nil {
			trig := deal.EntryPrice * (1 + k.targetProfit)
			deal.TakeProfitTrigger = &trig
		}
	}
}

// closeDeal terminates the active deal at price, crediting the proceeds to
// free cash and the realized PnL to the kernel's real balance. The kernel
// keeps no risk-notional balance; the accountant applies the
// reinvest/risk-reduction nudge on exit.
func (k *Kernel) closeDeal(st *symbolState, row *data.Row, price float64, action, comment string) TradeEvent {
	deal := st.deal
	proceeds := price * deal.Quantity * (1 - k.fee)
	profitLoss := proceeds - deal.TotalCost
	profitPct := profitLoss / deal.TotalCost

	k.freeCash += proceeds
	k.positions[row.Symbol] -= deal.Quantity
	k.realBalance += profitLoss

	st.hasLastClose = true
	st.lastCloseTime = row.Timestamp
	st.deal = nil

	return TradeEvent{
		Timestamp:     row.Timestamp,
		Symbol:        row.Symbol,
		Action:        action,
		Price:         price,
		Quantity:      deal.Quantity,
		Amount:        proceeds,
		TotalAmount:   deal.TotalCost,
		ProfitPercent: profitPct,
		MoveFromEntry: (price - deal.EntryPrice) / deal.EntryPrice,
		TradeComment:  comment,
		TradeID:       deal.TradeID,
	}
}

// drainCandidates runs the Admission Controller over the buffered entry
// candidates, sorting by ascending close and admitting up to the
// remaining global slot count.
func (k *Kernel) drainCandidates() []TradeEvent {
	cands := k.candidates
	k.candidates = nil

	sort.SliceStable(cands, func(i, j int) bool {
		ci, _ := k.closeOf(cands[i].row)
		cj, _ := k.closeOf(cands[j].row)
		return ci < cj
	})

	open := 0
	for _, st := range k.states {
		if st.deal != nil {
			open++
		}
	}
	slots := k.cfg.MaxActiveDeals - open
	if slots <= 0 {
		return nil
	}

	var events []TradeEvent
	for _, c := range cands {
		if slots <= 0 {
			break
		}
		row := c.row
		st := k.states[row.Symbol]
		if st.deal != nil {
			continue // a same-timestamp later candidate for a symbol that already got in this barrier
		}
		entryPrice, ok := k.closeOf(row)
		if !ok || entryPrice <= 0 {
			continue
		}
		k.tradeCounter++
		qty := k.cfg.BaseOrderSize / entryPrice
		deal := &Deal{
			TradeID:     fmt.Sprintf("%d-%s", k.tradeCounter, row.Symbol),
			EntryPrice:  entryPrice,
			Quantity:    qty,
			TotalCost:   k.cfg.BaseOrderSize,
			LastSOPrice: entryPrice,
			LastSOSize:  k.cfg.SafetyOrderSize,
			SODevFactor: 1,
			TimeOpened:  row.Timestamp,
		}
		if k.cfg.StopLossToggle {
			sl := entryPrice * (1 - k.stopLossValue)
			deal.StopLossTrigger = &sl
		}
		k.recomputeTakeProfit(deal)
		deal.NextSOTriggerPrice = deal.LastSOPrice * (1 - k.priceDeviation*deal.SODevFactor)

		k.freeCash -= qty * entryPrice * (1 + k.fee)
		k.positions[row.Symbol] += qty
		st.deal = deal
		slots--

		events = append(events, TradeEvent{
			Timestamp:   row.Timestamp,
			Symbol:      row.Symbol,
			Action:      ActionBuy,
			Price:       entryPrice,
			Quantity:    qty,
			Amount:      k.cfg.BaseOrderSize,
			TotalAmount: k.cfg.BaseOrderSize,
			TradeID:     deal.TradeID,
		})
	}
	return events
}
