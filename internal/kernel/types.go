// Package kernel implements the deterministic simulation kernel: the
// per-symbol deal state machine and the admission controller that gates
// new deals across symbols at each timestamp barrier.
package kernel

import "time"

// Action names every kind of trade-journal entry the kernel can emit.
// HOUR CHECK is a heartbeat, not a trade.
const (
	ActionBuy            = "BUY"
	ActionSell           = "SELL"
	ActionStopLossExit   = "Stop Loss EXIT"
	ActionTakeProfitExit = "Take Profit EXIT"
	ActionTimeoutExit    = "Timeout EXIT"
	ActionHourCheck      = "HOUR CHECK"
)

// SafetyOrderAction formats the nth safety order fill's action label.
func SafetyOrderAction(n int) string {
	return "Safety Order #" + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// TradeEvent is the append-only record the kernel's first pass produces.
// It carries no cash/position bookkeeping — that belongs solely to
// the accountant's second pass.
type TradeEvent struct {
	Timestamp     time.Time
	Symbol        string
	Action        string
	Price         float64
	Quantity      float64
	Amount        float64
	TotalAmount   float64
	ProfitPercent float64
	MoveFromEntry float64
	TradeComment  string
	TradeID       string
}

// Deal is one open long position in one instrument.
type Deal struct {
	TradeID            string
	EntryPrice         float64
	Quantity           float64
	TotalCost          float64
	PlacedSOCount      int
	LastSOPrice        float64
	LastSOSize         float64
	SODevFactor        float64
	NextSOTriggerPrice float64
	StopLossTrigger    *float64
	TakeProfitTrigger  *float64
	TimeOpened         time.Time
}
