package indicator

import "github.com/riverglen/backreplay/internal/data"

// Eval evaluates a single predicate against (row, prev). prev may be nil
// (first row seen for a symbol), in which case any crossing-family operator
// deterministically fails — there is no prior value to cross from.
//
// Bar-close gating happens here, ahead of the family dispatch: if the
// predicate's timeframe carries a Bar_Close flag on this row and that flag
// is false, the predicate fails without inspecting any indicator column.
func Eval(row, prev *data.Row, p *Predicate) bool {
	if !row.Closed(p.Timeframe) {
		return false
	}
	if prev == nil && crossingOperators[p.Operator] {
		return false
	}
	switch p.Family {
	case FamilyRSI:
		return evalThresholdCrossing(row, prev, p)
	case FamilyMA:
		return evalMA(row, prev, p)
	case FamilyBollingerBands:
		return evalBollinger(row, p)
	case FamilyMACD:
		return evalMACD(row, prev, p)
	case FamilyStochastic:
		return evalStochastic(row, prev, p)
	case FamilyParabolicSAR:
		return evalPSAR(row, prev, p)
	case FamilyHeikenAshi:
		return evalHeikenAshi(row, p)
	case FamilyTradingView:
		return evalTradingView(row, p)
	default:
		return false
	}
}

// EvalAll is the conjunction of a predicate list: true iff every predicate
// evaluates true. Callers decide separately what an empty list means for
// their context — EvalAll itself just folds with AND.
func EvalAll(row, prev *data.Row, preds []Predicate) bool {
	for i := range preds {
		if !Eval(row, prev, &preds[i]) {
			return false
		}
	}
	return true
}

// evalThresholdCrossing covers families with a single numeric column
// compared to a threshold: RSI and (when used as a plain threshold check)
// others share this shape via idxA/Threshold.
func evalThresholdCrossing(row, prev *data.Row, p *Predicate) bool {
	v, ok := row.At(p.idxA)
	if !ok || p.Threshold == nil {
		return false
	}
	switch p.Operator {
	case OpLessThan:
		return v < *p.Threshold
	case OpGreaterThan:
		return v > *p.Threshold
	case OpCrossingUp:
		pv, pok := prev.At(p.idxA)
		return pok && pv <= *p.Threshold && v > *p.Threshold
	case OpCrossingDown:
		pv, pok := prev.At(p.idxA)
		return pok && pv >= *p.Threshold && v < *p.Threshold
	default:
		return false
	}
}

func evalMA(row, prev *data.Row, p *Predicate) bool {
	fast, fok := row.At(p.idxA)
	slow, sok := row.At(p.idxB)
	if !fok || !sok {
		return false
	}
	switch p.Operator {
	case OpLessThan:
		return fast < slow
	case OpGreaterThan:
		return fast > slow
	case OpCrossingUp:
		pf, pfok := prev.At(p.idxA)
		ps, psok := prev.At(p.idxB)
		return pfok && psok && pf <= ps && fast > slow
	case OpCrossingDown:
		pf, pfok := prev.At(p.idxA)
		ps, psok := prev.At(p.idxB)
		return pfok && psok && pf >= ps && fast < slow
	default:
		return false
	}
}

func evalBollinger(row *data.Row, p *Predicate) bool {
	v, ok := row.At(p.idxA)
	if !ok || p.Threshold == nil {
		return false
	}
	switch p.Operator {
	case OpLessThan:
		return v < *p.Threshold
	case OpGreaterThan:
		return v > *p.Threshold
	default:
		return false
	}
}

func evalMACD(row, prev *data.Row, p *Predicate) bool {
	m, mok := row.At(p.idxA)
	s, sok := row.At(p.idxB)
	if !mok || !sok {
		return false
	}
	var crossed bool
	switch p.Operator {
	case OpCrossingUp:
		pm, pmok := prev.At(p.idxA)
		ps, psok := prev.At(p.idxB)
		crossed = pmok && psok && pm <= ps && m > s
	case OpCrossingDown:
		pm, pmok := prev.At(p.idxA)
		ps, psok := prev.At(p.idxB)
		crossed = pmok && psok && pm >= ps && m < s
	default:
		return false
	}
	if !crossed {
		return false
	}
	if p.MACD != nil && p.MACD.ZeroLineFilter != nil {
		switch *p.MACD.ZeroLineFilter {
		case "above":
			return m > 0
		case "below":
			return m < 0
		}
	}
	return true
}

func evalStochastic(row, prev *data.Row, p *Predicate) bool {
	k, kok := row.At(p.idxA)
	if !kok {
		return false
	}
	switch p.Operator {
	case OpLessThan:
		return p.Threshold != nil && k < *p.Threshold
	case OpGreaterThan:
		return p.Threshold != nil && k > *p.Threshold
	case OpKxDUp:
		d, dok := row.At(p.idxB)
		pk, pkok := prev.At(p.idxA)
		pd, pdok := prev.At(p.idxB)
		return dok && pkok && pdok && pk <= pd && k > d
	case OpKxDDown:
		d, dok := row.At(p.idxB)
		pk, pkok := prev.At(p.idxA)
		pd, pdok := prev.At(p.idxB)
		return dok && pkok && pdok && pk >= pd && k < d
	default:
		return false
	}
}

func evalPSAR(row, prev *data.Row, p *Predicate) bool {
	psar, pok := row.At(p.idxA)
	if !pok {
		return false
	}
	switch p.Operator {
	case OpLessThan:
		return p.Threshold != nil && psar < *p.Threshold
	case OpGreaterThan:
		return p.Threshold != nil && psar > *p.Threshold
	case OpCrossingLong:
		close, cok := row.At(p.closeIdx)
		prevClose, pcok := prev.At(p.closeIdx)
		prevPSAR, ppok := prev.At(p.idxA)
		return cok && pcok && ppok && prevClose <= prevPSAR && close > psar
	case OpCrossingShort:
		close, cok := row.At(p.closeIdx)
		prevClose, pcok := prev.At(p.closeIdx)
		prevPSAR, ppok := prev.At(p.idxA)
		return cok && pcok && ppok && prevClose >= prevPSAR && close < psar
	default:
		return false
	}
}

func evalHeikenAshi(row *data.Row, p *Predicate) bool {
	v, ok := row.At(p.idxA)
	if !ok || p.Threshold == nil {
		return false
	}
	switch p.Operator {
	case OpLessThan:
		return v < *p.Threshold
	case OpGreaterThan:
		return v > *p.Threshold
	default:
		return false
	}
}

func evalTradingView(row *data.Row, p *Predicate) bool {
	actual, ok := row.Str(p.strCol)
	if !ok || actual == "" || p.TradingView == nil || p.TradingView.Rating == "" {
		return false
	}
	return matchesRating(actual, p.TradingView.Rating)
}

// matchesRating implements the synonym rule: {"Buy", "Strong Buy"} both
// satisfy a wanted rating of "Buy"; every other wanted rating (including
// "Strong Buy" itself) requires exact equality.
func matchesRating(actual, want string) bool {
	if want == "Buy" {
		return actual == "Buy" || actual == "Strong Buy"
	}
	return actual == want
}
