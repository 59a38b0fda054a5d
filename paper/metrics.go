package paper

import "time"

// Metrics is derived from ledger state on demand. Nothing here is an
// incrementally-maintained counter: a missed update can never make these
// figures drift from the history they summarize.
type Metrics struct {
	InitialBalance    float64 `json:"initialBalance"`
	Balance           float64 `json:"balance"`
	Equity            float64 `json:"equity"`
	ProfitLoss        float64 `json:"profitLoss"`
	ProfitLossPercent float64 `json:"profitLossPercent"`

	TotalTrades int     `json:"totalTrades"`
	Winners     int     `json:"winners"`
	Losers      int     `json:"losers"`
	WinRate     float64 `json:"winRate"`

	TotalProfit  float64 `json:"totalProfit"`
	GrossProfit  float64 `json:"grossProfit"`
	GrossLoss    float64 `json:"grossLoss"`
	AvgWin       float64 `json:"avgWin"`
	AvgLoss      float64 `json:"avgLoss"`
	ProfitFactor float64 `json:"profitFactor"`

	OpenPositions int     `json:"openPositions"`
	UnrealizedPL  float64 `json:"unrealizedPL"`
}

// EquityPoint is one sample on the realized equity curve.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// Metrics computes performance figures from the closed history and, for
// unrealized numbers, the open positions.
func (e *Engine) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := Metrics{
		InitialBalance: e.acct.InitialBalance,
		Balance:        e.acct.Balance,
		Equity:         e.acct.Equity,
		TotalTrades:    len(e.history),
		OpenPositions:  len(e.open),
	}

	m.ProfitLoss = e.acct.Balance - e.acct.InitialBalance
	if e.acct.InitialBalance != 0 {
		m.ProfitLossPercent = m.ProfitLoss / e.acct.InitialBalance * 100
	}

	for _, t := range e.history {
		m.TotalProfit += t.RealizedProfit
		switch {
		case t.RealizedProfit > 0:
			m.Winners++
			m.GrossProfit += t.RealizedProfit
		case t.RealizedProfit < 0:
			m.Losers++
			m.GrossLoss += -t.RealizedProfit
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.Winners) / float64(m.TotalTrades) * 100
	}
	if m.Winners > 0 {
		m.AvgWin = m.GrossProfit / float64(m.Winners)
	}
	if m.Losers > 0 {
		m.AvgLoss = m.GrossLoss / float64(m.Losers)
	}
	if m.GrossLoss == 0 {
		m.ProfitFactor = m.GrossProfit
	} else {
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	}

	for _, p := range e.open {
		m.UnrealizedPL += p.UnrealizedProfit
	}

	return m
}

// EquityCurve returns the realized equity after each closed trade, starting
// from the initial balance and ending at current equity.
func (e *Engine) EquityCurve() []EquityPoint {
	e.mu.Lock()
	defer e.mu.Unlock()

	// The first point predates every trade: the engine start, or the
	// earliest open in history when trades were carried from before it.
	start := e.start
	for _, t := range e.history {
		if t.OpenTime.Before(start) {
			start = t.OpenTime
		}
	}

	points := make([]EquityPoint, 0, len(e.history)+2)
	points = append(points, EquityPoint{Time: start, Equity: e.acct.InitialBalance})

	running := e.acct.InitialBalance
	for _, t := range e.history {
		running += t.RealizedProfit
		points = append(points, EquityPoint{Time: t.CloseTime, Equity: running})
	}

	points = append(points, EquityPoint{Time: e.now(), Equity: e.acct.Equity})
	return points
}
