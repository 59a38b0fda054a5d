package paper

import "time"

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Close reasons recorded on a ClosedTrade. Stop-loss and take-profit strings
// match the wire format consumed by dashboards.
const (
	ReasonStopLoss   = "Stop Loss Hit"
	ReasonTakeProfit = "Take Profit Hit"
	ReasonManual     = "Manual Close"
	ReasonCloseAll   = "Close All"
)

// Position is a single open trade. It is created by Open, marked to market
// on every tick for its symbol, and moved to history exactly once by close.
type Position struct {
	ID               string    `json:"id"`
	Symbol           string    `json:"symbol"`
	Side             Side      `json:"action"`
	LotSize          float64   `json:"lotSize"`
	EntryPrice       float64   `json:"entryPrice"`
	StopLoss         float64   `json:"sl"`
	TakeProfit       float64   `json:"tp"`
	OpenTime         time.Time `json:"openTime"`
	Commission       float64   `json:"commission"`
	Swap             float64   `json:"swap"`
	Status           string    `json:"status"`
	Pips             float64   `json:"pips"`
	UnrealizedProfit float64   `json:"profit"`
}

// ClosedTrade is a Position after close. It is never mutated again.
type ClosedTrade struct {
	Position
	ExitPrice      float64   `json:"exitPrice"`
	CloseTime      time.Time `json:"closeTime"`
	CloseReason    string    `json:"closeReason"`
	RealizedProfit float64   `json:"realizedProfit"`
}

// Account is the aggregate the engine owns. Equity always equals balance
// plus the sum of open positions' unrealized profit.
type Account struct {
	ID             string  `json:"id"`
	Currency       string  `json:"currency"`
	InitialBalance float64 `json:"initialBalance"`
	Balance        float64 `json:"balance"`
	Equity         float64 `json:"equity"`
}

// OrderRequest is a request to open a new position at the quoted price.
// The actual fill applies slippage and spread on top.
type OrderRequest struct {
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"action"`
	Price      float64 `json:"price"`
	LotSize    float64 `json:"lotSize"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
}

func (p *Position) hitStopLoss(price float64) bool {
	if p.StopLoss == 0 {
		return false
	}
	if p.Side == Buy {
		return price <= p.StopLoss
	}
	return price >= p.StopLoss
}

func (p *Position) hitTakeProfit(price float64) bool {
	if p.TakeProfit == 0 {
		return false
	}
	if p.Side == Buy {
		return price >= p.TakeProfit
	}
	return price <= p.TakeProfit
}
