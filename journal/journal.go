// journal/journal.go
package journal

import "time"

// TradeRecord is written once per closed position.
type TradeRecord struct {
	ID             string
	Symbol         string
	Side           string
	LotSize        float64
	EntryPrice     float64
	ExitPrice      float64
	OpenTime       time.Time
	CloseTime      time.Time
	Commission     float64
	Swap           float64
	RealizedProfit float64
	Reason         string
}

// EquitySnapshot is written after every account mutation batch.
type EquitySnapshot struct {
	Time          time.Time
	Balance       float64
	Equity        float64
	OpenPositions int
	UnrealizedPL  float64
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Nop discards all records. Used when journaling is disabled and in tests
// that do not care about persistence.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }
