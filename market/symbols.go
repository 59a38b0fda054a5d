// Package market holds per-symbol metadata and the latest-price store shared
// by the engine and the server.
package market

import (
	"math"
	"strings"
)

type SymbolMeta struct {
	Name          string
	BaseCurrency  string
	QuoteCurrency string
	PipLocation   int
	DisplayDigits int
}

var Symbols = map[string]SymbolMeta{
	"EURUSD": {
		Name:          "EURUSD",
		BaseCurrency:  "EUR",
		QuoteCurrency: "USD",
		PipLocation:   -4,
		DisplayDigits: 5,
	},
	"GBPUSD": {
		Name:          "GBPUSD",
		BaseCurrency:  "GBP",
		QuoteCurrency: "USD",
		PipLocation:   -4,
		DisplayDigits: 5,
	},
	"USDJPY": {
		Name:          "USDJPY",
		BaseCurrency:  "USD",
		QuoteCurrency: "JPY",
		PipLocation:   -2,
		DisplayDigits: 2,
	},
	"AUDUSD": {
		Name:          "AUDUSD",
		BaseCurrency:  "AUD",
		QuoteCurrency: "USD",
		PipLocation:   -4,
		DisplayDigits: 5,
	},
	"USDCHF": {
		Name:          "USDCHF",
		BaseCurrency:  "USD",
		QuoteCurrency: "CHF",
		PipLocation:   -4,
		DisplayDigits: 5,
	},
	"USDCAD": {
		Name:          "USDCAD",
		BaseCurrency:  "USD",
		QuoteCurrency: "CAD",
		PipLocation:   -4,
		DisplayDigits: 5,
	},
}

// PipSize returns the minimal meaningful price increment for a symbol.
// JPY-quoted pairs use 0.01, everything else 0.0001. Unknown symbols fall
// back to suffix detection so tick handling never fails on a new pair.
func PipSize(symbol string) float64 {
	if meta, ok := Symbols[symbol]; ok {
		return math.Pow(10, float64(meta.PipLocation))
	}
	if strings.HasSuffix(symbol, "JPY") {
		return 0.01
	}
	return 0.0001
}

// Known reports whether the symbol has registered metadata.
func Known(symbol string) bool {
	_, ok := Symbols[symbol]
	return ok
}
