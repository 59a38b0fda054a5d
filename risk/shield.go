package risk

import (
	"fmt"
	"sync"
)

// Settings is the mutable risk policy. It is only changed through Update;
// the Shield reads it on every gate check.
type Settings struct {
	MaxDailyDrawdown float64 `json:"maxDailyDrawdown" yaml:"max_daily_drawdown"`
	MaxOpenPositions int     `json:"maxOpenPositions" yaml:"max_open_positions"`
	MaxRiskPerTrade  float64 `json:"maxRiskPerTrade" yaml:"max_risk_per_trade"`
	TradingEnabled   bool    `json:"tradingEnabled" yaml:"trading_enabled"`
}

// DefaultSettings is a conservative starting policy.
func DefaultSettings() Settings {
	return Settings{
		MaxDailyDrawdown: 500,
		MaxOpenPositions: 5,
		MaxRiskPerTrade:  2,
		TradingEnabled:   true,
	}
}

// Partial is a settings patch. Nil fields are left unchanged by Update.
type Partial struct {
	MaxDailyDrawdown *float64 `json:"maxDailyDrawdown,omitempty"`
	MaxOpenPositions *int     `json:"maxOpenPositions,omitempty"`
	MaxRiskPerTrade  *float64 `json:"maxRiskPerTrade,omitempty"`
	TradingEnabled   *bool    `json:"tradingEnabled,omitempty"`
}

// DailyStats are the gate inputs, derived from the ledger by the caller:
// realized P/L of trades closed today plus the current open count. They are
// recomputed per check, never stored.
type DailyStats struct {
	ProfitLoss    float64 `json:"profitLoss"`
	OpenPositions int     `json:"openPositions"`
}

// Kind tags a rejection so callers can branch without matching message text.
type Kind string

const (
	TradingDisabled     Kind = "TRADING_DISABLED"
	MaxPositionsReached Kind = "MAX_POSITIONS_REACHED"
	DrawdownExceeded    Kind = "DRAWDOWN_EXCEEDED"
)

// Rejection is a structured gate refusal. Limit carries the bound that was
// hit for MaxPositionsReached and DrawdownExceeded.
type Rejection struct {
	Kind  Kind    `json:"kind"`
	Limit float64 `json:"limit,omitempty"`
}

func (r *Rejection) Error() string {
	switch r.Kind {
	case TradingDisabled:
		return "trading is disabled by risk settings"
	case MaxPositionsReached:
		return fmt.Sprintf("maximum open positions reached (limit %d)", int(r.Limit))
	case DrawdownExceeded:
		return fmt.Sprintf("daily drawdown limit exceeded (limit %.2f)", r.Limit)
	default:
		return "trade rejected"
	}
}

// Shield gates order requests against the current policy and the day's
// ledger-derived statistics.
type Shield struct {
	mu       sync.RWMutex
	settings Settings
}

func NewShield(s Settings) *Shield {
	return &Shield{settings: s}
}

// Settings returns the current policy.
func (s *Shield) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update merges a partial patch into the policy and returns the merged
// settings so the caller can broadcast them.
func (s *Shield) Update(p Partial) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.MaxDailyDrawdown != nil {
		s.settings.MaxDailyDrawdown = *p.MaxDailyDrawdown
	}
	if p.MaxOpenPositions != nil {
		s.settings.MaxOpenPositions = *p.MaxOpenPositions
	}
	if p.MaxRiskPerTrade != nil {
		s.settings.MaxRiskPerTrade = *p.MaxRiskPerTrade
	}
	if p.TradingEnabled != nil {
		s.settings.TradingEnabled = *p.TradingEnabled
	}
	return s.settings
}

// Replace swaps in a whole new policy and returns it.
func (s *Shield) Replace(settings Settings) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return s.settings
}

// Check evaluates the gate in strict order: trading switch, position count,
// daily drawdown. Returns nil when the order may proceed.
func (s *Shield) Check(stats DailyStats) *Rejection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.settings.TradingEnabled {
		return &Rejection{Kind: TradingDisabled}
	}
	if stats.OpenPositions >= s.settings.MaxOpenPositions {
		return &Rejection{Kind: MaxPositionsReached, Limit: float64(s.settings.MaxOpenPositions)}
	}
	if stats.ProfitLoss <= -s.settings.MaxDailyDrawdown {
		return &Rejection{Kind: DrawdownExceeded, Limit: s.settings.MaxDailyDrawdown}
	}
	return nil
}
