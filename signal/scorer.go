// Package signal scores trade ideas produced by an upstream analysis layer.
// The score fuses weighted sub-scores into a 0-100 verification level; only
// HIGH-level signals are candidates for execution.
package signal

import (
	"math"
	"time"

	"github.com/fxlab/papertrader/market"
)

const (
	TrendUp   = "Upward"
	TrendDown = "Downward"
)

// Verification levels by score band.
const (
	LevelHigh   = "HIGH"   // score >= 80
	LevelMedium = "MEDIUM" // 50 <= score < 80
	LevelLow    = "LOW"
)

// VerifiedThreshold is the score at which a signal counts as verified.
const VerifiedThreshold = 80

// Indicators is the technical snapshot attached to a signal. It is produced
// upstream; the scorer only reads it.
type Indicators struct {
	Trend    string  `json:"trend"`
	RSI      float64 `json:"rsi"`
	MACDHist float64 `json:"macdHist"`
	ATR      float64 `json:"atr"`
}

// Signal is a trade idea plus its indicator snapshot.
type Signal struct {
	Symbol     string     `json:"symbol"`
	Action     string     `json:"action"` // "BUY" or "SELL"
	Price      float64    `json:"price"`
	StopLoss   float64    `json:"sl"`
	TakeProfit float64    `json:"tp"`
	Confidence float64    `json:"confidence"` // [0,1] from the upstream model
	Indicators Indicators `json:"indicators"`
}

// Breakdown shows how each component contributed to the total.
type Breakdown struct {
	Technical int `json:"technical"` // max 40
	AI        int `json:"ai"`        // max 30
	Risk      int `json:"risk"`      // max 20
	Market    int `json:"market"`    // max 10
}

type Verification struct {
	Score     int       `json:"score"`
	Level     string    `json:"level"`
	Breakdown Breakdown `json:"breakdown"`
	Verified  bool      `json:"verified"`
	Timestamp time.Time `json:"timestamp"`
}

// Score computes the verification for a signal. Every component is
// deterministic: the same signal always produces the same score.
func Score(sig Signal) Verification {
	b := Breakdown{
		Technical: technicalScore(sig),
		AI:        aiScore(sig.Confidence),
		Risk:      riskRewardScore(sig),
		Market:    marketScore(sig),
	}

	score := b.Technical + b.AI + b.Risk + b.Market
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	level := LevelLow
	switch {
	case score >= VerifiedThreshold:
		level = LevelHigh
	case score >= 50:
		level = LevelMedium
	}

	return Verification{
		Score:     score,
		Level:     level,
		Breakdown: b,
		Verified:  score >= VerifiedThreshold,
		Timestamp: time.Now().UTC(),
	}
}

// technicalScore awards up to 40 points: 20 for trend alignment, 10 for RSI
// sitting in the expected extreme, and up to 10 for momentum confirmation.
func technicalScore(sig Signal) int {
	score := 0

	wantTrend := TrendDown
	if sig.Action == "BUY" {
		wantTrend = TrendUp
	}
	if sig.Indicators.Trend == wantTrend {
		score += 20
	}

	rsi := sig.Indicators.RSI
	if (sig.Action == "BUY" && rsi < 40) || (sig.Action == "SELL" && rsi > 60) {
		score += 10
	}

	score += momentumScore(sig)
	return score
}

// momentumScore confirms direction with the MACD histogram, scaled by its
// magnitude relative to ATR so the measure is comparable across symbols.
// A histogram of 0.4 ATR or more in the trade direction earns the full 10.
func momentumScore(sig Signal) int {
	hist := sig.Indicators.MACDHist
	atr := sig.Indicators.ATR
	if atr <= 0 {
		return 0
	}

	aligned := (sig.Action == "BUY" && hist > 0) || (sig.Action == "SELL" && hist < 0)
	if !aligned {
		return 0
	}

	pts := floorPts(math.Abs(hist) / atr * 25)
	if pts > 10 {
		pts = 10
	}
	return pts
}

// floorPts floors a float sub-score with a small guard so values that are a
// rounding error shy of an integer band edge land on the intended point.
func floorPts(x float64) int {
	return int(math.Floor(x + 1e-9))
}

// aiScore maps the model confidence onto its 30-point share.
func aiScore(confidence float64) int {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return floorPts(confidence * 0.3 * 100)
}

// riskRewardScore awards up to 20 points from the expected reward-to-risk
// ratio. A 3:1 trade earns the full 20; the score scales linearly below that.
func riskRewardScore(sig Signal) int {
	riskDist := math.Abs(sig.Price - sig.StopLoss)
	rewardDist := math.Abs(sig.TakeProfit - sig.Price)
	if riskDist == 0 || rewardDist == 0 {
		return 0
	}

	rr := rewardDist / riskDist
	pts := floorPts(rr / 3.0 * 20)
	if pts > 20 {
		pts = 20
	}
	return pts
}

// marketScore awards up to 10 points from the volatility regime, measured as
// ATR in pips. A tradeable middle band scores best; dead or chaotic markets
// score low.
func marketScore(sig Signal) int {
	atr := sig.Indicators.ATR
	if atr <= 0 {
		return 0
	}

	atrPips := atr / market.PipSize(sig.Symbol)
	switch {
	case atrPips < 5: // too quiet, spread dominates
		return 3
	case atrPips <= 30: // healthy regime for intraday entries
		return 10
	case atrPips <= 60: // elevated, still workable
		return 6
	default: // news-driven chop
		return 2
	}
}
