package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/fxlab/papertrader/market"
	"github.com/fxlab/papertrader/paper"
	"github.com/fxlab/papertrader/risk"
	"github.com/fxlab/papertrader/signal"
)

// Event names on the wire.
const (
	// inbound
	EventOpenPosition  = "open-position"
	EventClosePosition = "close-position"
	EventCloseAll      = "close-all-positions"
	EventPriceTick     = "price-tick"
	EventUpdateRisk    = "update-risk-settings"
	EventVerifySignal  = "verify-signal"

	// outbound
	EventTradeExecuted  = "trade-executed"
	EventTradeRejected  = "trade-rejected"
	EventPositionClosed = "position-closed"
	EventRiskStats      = "risk-stats-update"
	EventRiskSettings   = "risk-settings-updated"
	EventSignalVerified = "signal-verified"
)

// Emitter receives outbound events. The websocket hub implements it in
// production; tests use a recorder.
type Emitter interface {
	Emit(event string, payload any)
}

// ClosePositionRequest asks for an explicit close at the given price.
type ClosePositionRequest struct {
	ID        string  `json:"id"`
	ExitPrice float64 `json:"exitPrice"`
	Reason    string  `json:"reason,omitempty"`
}

// OpenResult is returned to direct callers of OpenPosition.
type OpenResult struct {
	Success bool            `json:"success"`
	Trade   *paper.Position `json:"trade,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Kind    risk.Kind       `json:"kind,omitempty"`
}

// CloseResult is returned to direct callers of ClosePosition.
type CloseResult struct {
	Success  bool               `json:"success"`
	Position *paper.ClosedTrade `json:"position,omitempty"`
	Reason   string             `json:"reason,omitempty"`
}

type rejectedPayload struct {
	Reason string    `json:"reason"`
	Kind   risk.Kind `json:"kind,omitempty"`
	Limit  float64   `json:"limit,omitempty"`
}

type verifiedPayload struct {
	Signal       signal.Signal       `json:"signal"`
	Verification signal.Verification `json:"verification"`
}

// Gateway wires the engine, the risk shield and the emitter together. It is
// the single entry point for collaborator operations, so the risk gate and
// the execution path always see the same ordering.
type Gateway struct {
	engine *paper.Engine
	shield *risk.Shield
	emit   Emitter
	prices *market.TickStore
	log    zerolog.Logger
}

func NewGateway(engine *paper.Engine, shield *risk.Shield, emit Emitter, log zerolog.Logger) *Gateway {
	gw := &Gateway{
		engine: engine,
		shield: shield,
		emit:   emit,
		prices: market.NewTickStore(),
		log:    log,
	}
	engine.SetCloseListener(gw)
	return gw
}

// Prices exposes the last seen tick per symbol.
func (gw *Gateway) Prices() *market.TickStore {
	return gw.prices
}

// OnPositionClosed forwards engine-driven closes (stop-loss, take-profit,
// manual) to subscribers and refreshes the daily risk statistics.
func (gw *Gateway) OnPositionClosed(trade paper.ClosedTrade) {
	gw.emit.Emit(EventPositionClosed, trade)
	gw.emitRiskStats()
}

// OpenPosition gates the request against the risk shield and forwards it to
// the execution simulator as one serialized step: the shield sees the exact
// ledger state the fill acts on, so concurrent requests cannot both pass a
// limit that only admits one. Every rejection, from policy or margin, is
// published as a trade-rejected event.
func (gw *Gateway) OpenPosition(req paper.OrderRequest) OpenResult {
	pos, err := gw.engine.OpenGated(req, gw.gate)
	return gw.openResult(req, pos, err)
}

// OpenPositionAfter schedules a deferred fill through the same gated path,
// evaluated against the ledger state when the latency elapses. The done
// callback receives the outcome after the usual events have been emitted.
func (gw *Gateway) OpenPositionAfter(req paper.OrderRequest, latency time.Duration, done func(OpenResult)) *time.Timer {
	return gw.engine.OpenAfter(req, latency, gw.gate, func(pos *paper.Position, err error) {
		res := gw.openResult(req, pos, err)
		if done != nil {
			done(res)
		}
	})
}

// gate adapts the risk shield to the engine's pre-fill hook. It runs under
// the account lock.
func (gw *Gateway) gate(profitLoss float64, openPositions int) error {
	if rej := gw.shield.Check(risk.DailyStats{ProfitLoss: profitLoss, OpenPositions: openPositions}); rej != nil {
		return rej
	}
	return nil
}

func (gw *Gateway) openResult(req paper.OrderRequest, pos *paper.Position, err error) OpenResult {
	if err != nil {
		var rej *risk.Rejection
		switch {
		case errors.As(err, &rej):
			gw.log.Warn().Str("kind", string(rej.Kind)).Str("symbol", req.Symbol).Msg("order rejected by risk shield")
			gw.emit.Emit(EventTradeRejected, rejectedPayload{Reason: rej.Error(), Kind: rej.Kind, Limit: rej.Limit})
			return OpenResult{Success: false, Reason: rej.Error(), Kind: rej.Kind}
		case errors.Is(err, paper.ErrInsufficientMargin):
			gw.emit.Emit(EventTradeRejected, rejectedPayload{Reason: err.Error()})
			return OpenResult{Success: false, Reason: err.Error()}
		default:
			// Journal failure after commit: the fill stands, report upward.
			gw.log.Error().Err(err).Msg("journal write failed after open")
		}
	}

	gw.emit.Emit(EventTradeExecuted, pos)
	gw.emitRiskStats()
	return OpenResult{Success: true, Trade: pos}
}

// ClosePosition settles an open position at the supplied exit price.
func (gw *Gateway) ClosePosition(req ClosePositionRequest) CloseResult {
	ct, err := gw.engine.Close(req.ID, req.ExitPrice, req.Reason)
	if err != nil {
		if errors.Is(err, paper.ErrPositionNotFound) {
			return CloseResult{Success: false, Reason: err.Error()}
		}
		gw.log.Error().Err(err).Msg("journal write failed after close")
	}
	// The close listener has already emitted position-closed.
	return CloseResult{Success: true, Position: &ct}
}

// CloseAllPositions settles every open position at its symbol's last seen
// tick price. Positions on symbols with no recorded tick stay open.
func (gw *Gateway) CloseAllPositions() []paper.ClosedTrade {
	closed := gw.engine.CloseAll(gw.prices.Snapshot())
	gw.log.Info().Int("closed", len(closed)).Msg("close all positions")
	// The close listener has already emitted position-closed per trade.
	return closed
}

// PriceTick records the tick and drives mark-to-market and trigger
// evaluation. Closes that result are published through the close listener.
func (gw *Gateway) PriceTick(t market.Tick) {
	gw.prices.Set(t)
	if err := gw.engine.Tick(t.Symbol, t.Price); err != nil {
		gw.log.Error().Err(err).Str("symbol", t.Symbol).Msg("journal write failed after tick")
	}
}

// VerifySignal scores a trade idea and broadcasts the verification. Callers
// decide whether a verified signal becomes an order request.
func (gw *Gateway) VerifySignal(sig signal.Signal) signal.Verification {
	v := signal.Score(sig)
	gw.log.Info().
		Str("symbol", sig.Symbol).
		Str("action", sig.Action).
		Int("score", v.Score).
		Str("level", v.Level).
		Msg("signal verified")
	gw.emit.Emit(EventSignalVerified, verifiedPayload{Signal: sig, Verification: v})
	return v
}

// UpdateRiskSettings merges the patch and broadcasts the resulting policy.
func (gw *Gateway) UpdateRiskSettings(p risk.Partial) risk.Settings {
	merged := gw.shield.Update(p)
	gw.log.Info().
		Bool("tradingEnabled", merged.TradingEnabled).
		Float64("maxDailyDrawdown", merged.MaxDailyDrawdown).
		Int("maxOpenPositions", merged.MaxOpenPositions).
		Msg("risk settings updated")
	gw.emit.Emit(EventRiskSettings, merged)
	return merged
}

func (gw *Gateway) emitRiskStats() {
	pl, open := gw.engine.DailyStats()
	gw.emit.Emit(EventRiskStats, risk.DailyStats{ProfitLoss: pl, OpenPositions: open})
}

// Dispatch routes one inbound frame to the matching operation. Unknown
// events are logged and dropped.
func (gw *Gateway) Dispatch(env Envelope) {
	switch env.Event {
	case EventOpenPosition:
		var req paper.OrderRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			gw.log.Warn().Err(err).Msg("bad open-position payload")
			return
		}
		gw.OpenPosition(req)

	case EventClosePosition:
		var req ClosePositionRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			gw.log.Warn().Err(err).Msg("bad close-position payload")
			return
		}
		gw.ClosePosition(req)

	case EventCloseAll:
		gw.CloseAllPositions()

	case EventPriceTick:
		var t market.Tick
		if err := json.Unmarshal(env.Data, &t); err != nil {
			gw.log.Warn().Err(err).Msg("bad price-tick payload")
			return
		}
		gw.PriceTick(t)

	case EventUpdateRisk:
		var p risk.Partial
		if err := json.Unmarshal(env.Data, &p); err != nil {
			gw.log.Warn().Err(err).Msg("bad update-risk-settings payload")
			return
		}
		gw.UpdateRiskSettings(p)

	case EventVerifySignal:
		var sig signal.Signal
		if err := json.Unmarshal(env.Data, &sig); err != nil {
			gw.log.Warn().Err(err).Msg("bad verify-signal payload")
			return
		}
		gw.VerifySignal(sig)

	default:
		gw.log.Warn().Str("event", env.Event).Msg("unknown inbound event")
	}
}
