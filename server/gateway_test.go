package server

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxlab/papertrader/market"
	"github.com/fxlab/papertrader/paper"
	"github.com/fxlab/papertrader/risk"
	"github.com/fxlab/papertrader/signal"
)

type recordedEvent struct {
	Event   string
	Payload any
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Emit(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{event, payload})
}

func (r *recorder) byName(event string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func newTestGateway(t *testing.T, balance float64, settings risk.Settings) (*Gateway, *recorder, *paper.Engine) {
	t.Helper()
	engine := paper.NewEngine(
		paper.Account{ID: "acct-1", Currency: "USD", Balance: balance},
		paper.Friction{Leverage: 100},
		nil,
	)
	rec := &recorder{}
	gw := NewGateway(engine, risk.NewShield(settings), rec, zerolog.Nop())
	return gw, rec, engine
}

func openReq() paper.OrderRequest {
	return paper.OrderRequest{
		Symbol: "EURUSD", Side: paper.Buy, Price: 1.0850, LotSize: 0.1,
		StopLoss: 1.0830, TakeProfit: 1.0900,
	}
}

func permissive() risk.Settings {
	return risk.Settings{
		MaxDailyDrawdown: 1e9,
		MaxOpenPositions: 100,
		TradingEnabled:   true,
	}
}

func TestOpenPositionEmitsTradeExecuted(t *testing.T) {
	t.Parallel()

	gw, rec, engine := newTestGateway(t, 10000, permissive())

	res := gw.OpenPosition(openReq())
	require.True(t, res.Success)
	require.NotNil(t, res.Trade)

	assert.Len(t, rec.byName(EventTradeExecuted), 1)
	assert.Len(t, rec.byName(EventRiskStats), 1)
	assert.Len(t, engine.OpenPositions(), 1)
}

func TestOpenPositionRejectedWhenTradingDisabled(t *testing.T) {
	t.Parallel()

	settings := permissive()
	settings.TradingEnabled = false
	gw, rec, engine := newTestGateway(t, 10000, settings)

	res := gw.OpenPosition(openReq())
	assert.False(t, res.Success)
	assert.Equal(t, risk.TradingDisabled, res.Kind)

	rejected := rec.byName(EventTradeRejected)
	require.Len(t, rejected, 1)
	assert.Empty(t, rec.byName(EventTradeExecuted))
	assert.Empty(t, engine.OpenPositions())
}

func TestOpenPositionRejectedAtPositionLimit(t *testing.T) {
	t.Parallel()

	settings := permissive()
	settings.MaxOpenPositions = 3
	gw, rec, _ := newTestGateway(t, 100000, settings)

	for i := 0; i < 3; i++ {
		res := gw.OpenPosition(openReq())
		require.True(t, res.Success, "open %d should pass the gate", i+1)
	}

	res := gw.OpenPosition(openReq())
	assert.False(t, res.Success)
	assert.Equal(t, risk.MaxPositionsReached, res.Kind)
	assert.Contains(t, res.Reason, "3")

	rejected := rec.byName(EventTradeRejected)
	require.Len(t, rejected, 1)
	payload, ok := rejected[0].Payload.(rejectedPayload)
	require.True(t, ok)
	assert.Equal(t, 3.0, payload.Limit)
}

func TestConcurrentOpensRespectPositionLimit(t *testing.T) {
	t.Parallel()

	settings := permissive()
	settings.MaxOpenPositions = 1
	gw, _, engine := newTestGateway(t, 1_000_000, settings)

	var wg sync.WaitGroup
	var fills int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if gw.OpenPosition(openReq()).Success {
				atomic.AddInt32(&fills, 1)
			}
		}()
	}
	wg.Wait()

	// The shield check runs under the same lock as the fill, so exactly one
	// of the racing requests can see zero open positions.
	assert.Equal(t, int32(1), fills)
	assert.Len(t, engine.OpenPositions(), 1)
}

func TestOpenPositionRejectedAfterDrawdown(t *testing.T) {
	t.Parallel()

	settings := permissive()
	settings.MaxDailyDrawdown = 300
	gw, _, engine := newTestGateway(t, 100000, settings)

	// Realize a 500-dollar loss today: 50 pips against 0.1 lots.
	res := gw.OpenPosition(openReq())
	require.True(t, res.Success)
	_, err := engine.Close(res.Trade.ID, 1.0800, "")
	require.NoError(t, err)

	res = gw.OpenPosition(openReq())
	assert.False(t, res.Success)
	assert.Equal(t, risk.DrawdownExceeded, res.Kind)
}

func TestOpenPositionInsufficientMarginEmitsRejection(t *testing.T) {
	t.Parallel()

	gw, rec, _ := newTestGateway(t, 50, permissive())

	res := gw.OpenPosition(openReq())
	assert.False(t, res.Success)
	assert.Len(t, rec.byName(EventTradeRejected), 1)
	assert.Empty(t, rec.byName(EventTradeExecuted))
}

func TestPriceTickEmitsPositionClosed(t *testing.T) {
	t.Parallel()

	gw, rec, _ := newTestGateway(t, 10000, permissive())

	res := gw.OpenPosition(openReq())
	require.True(t, res.Success)

	gw.PriceTick(market.Tick{Symbol: "EURUSD", Price: 1.0905})

	closed := rec.byName(EventPositionClosed)
	require.Len(t, closed, 1)
	ct, ok := closed[0].Payload.(paper.ClosedTrade)
	require.True(t, ok)
	assert.Equal(t, paper.ReasonTakeProfit, ct.CloseReason)

	// Risk stats refresh once for the open and once for the close.
	assert.Len(t, rec.byName(EventRiskStats), 2)
}

func TestCloseAllUsesLastTickPrices(t *testing.T) {
	t.Parallel()

	gw, rec, engine := newTestGateway(t, 100000, permissive())

	res := gw.OpenPosition(openReq())
	require.True(t, res.Success)

	gbp := openReq()
	gbp.Symbol = "GBPUSD"
	gbp.Price = 1.2700
	gbp.StopLoss = 1.2650
	gbp.TakeProfit = 1.2780
	res = gw.OpenPosition(gbp)
	require.True(t, res.Success)

	// Only EURUSD has a recorded tick; GBPUSD must stay open.
	gw.PriceTick(market.Tick{Symbol: "EURUSD", Price: 1.0860})

	closed := gw.CloseAllPositions()
	require.Len(t, closed, 1)
	assert.Equal(t, "EURUSD", closed[0].Symbol)
	assert.Equal(t, paper.ReasonCloseAll, closed[0].CloseReason)
	assert.Equal(t, 1.0860, closed[0].ExitPrice)

	remaining := engine.OpenPositions()
	require.Len(t, remaining, 1)
	assert.Equal(t, "GBPUSD", remaining[0].Symbol)
	assert.Len(t, rec.byName(EventPositionClosed), 1)
}

func TestClosePositionUnknownID(t *testing.T) {
	t.Parallel()

	gw, rec, _ := newTestGateway(t, 10000, permissive())

	res := gw.ClosePosition(ClosePositionRequest{ID: "missing", ExitPrice: 1.0})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Reason)
	assert.Empty(t, rec.byName(EventPositionClosed))
}

func TestUpdateRiskSettingsBroadcastsMerged(t *testing.T) {
	t.Parallel()

	gw, rec, _ := newTestGateway(t, 10000, permissive())

	disabled := false
	merged := gw.UpdateRiskSettings(risk.Partial{TradingEnabled: &disabled})
	assert.False(t, merged.TradingEnabled)

	updates := rec.byName(EventRiskSettings)
	require.Len(t, updates, 1)
	settings, ok := updates[0].Payload.(risk.Settings)
	require.True(t, ok)
	assert.Equal(t, merged, settings)

	// The new policy takes effect immediately.
	res := gw.OpenPosition(openReq())
	assert.False(t, res.Success)
	assert.Equal(t, risk.TradingDisabled, res.Kind)
}

func TestOpenPositionAfterGatedAtFillTime(t *testing.T) {
	t.Parallel()

	settings := permissive()
	settings.MaxOpenPositions = 1
	gw, rec, engine := newTestGateway(t, 1_000_000, settings)

	// The limit fills up during the latency window; the deferred order must
	// be rejected when its timer fires, not admitted on stale state.
	require.True(t, gw.OpenPosition(openReq()).Success)

	done := make(chan OpenResult, 1)
	gw.OpenPositionAfter(openReq(), 10*time.Millisecond, func(res OpenResult) {
		done <- res
	})

	select {
	case res := <-done:
		assert.False(t, res.Success)
		assert.Equal(t, risk.MaxPositionsReached, res.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("deferred fill never completed")
	}

	assert.Len(t, engine.OpenPositions(), 1)
	assert.Len(t, rec.byName(EventTradeRejected), 1)
}

func TestVerifySignalBroadcastsVerification(t *testing.T) {
	t.Parallel()

	gw, rec, _ := newTestGateway(t, 10000, permissive())

	v := gw.VerifySignal(signal.Signal{
		Symbol:     "EURUSD",
		Action:     "BUY",
		Price:      1.0850,
		StopLoss:   1.0830,
		TakeProfit: 1.0910,
		Confidence: 1.0,
		Indicators: signal.Indicators{
			Trend:    signal.TrendUp,
			RSI:      30,
			MACDHist: 0.0010,
			ATR:      0.0020,
		},
	})
	assert.True(t, v.Verified)
	assert.Equal(t, signal.LevelHigh, v.Level)

	events := rec.byName(EventSignalVerified)
	require.Len(t, events, 1)
	payload, ok := events[0].Payload.(verifiedPayload)
	require.True(t, ok)
	assert.Equal(t, v, payload.Verification)
}

func TestDispatchRoutesFrames(t *testing.T) {
	t.Parallel()

	gw, rec, engine := newTestGateway(t, 10000, permissive())

	gw.Dispatch(Envelope{
		Event: EventOpenPosition,
		Data:  []byte(`{"symbol":"EURUSD","action":"BUY","price":1.0850,"lotSize":0.1,"sl":1.0830,"tp":1.0900}`),
	})
	require.Len(t, engine.OpenPositions(), 1)

	gw.Dispatch(Envelope{
		Event: EventPriceTick,
		Data:  []byte(`{"symbol":"EURUSD","price":1.0905}`),
	})
	assert.Empty(t, engine.OpenPositions())
	assert.Len(t, rec.byName(EventPositionClosed), 1)

	gw.Dispatch(Envelope{
		Event: EventUpdateRisk,
		Data:  []byte(`{"tradingEnabled":false}`),
	})
	assert.Len(t, rec.byName(EventRiskSettings), 1)

	// close-all-positions takes no payload.
	gw.Dispatch(Envelope{Event: EventCloseAll})

	// Unknown events and malformed payloads are dropped, not fatal.
	gw.Dispatch(Envelope{Event: "bogus"})
	gw.Dispatch(Envelope{Event: EventOpenPosition, Data: []byte(`{`)})
}
