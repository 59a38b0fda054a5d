package paper

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fxlab/papertrader/internal/id"
	"github.com/fxlab/papertrader/journal"
	"github.com/fxlab/papertrader/market"
)

// Caller-visible rejections. These never mutate state.
var (
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrPositionNotFound   = errors.New("position not found")
)

// CloseListener is notified when the engine closes a position, whether by a
// stop-loss/take-profit trigger or an explicit close request.
type CloseListener interface {
	OnPositionClosed(trade ClosedTrade)
}

// Gate is consulted under the account lock before a fill mutates state. It
// receives the day's realized profit/loss and the current open-position
// count; a non-nil error rejects the order without any state change.
type Gate func(profitLoss float64, openPositions int) error

// Engine owns one simulated account: balance, equity, open positions and
// closed history. Every mutation is serialized through one mutex so the
// equity invariant holds across concurrent tick delivery and order requests.
type Engine struct {
	mu       sync.Mutex
	acct     Account
	open     map[string]*Position
	history  []ClosedTrade
	friction Friction
	slippage Slippage
	now      func() time.Time
	start    time.Time
	journal  journal.Journal
	listener CloseListener
	log      zerolog.Logger
}

type Option func(*Engine)

// WithClock injects the time source. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSlippage injects the slippage source. Defaults to the seeded random
// source over the friction's configured range.
func WithSlippage(s Slippage) Option {
	return func(e *Engine) { e.slippage = s }
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func NewEngine(acct Account, fr Friction, j journal.Journal, opts ...Option) *Engine {
	if acct.InitialBalance == 0 {
		acct.InitialBalance = acct.Balance
	}
	acct.Equity = acct.Balance
	if fr.Leverage <= 0 {
		fr.Leverage = 100
	}
	if j == nil {
		j = journal.Nop{}
	}

	e := &Engine{
		acct:     acct,
		open:     make(map[string]*Position),
		friction: fr,
		journal:  j,
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.slippage == nil {
		e.slippage = NewRandomSlippage(fr.SlippageMinPips, fr.SlippageMaxPips, time.Now().UnixNano())
	}
	e.start = e.now()
	return e
}

// SetCloseListener registers the listener for auto- and manual closes. It is
// invoked after the account lock is released to avoid deadlocks.
func (e *Engine) SetCloseListener(l CloseListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

// Account returns a snapshot of the account aggregate.
func (e *Engine) Account() Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct
}

// OpenPositions returns copies of all open positions.
func (e *Engine) OpenPositions() []Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Position, 0, len(e.open))
	for _, p := range e.open {
		out = append(out, *p)
	}
	return out
}

// History returns a copy of the closed-trade history, oldest first.
func (e *Engine) History() []ClosedTrade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ClosedTrade, len(e.history))
	copy(out, e.history)
	return out
}

// Open fills a new order. The fill price moves against the trader by a drawn
// slippage amount plus half the spread. Margin is reserved against the
// requested price; the commission is charged at open but only settles into
// P/L at close. Fails with ErrInsufficientMargin without mutating state.
//
// On a journal write failure the position is still opened and returned
// alongside the wrapped error; the in-memory ledger is authoritative.
func (e *Engine) Open(req OrderRequest) (*Position, error) {
	return e.OpenGated(req, nil)
}

// OpenGated fills a new order after consulting the gate under the account
// lock. The gate sees the ledger state the fill will act on, so two
// concurrent callers can never both pass a limit that only admits one.
func (e *Engine) OpenGated(req OrderRequest, gate Gate) (*Position, error) {
	e.mu.Lock()

	if gate != nil {
		if err := gate(e.dailyProfitLossLocked(), len(e.open)); err != nil {
			e.mu.Unlock()
			return nil, err
		}
	}

	margin := req.LotSize * ContractSize * req.Price / e.friction.Leverage
	if margin > e.acct.Balance {
		avail := e.acct.Balance
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: required %.2f, available %.2f", ErrInsufficientMargin, margin, avail)
	}

	pip := market.PipSize(req.Symbol)
	slip := e.slippage.Pips() * pip
	halfSpread := e.friction.SpreadPips * pip / 2

	fill := req.Price
	if req.Side == Buy {
		fill += slip + halfSpread
	} else {
		fill -= slip + halfSpread
	}

	pos := &Position{
		ID:         id.New(),
		Symbol:     req.Symbol,
		Side:       req.Side,
		LotSize:    req.LotSize,
		EntryPrice: fill,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenTime:   e.now(),
		Commission: req.LotSize * e.friction.CommissionPerLot,
		Status:     "open",
	}

	e.open[pos.ID] = pos
	e.acct.Balance -= margin
	e.recomputeEquityLocked()

	snap := *pos
	err := e.snapshotLocked(pos.OpenTime)
	e.mu.Unlock()

	e.log.Info().
		Str("id", snap.ID).
		Str("symbol", snap.Symbol).
		Str("side", string(snap.Side)).
		Float64("lots", snap.LotSize).
		Float64("fill", snap.EntryPrice).
		Float64("margin", margin).
		Msg("position opened")

	if err != nil {
		return &snap, fmt.Errorf("journal: %w", err)
	}
	return &snap, nil
}

// OpenAfter schedules a deferred fill. The fill re-enters through the same
// serialized gate-then-fill path as an immediate order, evaluated against
// the ledger state at fill time, so it cannot interleave with a tick-driven
// close or slip past a limit that filled up during the latency window. The
// done callback receives the fill result.
func (e *Engine) OpenAfter(req OrderRequest, latency time.Duration, gate Gate, done func(*Position, error)) *time.Timer {
	return time.AfterFunc(latency, func() {
		pos, err := e.OpenGated(req, gate)
		if done != nil {
			done(pos, err)
		}
	})
}

// Tick applies a price event: marks every open position on the symbol to
// market, evaluates stop-loss/take-profit triggers, and recomputes equity
// once for the batch. Ticks for symbols with no open positions are no-ops.
//
// When a gap tick satisfies both triggers, the stop-loss wins. That is the
// account-protective outcome and keeps replays deterministic.
func (e *Engine) Tick(symbol string, price float64) error {
	e.mu.Lock()
	now := e.now()

	var closed []ClosedTrade
	for _, p := range e.open {
		if p.Symbol != symbol {
			continue
		}
		e.markLocked(p, price, now)

		switch {
		case p.hitStopLoss(price):
			closed = append(closed, e.closeLocked(p, p.StopLoss, ReasonStopLoss, now))
		case p.hitTakeProfit(price):
			closed = append(closed, e.closeLocked(p, p.TakeProfit, ReasonTakeProfit, now))
		}
	}

	e.recomputeEquityLocked()
	err := e.snapshotLocked(now)
	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		for _, ct := range closed {
			listener.OnPositionClosed(ct)
		}
	}

	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

// Close settles an open position at the given exit price. Closing an id that
// is not open fails with ErrPositionNotFound and alters nothing, so a double
// close never double-releases funds.
func (e *Engine) Close(posID string, exitPrice float64, reason string) (ClosedTrade, error) {
	if reason == "" {
		reason = ReasonManual
	}

	e.mu.Lock()
	p, ok := e.open[posID]
	if !ok {
		e.mu.Unlock()
		return ClosedTrade{}, fmt.Errorf("close %q: %w", posID, ErrPositionNotFound)
	}

	now := e.now()
	ct := e.closeLocked(p, exitPrice, reason, now)
	e.recomputeEquityLocked()
	err := e.snapshotLocked(now)
	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		listener.OnPositionClosed(ct)
	}

	if err != nil {
		return ct, fmt.Errorf("journal: %w", err)
	}
	return ct, nil
}

// CloseAll closes every open position that has a price in the supplied map,
// reason "Close All". Positions with no price are left open.
func (e *Engine) CloseAll(prices map[string]float64) []ClosedTrade {
	e.mu.Lock()
	now := e.now()

	var closed []ClosedTrade
	for _, p := range e.open {
		price, ok := prices[p.Symbol]
		if !ok {
			continue
		}
		closed = append(closed, e.closeLocked(p, price, ReasonCloseAll, now))
	}

	e.recomputeEquityLocked()
	if err := e.snapshotLocked(now); err != nil {
		e.log.Error().Err(err).Msg("journal equity snapshot failed")
	}
	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		for _, ct := range closed {
			listener.OnPositionClosed(ct)
		}
	}
	return closed
}

// DailyStats derives the risk-gate inputs from ledger state: realized P/L of
// trades closed within the current UTC day, and the open-position count.
// Nothing is cached; the ledger is the single source of truth.
func (e *Engine) DailyStats() (profitLoss float64, openPositions int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dailyProfitLossLocked(), len(e.open)
}

func (e *Engine) dailyProfitLossLocked() float64 {
	dayStart := e.now().UTC().Truncate(24 * time.Hour)
	var pl float64
	for _, t := range e.history {
		if !t.CloseTime.UTC().Before(dayStart) {
			pl += t.RealizedProfit
		}
	}
	return pl
}

// markLocked recomputes pips, swap and unrealized profit for one position.
// Swap is recomputed from scratch on every mark so repeated ticks never
// double-charge the rollover.
func (e *Engine) markLocked(p *Position, price float64, now time.Time) {
	priceDiff := price - p.EntryPrice
	if p.Side == Sell {
		priceDiff = p.EntryPrice - price
	}

	pip := market.PipSize(p.Symbol)
	p.Pips = priceDiff / pip

	daysOpen := math.Floor(now.Sub(p.OpenTime).Hours() / 24)
	if daysOpen > 0 {
		p.Swap = daysOpen * p.LotSize * e.friction.SwapPerLotDay
	} else {
		p.Swap = 0
	}

	p.UnrealizedProfit = priceDiff*p.LotSize*ContractSize - p.Commission - p.Swap
}

// closeLocked settles the position at exitPrice, releases margin against the
// entry price, and moves the record into history. Margin release must use the
// entry price: that is the notional that was reserved at open.
func (e *Engine) closeLocked(p *Position, exitPrice float64, reason string, now time.Time) ClosedTrade {
	e.markLocked(p, exitPrice, now)
	realized := p.UnrealizedProfit

	releasedMargin := p.LotSize * ContractSize * p.EntryPrice / e.friction.Leverage
	e.acct.Balance += releasedMargin + realized

	p.Status = "closed"
	p.UnrealizedProfit = 0
	ct := ClosedTrade{
		Position:       *p,
		ExitPrice:      exitPrice,
		CloseTime:      now,
		CloseReason:    reason,
		RealizedProfit: realized,
	}
	e.history = append(e.history, ct)
	delete(e.open, p.ID)

	if err := e.journal.RecordTrade(journal.TradeRecord{
		ID:             ct.ID,
		Symbol:         ct.Symbol,
		Side:           string(ct.Side),
		LotSize:        ct.LotSize,
		EntryPrice:     ct.EntryPrice,
		ExitPrice:      ct.ExitPrice,
		OpenTime:       ct.OpenTime,
		CloseTime:      ct.CloseTime,
		Commission:     ct.Commission,
		Swap:           ct.Swap,
		RealizedProfit: ct.RealizedProfit,
		Reason:         ct.CloseReason,
	}); err != nil {
		e.log.Error().Err(err).Str("id", ct.ID).Msg("journal trade record failed")
	}

	e.log.Info().
		Str("id", ct.ID).
		Str("symbol", ct.Symbol).
		Str("reason", reason).
		Float64("exit", exitPrice).
		Float64("realized", realized).
		Msg("position closed")

	return ct
}

func (e *Engine) recomputeEquityLocked() {
	equity := e.acct.Balance
	for _, p := range e.open {
		equity += p.UnrealizedProfit
	}
	e.acct.Equity = equity
}

func (e *Engine) snapshotLocked(now time.Time) error {
	var unrealized float64
	for _, p := range e.open {
		unrealized += p.UnrealizedProfit
	}
	return e.journal.RecordEquity(journal.EquitySnapshot{
		Time:          now,
		Balance:       e.acct.Balance,
		Equity:        e.acct.Equity,
		OpenPositions: len(e.open),
		UnrealizedPL:  unrealized,
	})
}
