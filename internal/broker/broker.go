package broker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"stealth-signal-bot/internal/broadcast"
	"stealth-signal-bot/internal/config"
	"stealth-signal-bot/internal/database"
	"stealth-signal-bot/internal/marketdata"
	"stealth-signal-bot/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SignalStore loads signals to execute.
type SignalStore interface {
	GetByID(ctx context.Context, id string) (*models.Signal, error)
}

// TradeStore persists positions.
type TradeStore interface {
	CreateForSignal(ctx context.Context, t *models.Trade) error
	GetByID(ctx context.Context, id string) (*models.Trade, error)
	GetOpen(ctx context.Context) ([]models.Trade, error)
	GetClosed(ctx context.Context) ([]models.Trade, error)
	UpdatePrices(ctx context.Context, trades []models.Trade) error
	UpdateStatus(ctx context.Context, t *models.Trade) error
}

// Publisher receives trade, alert and market events.
type Publisher interface {
	Publish(t broadcast.EventType, data interface{})
}

// Metrics receives position counters.
type Metrics interface {
	TradeOpened()
	TradeClosed(reason string)
	Positions(open int, equity float64)
}

type nopMetrics struct{}

func (nopMetrics) TradeOpened() {}
func (nopMetrics) TradeClosed(string) {}
func (nopMetrics) Positions(int, float64) {}

// Option configures a PaperBroker.
type Option func(*PaperBroker)

// WithSlippage replaces the basis-point slippage taken from the config.
func WithSlippage(f SlippageFunc) Option { return func(b *PaperBroker) { b.slippage = f } }

func WithMetrics(m Metrics) Option { return func(b *PaperBroker) { b.metrics = m } }

func WithClock(now func() time.Time) Option { return func(b *PaperBroker) { b.now = now } }

// PaperBroker simulates fills and owns the open-position set. The in-memory
// set is authoritative; the store mirrors it.
type PaperBroker struct {
	logger    *zap.Logger
	cfg       *config.Store
	signals   SignalStore
	trades    TradeStore
	market    marketdata.Provider
	publisher Publisher
	metrics   Metrics
	slippage  SlippageFunc
	now       func() time.Time
	onOpen    []func(models.Trade)

	mu       sync.Mutex
	cash     float64
	open     map[string]*models.Trade
	reserved int
	// closing holds positions closed by a market update whose close has
	// not reached the store yet. A failed persist leaves the id here.
	closing map[string]struct{}
}

// NewPaperBroker creates a broker holding the configured initial capital.
func NewPaperBroker(
	logger *zap.Logger,
	cfg *config.Store,
	signals SignalStore,
	trades TradeStore,
	market marketdata.Provider,
	publisher Publisher,
	opts ...Option,
) *PaperBroker {
	c := cfg.Get()
	b := &PaperBroker{
		logger:    logger.Named("broker"),
		cfg:       cfg,
		signals:   signals,
		trades:    trades,
		market:    market,
		publisher: publisher,
		metrics:   nopMetrics{},
		slippage:  BasisPoints(c.Trading.SlippageBps),
		now:       time.Now,
		cash:      c.Trading.InitialCapital,
		open:      make(map[string]*models.Trade),
		closing:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnTradeOpened registers fn to run after each successful execution.
func (b *PaperBroker) OnTradeOpened(fn func(models.Trade)) {
	b.onOpen = append(b.onOpen, fn)
}

// Load rebuilds cash and the open set from the store.
func (b *PaperBroker) Load(ctx context.Context) error {
	open, err := b.trades.GetOpen(ctx)
	if err != nil {
		return fmt.Errorf("load open trades: %w", err)
	}
	closed, err := b.trades.GetClosed(ctx)
	if err != nil {
		return fmt.Errorf("load closed trades: %w", err)
	}

	cash := b.cfg.Get().Trading.InitialCapital
	for i := range closed {
		cash += closed[i].Realized()
	}
	positions := make(map[string]*models.Trade, len(open))
	for i := range open {
		t := open[i]
		cash -= t.Notional()
		positions[t.ID] = &t
	}

	b.mu.Lock()
	b.cash = cash
	b.open = positions
	b.reportLocked()
	b.mu.Unlock()

	b.logger.Info("Loaded positions", zap.Int("open", len(positions)), zap.Float64("cash", cash))
	return nil
}

// Cash is the uninvested balance.
func (b *PaperBroker) Cash() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash
}

// Equity is cash plus the marked value of open positions.
func (b *PaperBroker) Equity() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.equityLocked()
}

func (b *PaperBroker) equityLocked() float64 {
	eq := b.cash
	for _, t := range b.open {
		price := t.CurrentPrice
		if price <= 0 {
			price = t.EntryPrice
		}
		eq += price * t.Quantity
	}
	return eq
}

// OpenPositions returns copies of the open positions ordered by open time.
func (b *PaperBroker) OpenPositions() []models.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Trade, 0, len(b.open))
	for _, t := range b.open {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// OpenSymbols lists the distinct symbols with open positions.
func (b *PaperBroker) OpenSymbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, t := range b.open {
		if !seen[t.Symbol] {
			seen[t.Symbol] = true
			out = append(out, t.Symbol)
		}
	}
	sort.Strings(out)
	return out
}

// Size returns the notional for a signal given current equity.
func Size(cfg config.Trading, tier models.Tier, confidence, equity float64) float64 {
	notional := cfg.DefaultPositionSize * tier.SizeMultiplier() * confidence / 100
	notional = math.Min(notional, cfg.MaxPositionSize)
	if cfg.StopLossPct > 0 {
		notional = math.Min(notional, cfg.RiskPerTrade*equity/cfg.StopLossPct)
	}
	return math.Max(notional, 0)
}

// Execute opens a position for an ACTIVE signal at the current quote plus slippage.
func (b *PaperBroker) Execute(ctx context.Context, signalID string) (*models.Trade, error) {
	fail := func(err error) (*models.Trade, error) {
		return nil, &ExecutionError{Op: "execute", ID: signalID, Err: err}
	}

	sig, err := b.signals.GetByID(ctx, signalID)
	if errors.Is(err, database.ErrNotFound) {
		return fail(ErrNotFound)
	}
	if err != nil {
		return fail(err)
	}
	now := b.now().UTC()
	if !sig.IsActive(now) {
		return fail(ErrNotActive)
	}
	if sig.Action != models.ActionBuy {
		return fail(ErrUnsupportedAction)
	}

	quote, err := b.market.GetQuote(ctx, sig.Symbol)
	if err != nil {
		return fail(fmt.Errorf("quote %s: %w", sig.Symbol, err))
	}
	fill := b.slippage(models.ActionBuy, quote.Price)
	if fill <= 0 || math.IsNaN(fill) || math.IsInf(fill, 0) {
		return fail(fmt.Errorf("invalid fill price %v", fill))
	}

	cfg := b.cfg.Get().Trading

	b.mu.Lock()
	if len(b.open)+b.reserved >= cfg.MaxPositions {
		b.mu.Unlock()
		return fail(ErrMaxPositions)
	}
	notional := Size(cfg, sig.Tier, sig.Confidence, b.equityLocked())
	if notional <= 0 || notional > b.cash {
		b.mu.Unlock()
		return fail(ErrInsufficientCash)
	}
	b.cash -= notional
	b.reserved++
	b.mu.Unlock()

	trade := models.Trade{
		ID:            uuid.NewString(),
		SignalID:      sig.ID,
		Symbol:        sig.Symbol,
		Tier:          sig.Tier,
		Confidence:    sig.Confidence,
		Quantity:      notional / fill,
		QuotedPrice:   quote.Price,
		EntryPrice:    fill,
		HighWaterMark: fill,
		Status:        models.TradeOpen,
		OpenedAt:      now,
	}
	trade.Reprice(quote.Price)
	stop, target := sig.StopLoss, sig.TargetPrice
	if stop == nil {
		v := fill * (1 - cfg.StopLossPct)
		stop = &v
	}
	if target == nil {
		v := fill * (1 + cfg.TakeProfitPct)
		target = &v
	}
	trade.StopLoss, trade.TakeProfit = stop, target
	if cfg.TrailingStopPct > 0 {
		v := fill * (1 - cfg.TrailingStopPct)
		trade.TrailingPct = cfg.TrailingStopPct
		trade.TrailingStop = &v
	}

	if err := b.trades.CreateForSignal(ctx, &trade); err != nil {
		b.mu.Lock()
		b.cash += notional
		b.reserved--
		b.mu.Unlock()
		if errors.Is(err, database.ErrImmutable) {
			return fail(ErrNotActive)
		}
		return fail(err)
	}

	b.mu.Lock()
	b.reserved--
	stored := trade
	b.open[trade.ID] = &stored
	b.reportLocked()
	b.mu.Unlock()

	b.logger.Info("Opened position",
		zap.String("trade", trade.ID),
		zap.String("signal", sig.ID),
		zap.String("symbol", trade.Symbol),
		zap.Float64("quantity", trade.Quantity),
		zap.Float64("fill", fill))
	b.metrics.TradeOpened()
	for _, fn := range b.onOpen {
		fn(trade)
	}
	b.publisher.Publish(broadcast.EventTrade, tradeEvent("opened", trade))
	return &trade, nil
}

// Close closes an open position at the current quote, net of sell slippage.
func (b *PaperBroker) Close(ctx context.Context, tradeID string) (*models.Trade, error) {
	fail := func(err error) (*models.Trade, error) {
		return nil, &ExecutionError{Op: "close", ID: tradeID, Err: err}
	}

	t, err := b.claim(ctx, tradeID)
	if err != nil {
		return fail(err)
	}

	quote, err := b.market.GetQuote(ctx, t.Symbol)
	if err != nil {
		b.release(t)
		return fail(fmt.Errorf("quote %s: %w", t.Symbol, err))
	}
	t.Reprice(quote.Price)
	exit := b.slippage(models.ActionSell, quote.Price)
	closeTrade(t, exit, models.CloseManual, b.now().UTC())

	if err := b.trades.UpdateStatus(ctx, t); err != nil {
		b.release(t)
		if errors.Is(err, database.ErrImmutable) {
			return fail(ErrAlreadyClosed)
		}
		return fail(err)
	}

	b.mu.Lock()
	b.cash += exit * t.Quantity
	b.reportLocked()
	b.mu.Unlock()

	b.closed([]models.Trade{*t})
	return t, nil
}

// claim removes an open trade from the set so nothing else can close it.
func (b *PaperBroker) claim(ctx context.Context, id string) (*models.Trade, error) {
	b.mu.Lock()
	t, ok := b.open[id]
	if ok {
		delete(b.open, id)
	}
	_, closing := b.closing[id]
	b.mu.Unlock()
	if closing {
		return nil, ErrAlreadyClosed
	}
	if ok {
		c := *t
		return &c, nil
	}

	stored, err := b.trades.GetByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if stored.Status == models.TradeClosed {
		return nil, ErrAlreadyClosed
	}
	// Open in the store but not held in memory: either a concurrent close
	// owns it or it was never loaded.
	return nil, ErrNotFound
}

func (b *PaperBroker) release(t *models.Trade) {
	restored := *t
	restored.Status = models.TradeOpen
	restored.CloseReason = ""
	restored.ExitPrice = nil
	restored.RealizedPnL = nil
	restored.ClosedAt = nil
	b.mu.Lock()
	b.open[t.ID] = &restored
	b.mu.Unlock()
}

func closeTrade(t *models.Trade, exit float64, reason models.CloseReason, at time.Time) {
	realized := (exit - t.EntryPrice) * t.Quantity
	t.Status = models.TradeClosed
	t.CloseReason = reason
	t.ExitPrice = &exit
	t.RealizedPnL = &realized
	t.ClosedAt = &at
}

// OnMarketUpdate applies one batch of prices to every open position. All
// positions are evaluated against the same snapshot and events are emitted
// only after the whole batch is resolved. It returns the positions it closed.
func (b *PaperBroker) OnMarketUpdate(ctx context.Context, prices map[string]float64) []models.Trade {
	snapshot := make(map[string]float64, len(prices))
	for sym, p := range prices {
		if p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0) {
			snapshot[sym] = p
		}
	}
	now := b.now().UTC()

	var marked, closed []models.Trade
	b.mu.Lock()
	for id, t := range b.open {
		price, ok := snapshot[t.Symbol]
		if !ok {
			continue
		}
		t.Reprice(price)
		ratchet(t, price)

		if reason, hit := breached(t, price); hit {
			c := *t
			closeTrade(&c, price, reason, now)
			delete(b.open, id)
			b.closing[id] = struct{}{}
			b.cash += price * c.Quantity
			closed = append(closed, c)
			continue
		}
		marked = append(marked, *t)
	}
	b.reportLocked()
	b.mu.Unlock()

	if len(marked) > 0 {
		if err := b.trades.UpdatePrices(ctx, marked); err != nil {
			b.logger.Error("Failed to persist marks", zap.Int("trades", len(marked)), zap.Error(err))
		}
	}
	for i := range closed {
		if err := b.trades.UpdateStatus(ctx, &closed[i]); err != nil {
			b.logger.Error("Failed to persist close", zap.String("trade", closed[i].ID), zap.Error(err))
			continue
		}
		b.mu.Lock()
		delete(b.closing, closed[i].ID)
		b.mu.Unlock()
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].OpenedAt.Before(closed[j].OpenedAt) })
	b.closed(closed)
	return closed
}

// ratchet raises the trailing stop as price makes new highs. It never lowers it.
func ratchet(t *models.Trade, price float64) {
	if t.TrailingPct <= 0 {
		return
	}
	if price > t.HighWaterMark {
		t.HighWaterMark = price
	}
	next := t.HighWaterMark * (1 - t.TrailingPct)
	if t.TrailingStop == nil || next > *t.TrailingStop {
		t.TrailingStop = &next
	}
}

func breached(t *models.Trade, price float64) (models.CloseReason, bool) {
	switch {
	case t.StopLoss != nil && price <= *t.StopLoss:
		return models.CloseStopLoss, true
	case t.TrailingStop != nil && price <= *t.TrailingStop:
		return models.CloseTrailingStop, true
	case t.TakeProfit != nil && price >= *t.TakeProfit:
		return models.CloseTakeProfit, true
	}
	return "", false
}

func (b *PaperBroker) closed(trades []models.Trade) {
	for _, t := range trades {
		b.logger.Info("Closed position",
			zap.String("trade", t.ID),
			zap.String("symbol", t.Symbol),
			zap.String("reason", string(t.CloseReason)),
			zap.Float64("exit", *t.ExitPrice),
			zap.Float64("pnl", *t.RealizedPnL))
		b.metrics.TradeClosed(string(t.CloseReason))
		b.publisher.Publish(broadcast.EventTrade, tradeEvent("closed", t))
		b.publisher.Publish(broadcast.EventAlert, broadcast.Alert{
			Level:   alertLevel(t),
			Message: fmt.Sprintf("%s closed (%s) pnl %.2f", t.Symbol, t.CloseReason, *t.RealizedPnL),
			Symbol:  t.Symbol,
		})
	}
}

func alertLevel(t models.Trade) string {
	if t.Realized() < 0 {
		return "warning"
	}
	return "info"
}

func (b *PaperBroker) reportLocked() {
	b.metrics.Positions(len(b.open), b.equityLocked())
}

// TradeEvent is the payload of a trade event.
type TradeEvent struct {
	Action string       `json:"action"`
	Trade  models.Trade `json:"trade"`
}

func tradeEvent(action string, t models.Trade) TradeEvent {
	return TradeEvent{Action: action, Trade: t}
}
