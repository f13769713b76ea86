package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"stealth-signal-bot/internal/broadcast"
	"stealth-signal-bot/internal/config"
	"stealth-signal-bot/internal/cooldown"
	"stealth-signal-bot/internal/indicators"
	"stealth-signal-bot/internal/marketdata"
	"stealth-signal-bot/internal/models"
	"stealth-signal-bot/internal/scoring"
	"stealth-signal-bot/internal/universe"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the scan state machine.
type State string

const (
	StateIdle     State = "IDLE"
	StateScanning State = "SCANNING"
	StateComplete State = "COMPLETE"
	StateError    State = "ERROR"
)

const topOpportunities = 10

// SignalStore is the persistence the orchestrator needs.
type SignalStore interface {
	Create(ctx context.Context, s *models.Signal) error
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
}

// Publisher receives signal events.
type Publisher interface {
	Publish(t broadcast.EventType, data interface{})
}

// Metrics receives scan counters.
type Metrics interface {
	ScanCompleted(d time.Duration, err error)
	SignalStored(tier string)
	CooldownRejected()
	ModuleFailed(module string)
	FetchFailed()
}

type nopMetrics struct{}

func (nopMetrics) ScanCompleted(time.Duration, error) {}
func (nopMetrics) SignalStored(string) {}
func (nopMetrics) CooldownRejected() {}
func (nopMetrics) ModuleFailed(string) {}
func (nopMetrics) FetchFailed() {}

// Opportunity is a scored symbol that reached a tier.
type Opportunity struct {
	Symbol     string             `json:"symbol"`
	Tier       models.Tier        `json:"tier"`
	Confidence float64            `json:"confidence"`
	Price      float64            `json:"price"`
	Scores     map[string]float64 `json:"scores"`
	Gate       scoring.GateResult `json:"gate"`
	Stored     bool               `json:"stored"`
}

// ScanResult summarizes one scan.
type ScanResult struct {
	Manual           bool            `json:"manual"`
	Session          string          `json:"session"`
	StartedAt        time.Time       `json:"started_at"`
	Duration         time.Duration   `json:"duration"`
	TotalScanned     int             `json:"total_scanned"`
	SignalsStored    int             `json:"signals_stored"`
	SignalsExpired   int64           `json:"signals_expired"`
	CooldownsActive  int             `json:"cooldowns_active"`
	TopOpportunities []Opportunity   `json:"top_opportunities"`
	Errors           []ScanError     `json:"errors"`
	Signals          []models.Signal `json:"signals,omitempty"`
}

// Status is the externally visible scan state.
type Status struct {
	State       State       `json:"state"`
	LastOutcome State       `json:"last_outcome,omitempty"`
	LastScanAt  time.Time   `json:"last_scan_at,omitempty"`
	LastResult  *ScanResult `json:"last_result,omitempty"`
}

// AfterScanFunc runs after every completed scan, outside the scan lock.
type AfterScanFunc func(ctx context.Context, res *ScanResult)

// Orchestrator runs scan cycles over the universe.
type Orchestrator struct {
	logger    *zap.Logger
	cfg       *config.Store
	universe  universe.Provider
	market    marketdata.Provider
	registry  *indicators.Registry
	gate      scoring.Gatekeeper
	cooldowns *cooldown.Manager
	signals   SignalStore
	publisher Publisher
	metrics   Metrics
	now       func() time.Time
	afterScan []AfterScanFunc

	running atomic.Bool

	mu     sync.RWMutex
	status Status

	loopMu sync.Mutex
	loop   *loop
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithMetrics(m Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func WithGatekeeper(g scoring.Gatekeeper) Option { return func(o *Orchestrator) { o.gate = g } }

// New creates an Orchestrator.
func New(
	logger *zap.Logger,
	cfg *config.Store,
	universe universe.Provider,
	market marketdata.Provider,
	registry *indicators.Registry,
	cooldowns *cooldown.Manager,
	signals SignalStore,
	publisher Publisher,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		logger:    logger.Named("orchestrator"),
		cfg:       cfg,
		universe:  universe,
		market:    market,
		registry:  registry,
		gate:      scoring.DefaultGatekeeper(),
		cooldowns: cooldowns,
		signals:   signals,
		publisher: publisher,
		metrics:   nopMetrics{},
		now:       time.Now,
		status:    Status{State: StateIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OnScanComplete registers fn to run after each completed scan. It must be
// called before the first scan.
func (o *Orchestrator) OnScanComplete(fn AfterScanFunc) {
	o.afterScan = append(o.afterScan, fn)
}

// Status returns the current scan state.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.status.State = s
	o.mu.Unlock()
}

type symbolResult struct {
	symbol string
	snap   *marketdata.Snapshot
	score  scoring.Result
	scored bool
	err    error
	module []*indicators.ModuleComputeError
}

// RunScan runs one scan over the universe. Only one scan runs at a time; a
// concurrent call fails with ErrScanRunning. The after-scan hooks run once
// the scan has released its slot.
func (o *Orchestrator) RunScan(ctx context.Context, manual bool) (*ScanResult, error) {
	res, err := o.runExclusive(ctx, manual)
	if err != nil {
		return res, err
	}
	for _, fn := range o.afterScan {
		fn(ctx, res)
	}
	return res, nil
}

func (o *Orchestrator) runExclusive(ctx context.Context, manual bool) (*ScanResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrScanRunning
	}
	defer o.running.Store(false)
	o.setState(StateScanning)

	res, err := o.scan(ctx, manual)

	outcome := StateComplete
	if err != nil {
		outcome = StateError
	}
	o.mu.Lock()
	o.status = Status{State: StateIdle, LastOutcome: outcome, LastScanAt: res.StartedAt, LastResult: res}
	o.mu.Unlock()
	o.metrics.ScanCompleted(res.Duration, err)

	if err != nil {
		o.logger.Error("Scan failed", zap.Bool("manual", manual), zap.Error(err))
		return res, err
	}
	o.logger.Info("Scan complete",
		zap.Bool("manual", manual),
		zap.Int("scanned", res.TotalScanned),
		zap.Int("stored", res.SignalsStored),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func (o *Orchestrator) scan(ctx context.Context, manual bool) (*ScanResult, error) {
	cfg := o.cfg.Get()
	start := o.now().UTC()
	session := marketdata.SessionAt(start)
	res := &ScanResult{
		Manual:           manual,
		Session:          string(session),
		StartedAt:        start,
		TopOpportunities: []Opportunity{},
		Errors:           []ScanError{},
	}
	defer func() { res.Duration = o.now().Sub(start) }()

	expired, err := o.signals.ExpireBefore(ctx, start)
	if err != nil {
		o.logger.Warn("Failed to expire old signals", zap.Error(err))
	}
	res.SignalsExpired = expired

	symbols, err := o.universe.Symbols(ctx)
	if err != nil {
		return res, fmt.Errorf("load universe: %w", err)
	}

	o.registry.Configure(cfg.Scanner.ModuleWeights, cfg.Scanner.ModuleEnabled)
	modules := o.registry.Snapshot()
	weights := modules.Weights()
	scorer := &scoring.Scorer{Thresholds: scoring.ThresholdsFrom(cfg.Scanner.Tiers), Gate: o.gate}
	o.cooldowns.Configure(cfg.Scanner.CooldownTTL(), cfg.Scanner.CooldownPolicy, cfg.Scanner.OverrideDelta)

	results := o.evaluate(ctx, symbols, cfg.Scanner, func(sym string, snap *marketdata.Snapshot) (scoring.Result, bool, []*indicators.ModuleComputeError) {
		set := modules.Evaluate(ctx, indicators.Input{Symbol: sym, Snapshot: snap, Now: start})
		score, ok := scorer.Score(set, weights, snap, session)
		return score, ok, set.Errors
	})

	var candidates []Opportunity
	for _, r := range results {
		res.TotalScanned++
		if r.err != nil {
			o.metrics.FetchFailed()
			res.Errors = append(res.Errors, ScanError{Kind: KindFetch, Symbol: r.symbol, Message: r.err.Error()})
			o.logger.Warn("Skipping symbol", zap.String("symbol", r.symbol), zap.Error(r.err))
			continue
		}
		for _, me := range r.module {
			o.metrics.ModuleFailed(me.Module)
			res.Errors = append(res.Errors, ScanError{Kind: KindModule, Symbol: r.symbol, Module: me.Module, Message: me.Err.Error()})
			o.logger.Warn("Module failed", zap.String("symbol", r.symbol), zap.String("module", me.Module), zap.Error(me.Err))
		}
		if !r.scored || r.score.Tier == models.TierNone {
			continue
		}
		if !r.score.Gate.Passed && r.score.Confidence >= scorer.Thresholds.Platinum {
			o.logger.Info("Gate demoted symbol",
				zap.String("symbol", r.symbol),
				zap.Float64("confidence", r.score.Confidence),
				zap.Strings("failures", r.score.Gate.Failures))
		}

		opp := Opportunity{
			Symbol:     r.symbol,
			Tier:       r.score.Tier,
			Confidence: r.score.Confidence,
			Price:      r.snap.Quote.Price,
			Scores:     r.score.Scores,
			Gate:       r.score.Gate,
		}
		if !o.cooldowns.Allow(r.symbol, r.score.Confidence) {
			o.metrics.CooldownRejected()
			candidates = append(candidates, opp)
			continue
		}

		sig := o.newSignal(r.symbol, r.snap.Quote.Price, r.score, start, cfg)
		if err := o.signals.Create(ctx, &sig); err != nil {
			o.cooldowns.Forget(r.symbol)
			res.Errors = append(res.Errors, ScanError{Kind: KindPersist, Symbol: r.symbol, Message: err.Error()})
			o.logger.Error("Failed to store signal", zap.String("symbol", r.symbol), zap.Error(err))
			candidates = append(candidates, opp)
			continue
		}
		opp.Stored = true
		candidates = append(candidates, opp)
		res.SignalsStored++
		res.Signals = append(res.Signals, sig)
		o.metrics.SignalStored(string(sig.Tier))
		o.publisher.Publish(broadcast.EventSignal, sig)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Confidence > candidates[j].Confidence })
	if len(candidates) > topOpportunities {
		candidates = candidates[:topOpportunities]
	}
	res.TopOpportunities = append(res.TopOpportunities, candidates...)
	res.CooldownsActive = o.cooldowns.Active()
	return res, nil
}

type scoreFunc func(symbol string, snap *marketdata.Snapshot) (scoring.Result, bool, []*indicators.ModuleComputeError)

// evaluate fetches and scores symbols with a bounded worker pool. Results
// come back in universe order.
func (o *Orchestrator) evaluate(ctx context.Context, symbols []string, cfg config.Scanner, score scoreFunc) []symbolResult {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(symbols) {
		workers = len(symbols)
	}

	results := make([]symbolResult, len(symbols))
	workCh := make(chan int, len(symbols))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range workCh {
				results[idx] = o.evaluateSymbol(ctx, symbols[idx], cfg.FetchTimeout, score)
			}
		}()
	}
	for i := range symbols {
		workCh <- i
	}
	close(workCh)
	wg.Wait()
	return results
}

func (o *Orchestrator) evaluateSymbol(ctx context.Context, symbol string, timeout time.Duration, score scoreFunc) (r symbolResult) {
	r.symbol = symbol
	defer func() {
		if p := recover(); p != nil {
			r.err = fmt.Errorf("panic while scoring: %v", p)
		}
	}()

	fctx, cancel := context.WithTimeout(ctx, timeout)
	snap, err := o.market.GetSnapshot(fctx, symbol)
	cancel()
	if err != nil {
		r.err = &DataFetchError{Symbol: symbol, Err: err}
		return r
	}
	if snap == nil || snap.Quote.Price <= 0 {
		r.err = &DataFetchError{Symbol: symbol, Err: errors.New("no usable quote")}
		return r
	}
	r.snap = snap
	r.score, r.scored, r.module = score(symbol, snap)
	return r
}

func (o *Orchestrator) newSignal(symbol string, price float64, score scoring.Result, at time.Time, cfg config.Config) models.Signal {
	target := price * (1 + cfg.Trading.TakeProfitPct)
	stop := price * (1 - cfg.Trading.StopLossPct)
	sig := models.Signal{
		ID:          fmt.Sprintf("SIG_%d_%s_%s", at.Unix(), symbol, uuid.NewString()[:8]),
		Symbol:      symbol,
		Tier:        score.Tier,
		Confidence:  score.Confidence,
		Action:      models.ActionBuy,
		EntryPrice:  price,
		TargetPrice: &target,
		StopLoss:    &stop,
		Status:      models.SignalActive,
		ScannedAt:   at,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	if cfg.Scanner.SignalTTL > 0 {
		sig.ExpiresAt = at.Add(cfg.Scanner.SignalTTL)
	}
	return sig
}
