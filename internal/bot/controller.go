package bot

import (
	"context"
	"sync"
	"time"

	"stealth-signal-bot/internal/broadcast"
	"stealth-signal-bot/internal/config"
	"stealth-signal-bot/internal/models"
	"stealth-signal-bot/internal/orchestrator"

	"go.uber.org/zap"
)

// Scanner is the part of the orchestrator the controller drives.
type Scanner interface {
	RunScan(ctx context.Context, manual bool) (*orchestrator.ScanResult, error)
	Start(ctx context.Context) bool
	Stop() bool
	Status() orchestrator.Status
	OnScanComplete(fn orchestrator.AfterScanFunc)
}

// Executor opens positions for signals.
type Executor interface {
	Execute(ctx context.Context, signalID string) (*models.Trade, error)
	OnTradeOpened(fn func(models.Trade))
}

// Cooldowns is cleared on reset.
type Cooldowns interface {
	Clear()
}

// Publisher receives bot_status events.
type Publisher interface {
	Publish(t broadcast.EventType, data interface{})
}

// Controller owns the process-wide BotStatus. Every mutation of the status
// goes through its methods.
type Controller struct {
	logger    *zap.Logger
	cfg       *config.Store
	scanner   Scanner
	executor  Executor
	cooldowns Cooldowns
	publisher Publisher
	now       func() time.Time

	// control serializes operations that start or stop the scan loop.
	control sync.Mutex
	base    context.Context

	mu     sync.Mutex
	status models.BotStatus
}

// NewController wires the controller into the scanner and executor hooks.
func NewController(logger *zap.Logger, cfg *config.Store, scanner Scanner, executor Executor, cooldowns Cooldowns, publisher Publisher) *Controller {
	c := &Controller{
		logger:    logger.Named("bot"),
		cfg:       cfg,
		scanner:   scanner,
		executor:  executor,
		cooldowns: cooldowns,
		publisher: publisher,
		now:       time.Now,
		base:      context.Background(),
	}
	c.status = models.BotStatus{
		AutoTrading:  cfg.Get().Trading.AutoTrade,
		LastActionAt: c.now().UTC(),
	}
	scanner.OnScanComplete(c.afterScan)
	executor.OnTradeOpened(c.tradeOpened)
	return c
}

// Run binds the scan loop to ctx and blocks until ctx is done, then stops the loop.
func (c *Controller) Run(ctx context.Context) {
	c.control.Lock()
	c.base = ctx
	c.control.Unlock()

	<-ctx.Done()
	c.scanner.Stop()
}

// GetStatus returns a copy of the current status.
func (c *Controller) GetStatus() models.BotStatus {
	c.mu.Lock()
	s := c.status
	c.mu.Unlock()
	s.ScanState = string(c.scanner.Status().State)
	return s
}

func (c *Controller) update(fn func(s *models.BotStatus)) models.BotStatus {
	c.mu.Lock()
	fn(&c.status)
	c.mu.Unlock()
	s := c.GetStatus()
	c.publisher.Publish(broadcast.EventBotStatus, s)
	return s
}

// ToggleAutoTrade flips auto-trading.
func (c *Controller) ToggleAutoTrade() models.BotStatus {
	s := c.update(func(s *models.BotStatus) {
		s.AutoTrading = !s.AutoTrading
		s.LastActionAt = c.now().UTC()
	})
	c.logger.Info("Auto trading toggled", zap.Bool("enabled", s.AutoTrading))
	return s
}

// ToggleScanning starts or stops the scheduled scan loop. Stopping waits for
// an in-flight scan to finish.
func (c *Controller) ToggleScanning() models.BotStatus {
	c.control.Lock()
	defer c.control.Unlock()

	c.mu.Lock()
	on := !c.status.Scanning
	c.mu.Unlock()

	if on {
		c.scanner.Start(c.base)
	} else {
		c.scanner.Stop()
	}
	s := c.update(func(s *models.BotStatus) {
		s.Scanning = on
		s.LastActionAt = c.now().UTC()
	})
	c.logger.Info("Scanning toggled", zap.Bool("enabled", on))
	return s
}

// Reset stops the scan loop, disables auto-trading, clears cooldowns and
// zeroes the counters. Open positions are left untouched.
func (c *Controller) Reset() models.BotStatus {
	c.control.Lock()
	defer c.control.Unlock()

	c.scanner.Stop()
	c.cooldowns.Clear()
	s := c.update(func(s *models.BotStatus) {
		s.AutoTrading = false
		s.Scanning = false
		s.ScanCount = 0
		s.TradeCount = 0
		s.LastScanAt = time.Time{}
		s.LastActionAt = c.now().UTC()
	})
	c.logger.Info("Bot state reset")
	return s
}

// RunScan runs a one-shot manual scan.
func (c *Controller) RunScan(ctx context.Context) (*orchestrator.ScanResult, error) {
	c.mu.Lock()
	c.status.LastActionAt = c.now().UTC()
	c.mu.Unlock()
	return c.scanner.RunScan(ctx, true)
}

func (c *Controller) afterScan(ctx context.Context, res *orchestrator.ScanResult) {
	var auto bool
	c.update(func(s *models.BotStatus) {
		s.ScanCount++
		s.LastScanAt = res.StartedAt
		auto = s.AutoTrading
	})
	if !auto || len(res.Signals) == 0 {
		return
	}

	minConf := c.cfg.Get().Trading.MinConfidence
	for _, sig := range res.Signals {
		if sig.Confidence < minConf {
			continue
		}
		if _, err := c.executor.Execute(ctx, sig.ID); err != nil {
			c.logger.Warn("Auto trade failed", zap.String("signal", sig.ID), zap.String("symbol", sig.Symbol), zap.Error(err))
		}
	}
}

func (c *Controller) tradeOpened(models.Trade) {
	c.update(func(s *models.BotStatus) { s.TradeCount++ })
}
