package orchestrator

import (
	"context"
	"errors"
	"time"

	"stealth-signal-bot/internal/config"
	"stealth-signal-bot/internal/marketdata"

	"go.uber.org/zap"
)

type loop struct {
	stop chan struct{}
	done chan struct{}
}

// Start launches the scheduled scan loop. It scans once immediately and then
// every scanner interval. Calling Start while the loop runs is a no-op.
func (o *Orchestrator) Start(ctx context.Context) bool {
	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	if o.loop != nil {
		return false
	}
	l := &loop{stop: make(chan struct{}), done: make(chan struct{})}
	o.loop = l
	go o.run(ctx, l)
	return true
}

// Stop halts the scheduled loop and waits for an in-flight scan to finish.
// It reports whether a loop was running.
func (o *Orchestrator) Stop() bool {
	o.loopMu.Lock()
	l := o.loop
	o.loop = nil
	o.loopMu.Unlock()
	if l == nil {
		return false
	}
	close(l.stop)
	<-l.done
	return true
}

// Running reports whether the scheduled loop is active.
func (o *Orchestrator) Running() bool {
	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	return o.loop != nil
}

func (o *Orchestrator) run(ctx context.Context, l *loop) {
	defer close(l.done)
	defer func() {
		o.loopMu.Lock()
		if o.loop == l {
			o.loop = nil
		}
		o.loopMu.Unlock()
	}()

	interval := o.cfg.Get().Scanner.Interval
	o.logger.Info("Starting scan loop", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		o.scheduledScan(ctx)

		// Pick up interval changes made through the config store.
		if next := o.cfg.Get().Scanner.Interval; next != interval {
			interval = next
			ticker.Reset(interval)
			o.logger.Info("Scan interval changed", zap.Duration("interval", interval))
		}

		select {
		case <-ctx.Done():
			o.logger.Info("Stopping scan loop...")
			return
		case <-l.stop:
			o.logger.Info("Scan loop stopped")
			return
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) scheduledScan(ctx context.Context) {
	session := marketdata.SessionAt(o.now())
	if !sessionEnabled(o.cfg.Get().Scanner.MarketSessions, session) {
		o.logger.Debug("Outside enabled market sessions, skipping scan", zap.String("session", string(session)))
		return
	}
	if _, err := o.RunScan(ctx, false); err != nil && !errors.Is(err, ErrScanRunning) {
		o.logger.Error("Scheduled scan failed", zap.Error(err))
	}
}

func sessionEnabled(s config.MarketSessions, session marketdata.Session) bool {
	switch session {
	case marketdata.SessionPremarket:
		return s.Premarket
	case marketdata.SessionRegular:
		return s.Regular
	case marketdata.SessionAfterhours:
		return s.Afterhours
	default:
		return false
	}
}
