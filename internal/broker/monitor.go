package broker

import (
	"context"
	"time"

	"stealth-signal-bot/internal/broadcast"
	"stealth-signal-bot/internal/marketdata"

	"go.uber.org/zap"
)

// MarketUpdate is the payload of a market_update event.
type MarketUpdate struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	ChangePct float64   `json:"change_pct"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Tick quotes every symbol with an open position, applies the prices as one
// batch and publishes a market_update per symbol. Quote failures skip that
// symbol for this tick.
func (b *PaperBroker) Tick(ctx context.Context, timeout time.Duration) []string {
	symbols := b.OpenSymbols()
	if len(symbols) == 0 {
		return nil
	}

	prices := make(map[string]float64, len(symbols))
	quotes := make([]marketdata.Quote, 0, len(symbols))
	for _, sym := range symbols {
		qctx, cancel := context.WithTimeout(ctx, timeout)
		q, err := b.market.GetQuote(qctx, sym)
		cancel()
		if err != nil {
			b.logger.Warn("Failed to quote open position", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		quote := *q
		quote.Symbol = sym
		prices[sym] = quote.Price
		quotes = append(quotes, quote)
	}

	b.OnMarketUpdate(ctx, prices)
	for _, q := range quotes {
		b.publisher.Publish(broadcast.EventMarketUpdate, MarketUpdate{
			Symbol:    q.Symbol,
			Price:     q.Price,
			ChangePct: q.ChangePct(),
			Volume:    q.Volume,
			Timestamp: q.Timestamp,
		})
	}
	updated := make([]string, 0, len(prices))
	for _, sym := range symbols {
		if _, ok := prices[sym]; ok {
			updated = append(updated, sym)
		}
	}
	return updated
}

// Monitor ticks every trading.monitor_interval until ctx is done.
func (b *PaperBroker) Monitor(ctx context.Context) {
	interval := b.cfg.Get().Trading.MonitorInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.logger.Info("Starting position monitor", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Stopping position monitor...")
			return
		case <-ticker.C:
			timeout := b.cfg.Get().Scanner.FetchTimeout
			b.Tick(ctx, timeout)
		}
	}
}
