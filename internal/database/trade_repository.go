package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stealth-signal-bot/internal/models"

	"gorm.io/gorm"
)

// TradeRepository persists simulated positions.
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a TradeRepository over db.
func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create inserts a new trade.
func (r *TradeRepository) Create(ctx context.Context, t *models.Trade) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create trade %s: %w", t.ID, err)
	}
	return nil
}

// CreateForSignal inserts t and marks its originating signal EXECUTED in one
// transaction. If the signal is no longer ACTIVE nothing is written and
// ErrImmutable is returned.
func (r *TradeRepository) CreateForSignal(ctx context.Context, t *models.Trade) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Signal{}).
			Where("id = ? AND status = ?", t.SignalID, models.SignalActive).
			Updates(map[string]interface{}{"status": models.SignalExecuted, "updated_at": t.OpenedAt})
		if res.Error != nil {
			return fmt.Errorf("mark signal %s executed: %w", t.SignalID, res.Error)
		}
		if res.RowsAffected != 1 {
			return ErrImmutable
		}
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("create trade %s: %w", t.ID, err)
		}
		return nil
	})
}

// GetByID loads one trade.
func (r *TradeRepository) GetByID(ctx context.Context, id string) (*models.Trade, error) {
	var t models.Trade
	err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trade %s: %w", id, err)
	}
	return &t, nil
}

// GetOpen returns all OPEN trades, oldest first.
func (r *TradeRepository) GetOpen(ctx context.Context) ([]models.Trade, error) {
	return r.List(ctx, models.TradeOpen, 0)
}

// GetClosed returns all CLOSED trades in the order they were closed.
func (r *TradeRepository) GetClosed(ctx context.Context) ([]models.Trade, error) {
	var out []models.Trade
	err := r.db.WithContext(ctx).
		Where("status = ?", models.TradeClosed).
		Order("closed_at asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("get closed trades: %w", err)
	}
	return out, nil
}

// GetBySymbol returns the trades for symbol, oldest first.
func (r *TradeRepository) GetBySymbol(ctx context.Context, symbol string) ([]models.Trade, error) {
	var out []models.Trade
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("opened_at asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("get trades for %s: %w", symbol, err)
	}
	return out, nil
}

// List returns trades filtered by status (all when empty), oldest first.
// A limit of zero means no limit.
func (r *TradeRepository) List(ctx context.Context, status models.TradeStatus, limit int) ([]models.Trade, error) {
	q := r.db.WithContext(ctx).Order("opened_at asc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Trade
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return out, nil
}

// UpdatePrices writes the mark-to-market fields of open trades.
// Closed trades are skipped.
func (r *TradeRepository) UpdatePrices(ctx context.Context, trades []models.Trade) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range trades {
			err := tx.Model(&models.Trade{}).
				Where("id = ? AND status = ?", t.ID, models.TradeOpen).
				Updates(map[string]interface{}{
					"current_price":   t.CurrentPrice,
					"unrealized_pnl":  t.UnrealizedPnL,
					"trailing_stop":   t.TrailingStop,
					"high_water_mark": t.HighWaterMark,
				}).Error
			if err != nil {
				return fmt.Errorf("update trade %s prices: %w", t.ID, err)
			}
		}
		return nil
	})
}

// UpdateStatus moves an OPEN trade to CLOSED, writing its terminal fields.
// A trade that is already CLOSED is never modified and yields ErrImmutable.
func (r *TradeRepository) UpdateStatus(ctx context.Context, t *models.Trade) error {
	closedAt := time.Now()
	if t.ClosedAt != nil {
		closedAt = *t.ClosedAt
	}
	res := r.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("id = ? AND status = ?", t.ID, models.TradeOpen).
		Updates(map[string]interface{}{
			"status":         t.Status,
			"close_reason":   t.CloseReason,
			"exit_price":     t.ExitPrice,
			"realized_pnl":   t.RealizedPnL,
			"closed_at":      closedAt,
			"current_price":  t.CurrentPrice,
			"unrealized_pnl": t.UnrealizedPnL,
			"trailing_stop":  t.TrailingStop,
		})
	if res.Error != nil {
		return fmt.Errorf("update trade %s: %w", t.ID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, t.ID); err != nil {
		return err
	}
	return ErrImmutable
}
