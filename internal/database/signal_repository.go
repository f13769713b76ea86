package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stealth-signal-bot/internal/models"

	"gorm.io/gorm"
)

// SignalRepository persists signals.
type SignalRepository struct {
	db *gorm.DB
}

// NewSignalRepository creates a SignalRepository over db.
func NewSignalRepository(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Create inserts a new signal.
func (r *SignalRepository) Create(ctx context.Context, s *models.Signal) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("create signal %s: %w", s.ID, err)
	}
	return nil
}

// GetByID loads one signal.
func (r *SignalRepository) GetByID(ctx context.Context, id string) (*models.Signal, error) {
	var s models.Signal
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signal %s: %w", id, err)
	}
	return &s, nil
}

// GetOpen returns all ACTIVE signals, newest first.
func (r *SignalRepository) GetOpen(ctx context.Context) ([]models.Signal, error) {
	var out []models.Signal
	err := r.db.WithContext(ctx).
		Where("status = ?", models.SignalActive).
		Order("created_at desc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("get active signals: %w", err)
	}
	return out, nil
}

// GetBySymbol returns the signals for symbol, newest first.
func (r *SignalRepository) GetBySymbol(ctx context.Context, symbol string) ([]models.Signal, error) {
	var out []models.Signal
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("created_at desc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("get signals for %s: %w", symbol, err)
	}
	return out, nil
}

// List returns the most recent signals up to limit.
func (r *SignalRepository) List(ctx context.Context, limit int) ([]models.Signal, error) {
	var out []models.Signal
	err := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	return out, nil
}

// UpdateStatus moves an ACTIVE signal to status. Signals that already left
// ACTIVE are never modified and yield ErrImmutable.
func (r *SignalRepository) UpdateStatus(ctx context.Context, id string, status models.SignalStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("id = ? AND status = ?", id, models.SignalActive).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("update signal %s: %w", id, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrImmutable
}

// ExpireBefore marks every ACTIVE signal whose expiry is at or before now as
// EXPIRED. Signals without an expiry are left alone.
func (r *SignalRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("status = ? AND expires_at > ? AND expires_at <= ?", models.SignalActive, time.Time{}, now).
		Updates(map[string]interface{}{"status": models.SignalExpired, "updated_at": now})
	if res.Error != nil {
		return 0, fmt.Errorf("expire signals: %w", res.Error)
	}
	return res.RowsAffected, nil
}
