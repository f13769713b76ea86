package database

import (
	"context"
	"testing"
	"time"

	"stealth-signal-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTest(t *testing.T) *gorm.DB {
	db, err := NewDatabase("file::memory:")
	require.NoError(t, err)
	return db
}

func newSignal(id, symbol string, created time.Time) *models.Signal {
	return &models.Signal{
		ID:         id,
		Symbol:     symbol,
		Tier:       models.TierGold,
		Confidence: 80,
		Action:     models.ActionBuy,
		EntryPrice: 10,
		Status:     models.SignalActive,
		ScannedAt:  created,
		CreatedAt:  created,
		ExpiresAt:  created.Add(time.Hour),
	}
}

func TestSignalRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	t.Run("create and query", func(t *testing.T) {
		// Arrange
		repo := NewSignalRepository(setupTest(t))
		require.NoError(t, repo.Create(ctx, newSignal("SIG_1", "AAPL", now)))
		require.NoError(t, repo.Create(ctx, newSignal("SIG_2", "AAPL", now.Add(time.Minute))))
		require.NoError(t, repo.Create(ctx, newSignal("SIG_3", "TSLA", now)))

		// Act
		bySymbol, err := repo.GetBySymbol(ctx, "AAPL")
		require.NoError(t, err)
		open, err := repo.GetOpen(ctx)
		require.NoError(t, err)

		// Assert
		require.Len(t, bySymbol, 2)
		assert.Equal(t, "SIG_2", bySymbol[0].ID)
		assert.Len(t, open, 3)
	})

	t.Run("status transitions are one way", func(t *testing.T) {
		repo := NewSignalRepository(setupTest(t))
		require.NoError(t, repo.Create(ctx, newSignal("SIG_1", "AAPL", now)))

		assert.NoError(t, repo.UpdateStatus(ctx, "SIG_1", models.SignalExecuted))
		assert.ErrorIs(t, repo.UpdateStatus(ctx, "SIG_1", models.SignalExpired), ErrImmutable)
		assert.ErrorIs(t, repo.UpdateStatus(ctx, "SIG_404", models.SignalExpired), ErrNotFound)

		s, err := repo.GetByID(ctx, "SIG_1")
		require.NoError(t, err)
		assert.Equal(t, models.SignalExecuted, s.Status)
	})

	t.Run("expire old signals", func(t *testing.T) {
		repo := NewSignalRepository(setupTest(t))
		require.NoError(t, repo.Create(ctx, newSignal("SIG_OLD", "AAPL", now.Add(-2*time.Hour))))
		require.NoError(t, repo.Create(ctx, newSignal("SIG_NEW", "AAPL", now)))

		n, err := repo.ExpireBefore(ctx, now)

		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		old, _ := repo.GetByID(ctx, "SIG_OLD")
		assert.Equal(t, models.SignalExpired, old.Status)
	})
}

func TestTradeRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	t.Run("create for signal is atomic", func(t *testing.T) {
		// Arrange
		db := setupTest(t)
		signals := NewSignalRepository(db)
		trades := NewTradeRepository(db)
		require.NoError(t, signals.Create(ctx, newSignal("SIG_1", "AAPL", now)))
		trade := &models.Trade{ID: "T1", SignalID: "SIG_1", Symbol: "AAPL", Quantity: 2, EntryPrice: 10, Status: models.TradeOpen, OpenedAt: now}

		// Act
		err := trades.CreateForSignal(ctx, trade)
		again := trades.CreateForSignal(ctx, &models.Trade{ID: "T2", SignalID: "SIG_1", Symbol: "AAPL", Quantity: 1, EntryPrice: 10, Status: models.TradeOpen, OpenedAt: now})

		// Assert
		require.NoError(t, err)
		assert.ErrorIs(t, again, ErrImmutable)
		_, err = trades.GetByID(ctx, "T2")
		assert.ErrorIs(t, err, ErrNotFound)
		s, _ := signals.GetByID(ctx, "SIG_1")
		assert.Equal(t, models.SignalExecuted, s.Status)
	})

	t.Run("close is terminal", func(t *testing.T) {
		trades := NewTradeRepository(setupTest(t))
		trade := &models.Trade{ID: "T1", Symbol: "AAPL", Quantity: 2, EntryPrice: 10, Status: models.TradeOpen, OpenedAt: now}
		require.NoError(t, trades.Create(ctx, trade))

		exit, pnl := 12.0, 4.0
		closedAt := now.Add(time.Hour)
		trade.Status = models.TradeClosed
		trade.ExitPrice = &exit
		trade.RealizedPnL = &pnl
		trade.ClosedAt = &closedAt
		trade.CloseReason = models.CloseManual

		require.NoError(t, trades.UpdateStatus(ctx, trade))
		assert.ErrorIs(t, trades.UpdateStatus(ctx, trade), ErrImmutable)

		open, err := trades.GetOpen(ctx)
		require.NoError(t, err)
		assert.Empty(t, open)
		closed, err := trades.GetClosed(ctx)
		require.NoError(t, err)
		require.Len(t, closed, 1)
		assert.InDelta(t, 4.0, closed[0].Realized(), 1e-9)
		assert.Equal(t, models.CloseManual, closed[0].CloseReason)
	})

	t.Run("pnl columns use snake case names", func(t *testing.T) {
		m := setupTest(t).Migrator()

		assert.True(t, m.HasColumn(&models.Trade{}, "realized_pnl"))
		assert.True(t, m.HasColumn(&models.Trade{}, "unrealized_pnl"))
		assert.False(t, m.HasColumn(&models.Trade{}, "realized_pn_l"))
	})

	t.Run("price updates skip closed trades", func(t *testing.T) {
		trades := NewTradeRepository(setupTest(t))
		open := models.Trade{ID: "T1", Symbol: "AAPL", Quantity: 1, EntryPrice: 10, Status: models.TradeOpen, OpenedAt: now}
		closed := models.Trade{ID: "T2", Symbol: "AAPL", Quantity: 1, EntryPrice: 10, CurrentPrice: 9, Status: models.TradeClosed, OpenedAt: now}
		require.NoError(t, trades.Create(ctx, &open))
		require.NoError(t, trades.Create(ctx, &closed))

		open.Reprice(11)
		closed.Reprice(11)
		require.NoError(t, trades.UpdatePrices(ctx, []models.Trade{open, closed}))

		got, _ := trades.GetByID(ctx, "T1")
		assert.InDelta(t, 1.0, got.UnrealizedPnL, 1e-9)
		got, _ = trades.GetByID(ctx, "T2")
		assert.InDelta(t, 9.0, got.CurrentPrice, 1e-9)

		bySymbol, err := trades.GetBySymbol(ctx, "AAPL")
		require.NoError(t, err)
		assert.Len(t, bySymbol, 2)
	})
}
