package performance

import (
	"math"
	"testing"
	"time"

	"stealth-signal-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedTrade(tier models.Tier, pnl float64, at time.Time) models.Trade {
	return models.Trade{
		Tier:        tier,
		Status:      models.TradeClosed,
		RealizedPnL: &pnl,
		OpenedAt:    at.Add(-time.Hour),
		ClosedAt:    &at,
	}
}

func day(d int) time.Time { return time.Date(2026, 1, d, 18, 0, 0, 0, time.UTC) }

func TestCalculate_Empty(t *testing.T) {
	r := Calculate(nil, 100000)

	assert.Zero(t, r.TotalTrades)
	assert.Zero(t, r.WinRate)
	assert.Zero(t, r.Sharpe)
	assert.Zero(t, r.MaxDrawdown)
	assert.Empty(t, r.TierPerformance)
	assert.NotNil(t, r.Daily)
}

func TestCalculate(t *testing.T) {
	// Arrange
	open := models.Trade{Status: models.TradeOpen, Tier: models.TierGold}
	trades := []models.Trade{
		closedTrade(models.TierGold, 100, day(2)),
		closedTrade(models.TierGold, -50, day(3)),
		closedTrade(models.TierSilver, 30, day(3)),
		closedTrade(models.TierPlatinum, -20, day(5)),
		open,
	}

	// Act
	r := Calculate(trades, 1000)

	// Assert
	assert.Equal(t, 4, r.TotalTrades)
	assert.Equal(t, 2, r.Wins)
	assert.Equal(t, 2, r.Losses)
	assert.InDelta(t, 0.5, r.WinRate, 1e-9)
	assert.InDelta(t, 60.0, r.TotalPnL, 1e-9)
	assert.InDelta(t, 65.0, r.AvgWin, 1e-9)
	assert.InDelta(t, -35.0, r.AvgLoss, 1e-9)
	assert.InDelta(t, 130.0/70.0, r.ProfitFactor, 1e-9)

	t.Run("daily aggregation", func(t *testing.T) {
		require.Len(t, r.Daily, 3)
		assert.InDelta(t, -20.0, r.Daily[1].PnL, 1e-9)
		assert.InDelta(t, 100.0, r.BestDay, 1e-9)
		assert.InDelta(t, -20.0, r.WorstDay, 1e-9)
	})

	t.Run("sharpe over daily pnl", func(t *testing.T) {
		daily := []float64{100, -20, -20}
		m := 20.0
		sd := math.Sqrt(((100-m)*(100-m) + 2*(-20-m)*(-20-m)) / 3)
		assert.InDelta(t, m/sd*math.Sqrt(252), r.Sharpe, 1e-9)
		assert.InDelta(t, Sharpe(daily), r.Sharpe, 1e-12)
	})

	t.Run("drawdown from the chronological equity curve", func(t *testing.T) {
		// 1000 -> 1100 -> 1050 -> 1080 -> 1060
		assert.InDelta(t, 50.0, r.MaxDrawdown, 1e-9)
		assert.InDelta(t, 50.0/1100*100, r.MaxDrawdownPct, 1e-9)
	})

	t.Run("tier performance", func(t *testing.T) {
		gold := r.TierPerformance[models.TierGold]
		assert.Equal(t, 2, gold.Trades)
		assert.InDelta(t, 0.5, gold.WinRate, 1e-9)
		assert.InDelta(t, 25.0, gold.AvgPnL, 1e-9)
		assert.Equal(t, 1, r.TierPerformance[models.TierPlatinum].Trades)
	})

	t.Run("monthly returns", func(t *testing.T) {
		require.Len(t, r.Monthly, 1)
		assert.Equal(t, "2026-01", r.Monthly[0].Month)
		assert.Equal(t, 4, r.Monthly[0].Trades)
	})
}

func TestDegenerateInputsStayFinite(t *testing.T) {
	cases := map[string][]models.Trade{
		"single day":     {closedTrade(models.TierGold, 10, day(1)), closedTrade(models.TierGold, 5, day(1))},
		"constant daily": {closedTrade(models.TierGold, 10, day(1)), closedTrade(models.TierGold, 10, day(2))},
		"all losses":     {closedTrade(models.TierBronze, -10, day(1)), closedTrade(models.TierBronze, -10, day(2))},
		"nan pnl":        {closedTrade(models.TierGold, math.NaN(), day(1))},
	}
	for name, trades := range cases {
		t.Run(name, func(t *testing.T) {
			r := Calculate(trades, 0)
			for _, v := range []float64{r.WinRate, r.Sharpe, r.Sortino, r.ProfitFactor, r.MaxDrawdown, r.MaxDrawdownPct, r.AvgWin, r.AvgLoss} {
				assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			}
		})
	}

	assert.Zero(t, Sharpe([]float64{10, 10}))
	assert.Zero(t, Sortino([]float64{10, 20}))
}
