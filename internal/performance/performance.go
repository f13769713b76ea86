package performance

import (
	"math"
	"sort"
	"time"

	"stealth-signal-bot/internal/models"
)

const tradingDays = 252

// TierStats aggregates closed trades that came from one signal tier.
type TierStats struct {
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	WinRate  float64 `json:"win_rate"`
	TotalPnL float64 `json:"total_pnl"`
	AvgPnL   float64 `json:"avg_pnl"`
}

// DayPnL is realized pnl summed over one UTC calendar day.
type DayPnL struct {
	Date string  `json:"date"`
	PnL  float64 `json:"pnl"`
}

// MonthReturn is realized pnl summed over one calendar month.
type MonthReturn struct {
	Month  string  `json:"month"`
	PnL    float64 `json:"pnl"`
	Trades int     `json:"trades"`
}

// Report holds statistics derived from closed trades. Every figure is finite.
type Report struct {
	TotalTrades     int                       `json:"total_trades"`
	Wins            int                       `json:"wins"`
	Losses          int                       `json:"losses"`
	WinRate         float64                   `json:"win_rate"`
	TotalPnL        float64                   `json:"total_pnl"`
	AvgWin          float64                   `json:"avg_win"`
	AvgLoss         float64                   `json:"avg_loss"`
	ProfitFactor    float64                   `json:"profit_factor"` // 0 when there are no losses
	Sharpe          float64                   `json:"sharpe_ratio"`
	Sortino         float64                   `json:"sortino_ratio"`
	MaxDrawdown     float64                   `json:"max_drawdown"`
	MaxDrawdownPct  float64                   `json:"max_drawdown_pct"`
	BestDay         float64                   `json:"best_day"`
	WorstDay        float64                   `json:"worst_day"`
	Daily           []DayPnL                  `json:"daily_pnl"`
	Monthly         []MonthReturn             `json:"monthly_returns"`
	TierPerformance map[models.Tier]TierStats `json:"tier_performance"`
}

// Calculate derives a Report from trades. Trades that are not CLOSED or
// carry no realized pnl are ignored. initialCapital anchors the equity
// curve for the percentage drawdown; pass 0 to skip it.
func Calculate(trades []models.Trade, initialCapital float64) Report {
	closed := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Status != models.TradeClosed || t.RealizedPnL == nil || !finite(*t.RealizedPnL) {
			continue
		}
		closed = append(closed, t)
	}
	sort.SliceStable(closed, func(i, j int) bool { return closedAt(closed[i]).Before(closedAt(closed[j])) })

	r := Report{
		TotalTrades:     len(closed),
		Daily:           []DayPnL{},
		Monthly:         []MonthReturn{},
		TierPerformance: map[models.Tier]TierStats{},
	}
	if len(closed) == 0 {
		return r
	}

	var grossWin, grossLoss float64
	days := map[string]int{}
	months := map[string]int{}
	for _, t := range closed {
		pnl := *t.RealizedPnL
		r.TotalPnL += pnl
		switch {
		case pnl > 0:
			r.Wins++
			grossWin += pnl
		case pnl < 0:
			r.Losses++
			grossLoss += -pnl
		}

		ts := r.TierPerformance[t.Tier]
		ts.Trades++
		ts.TotalPnL += pnl
		if pnl > 0 {
			ts.Wins++
		}
		r.TierPerformance[t.Tier] = ts

		at := closedAt(t).UTC()
		day := at.Format("2006-01-02")
		if i, ok := days[day]; ok {
			r.Daily[i].PnL += pnl
		} else {
			days[day] = len(r.Daily)
			r.Daily = append(r.Daily, DayPnL{Date: day, PnL: pnl})
		}
		month := at.Format("2006-01")
		if i, ok := months[month]; ok {
			r.Monthly[i].PnL += pnl
			r.Monthly[i].Trades++
		} else {
			months[month] = len(r.Monthly)
			r.Monthly = append(r.Monthly, MonthReturn{Month: month, PnL: pnl, Trades: 1})
		}
	}

	r.WinRate = float64(r.Wins) / float64(r.TotalTrades)
	if r.Wins > 0 {
		r.AvgWin = grossWin / float64(r.Wins)
	}
	if r.Losses > 0 {
		r.AvgLoss = -grossLoss / float64(r.Losses)
	}
	if grossLoss > 0 {
		r.ProfitFactor = grossWin / grossLoss
	}
	for tier, ts := range r.TierPerformance {
		ts.WinRate = float64(ts.Wins) / float64(ts.Trades)
		ts.AvgPnL = ts.TotalPnL / float64(ts.Trades)
		r.TierPerformance[tier] = ts
	}

	daily := make([]float64, len(r.Daily))
	for i, d := range r.Daily {
		daily[i] = d.PnL
	}
	r.BestDay, r.WorstDay = daily[0], daily[0]
	for _, v := range daily[1:] {
		r.BestDay = math.Max(r.BestDay, v)
		r.WorstDay = math.Min(r.WorstDay, v)
	}
	r.Sharpe = Sharpe(daily)
	r.Sortino = Sortino(daily)

	pnls := make([]float64, len(closed))
	for i, t := range closed {
		pnls[i] = *t.RealizedPnL
	}
	r.MaxDrawdown, r.MaxDrawdownPct = MaxDrawdown(pnls, initialCapital)
	return r
}

// Sharpe is mean/stdev of daily pnl annualized by sqrt(252). It is 0 with
// fewer than two days or no variance.
func Sharpe(daily []float64) float64 {
	if len(daily) < 2 {
		return 0
	}
	sd := stdev(daily)
	if sd == 0 {
		return 0
	}
	return safe(mean(daily) / sd * math.Sqrt(tradingDays))
}

// Sortino is like Sharpe with the downside deviation as the denominator.
func Sortino(daily []float64) float64 {
	if len(daily) < 2 {
		return 0
	}
	var sq float64
	for _, v := range daily {
		if v < 0 {
			sq += v * v
		}
	}
	dd := math.Sqrt(sq / float64(len(daily)))
	if dd == 0 {
		return 0
	}
	return safe(mean(daily) / dd * math.Sqrt(tradingDays))
}

// MaxDrawdown is the largest peak-to-trough decline of the cumulative
// equity curve built from pnls in order. The percentage is relative to the
// peak equity and is 0 when initialCapital is not positive.
func MaxDrawdown(pnls []float64, initialCapital float64) (amount, pct float64) {
	equity := math.Max(initialCapital, 0)
	peak := equity
	for _, p := range pnls {
		equity += p
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > amount {
			amount = dd
			if initialCapital > 0 && peak > 0 {
				pct = dd / peak * 100
			}
		}
	}
	return safe(amount), safe(pct)
}

func closedAt(t models.Trade) time.Time {
	if t.ClosedAt != nil {
		return *t.ClosedAt
	}
	return t.OpenedAt
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func stdev(xs []float64) float64 {
	m := mean(xs)
	var s float64
	for _, x := range xs {
		s += (x - m) * (x - m)
	}
	return math.Sqrt(s / float64(len(xs)))
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func safe(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return v
}
