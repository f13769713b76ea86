package report

import (
	"fmt"
	"io"
	"sort"

	"stealth-signal-bot/internal/models"
	"stealth-signal-bot/internal/performance"

	"github.com/olekukonko/tablewriter"
)

// Console renders performance reports as text tables.
type Console struct {
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Print writes the summary, tier, monthly and open position tables.
func (c *Console) Print(r performance.Report, open []models.Trade) {
	fmt.Fprintf(c.out, "\n  PERFORMANCE (%d closed trades)\n\n", r.TotalTrades)
	c.printSummary(r)

	if len(r.TierPerformance) > 0 {
		fmt.Fprintf(c.out, "\n  --- BY TIER ---\n")
		c.printTiers(r.TierPerformance)
	}
	if len(r.Monthly) > 0 {
		fmt.Fprintf(c.out, "\n  --- MONTHLY ---\n")
		c.printMonthly(r.Monthly)
	}
	if len(open) > 0 {
		fmt.Fprintf(c.out, "\n  --- OPEN POSITIONS ---\n")
		c.printOpen(open)
	}
}

func (c *Console) printSummary(r performance.Report) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")
	rows := [][]string{
		{"Win rate", fmt.Sprintf("%.1f%%", r.WinRate*100)},
		{"Wins / Losses", fmt.Sprintf("%d / %d", r.Wins, r.Losses)},
		{"Total PnL", fmt.Sprintf("$%.2f", r.TotalPnL)},
		{"Avg win", fmt.Sprintf("$%.2f", r.AvgWin)},
		{"Avg loss", fmt.Sprintf("$%.2f", r.AvgLoss)},
		{"Profit factor", fmt.Sprintf("%.2f", r.ProfitFactor)},
		{"Sharpe", fmt.Sprintf("%.2f", r.Sharpe)},
		{"Sortino", fmt.Sprintf("%.2f", r.Sortino)},
		{"Max drawdown", fmt.Sprintf("$%.2f (%.2f%%)", r.MaxDrawdown, r.MaxDrawdownPct)},
		{"Best / worst day", fmt.Sprintf("$%.2f / $%.2f", r.BestDay, r.WorstDay)},
	}
	for _, row := range rows {
		table.Append(row[0], row[1])
	}
	table.Render()
}

func (c *Console) printTiers(tiers map[models.Tier]performance.TierStats) {
	keys := make([]models.Tier, 0, len(tiers))
	for t := range tiers {
		keys = append(keys, t)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Rank() > keys[j].Rank() })

	table := tablewriter.NewWriter(c.out)
	table.Header("Tier", "Trades", "Win%", "PnL", "Avg")
	for _, t := range keys {
		s := tiers[t]
		table.Append(
			string(t),
			fmt.Sprintf("%d", s.Trades),
			fmt.Sprintf("%.1f", s.WinRate*100),
			fmt.Sprintf("$%.2f", s.TotalPnL),
			fmt.Sprintf("$%.2f", s.AvgPnL),
		)
	}
	table.Render()
}

func (c *Console) printMonthly(months []performance.MonthReturn) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Month", "Trades", "PnL")
	for _, m := range months {
		table.Append(m.Month, fmt.Sprintf("%d", m.Trades), fmt.Sprintf("$%.2f", m.PnL))
	}
	table.Render()
}

func (c *Console) printOpen(open []models.Trade) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Symbol", "Tier", "Qty", "Entry", "Mark", "Unrealized")
	for _, t := range open {
		table.Append(
			t.Symbol,
			string(t.Tier),
			fmt.Sprintf("%.4f", t.Quantity),
			fmt.Sprintf("$%.2f", t.EntryPrice),
			fmt.Sprintf("$%.2f", t.CurrentPrice),
			fmt.Sprintf("$%.2f", t.UnrealizedPnL),
		)
	}
	table.Render()
}
