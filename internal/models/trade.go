package models

import "time"

// TradeStatus is the lifecycle state of a simulated position.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

// CloseReason records why a position was closed.
type CloseReason string

const (
	CloseStopLoss     CloseReason = "STOP_LOSS"
	CloseTakeProfit   CloseReason = "TAKE_PROFIT"
	CloseTrailingStop CloseReason = "TRAILING_STOP"
	CloseManual       CloseReason = "MANUAL"
)

// Trade is a simulated long position opened from a Signal.
// UnrealizedPnL is derived from CurrentPrice and only ever set by Reprice.
// A CLOSED trade never transitions again.
type Trade struct {
	ID            string      `gorm:"primaryKey" json:"id"`
	SignalID      string      `gorm:"index" json:"signal_id"`
	Symbol        string      `gorm:"index" json:"symbol"`
	Tier          Tier        `gorm:"index" json:"tier"`
	Confidence    float64     `json:"confidence"`
	Quantity      float64     `json:"quantity"`
	QuotedPrice   float64     `json:"quoted_price"`
	EntryPrice    float64     `json:"entry_price"`
	CurrentPrice  float64     `json:"current_price"`
	StopLoss      *float64    `json:"stop_loss,omitempty"`
	TakeProfit    *float64    `json:"take_profit,omitempty"`
	TrailingStop  *float64    `json:"trailing_stop,omitempty"`
	TrailingPct   float64     `json:"trailing_pct,omitempty"`
	HighWaterMark float64     `json:"high_water_mark"`
	UnrealizedPnL float64     `gorm:"column:unrealized_pnl" json:"unrealized_pnl"`
	Status        TradeStatus `gorm:"index" json:"status"`
	CloseReason   CloseReason `json:"close_reason,omitempty"`
	ExitPrice     *float64    `json:"exit_price,omitempty"`
	RealizedPnL   *float64    `gorm:"column:realized_pnl" json:"realized_pnl,omitempty"`
	OpenedAt      time.Time   `json:"opened_at"`
	ClosedAt      *time.Time  `json:"closed_at,omitempty"`
}

// Reprice moves the position to price and recomputes the unrealized pnl.
func (t *Trade) Reprice(price float64) {
	t.CurrentPrice = price
	t.UnrealizedPnL = (price - t.EntryPrice) * t.Quantity
}

// Notional is the cost basis of the position.
func (t *Trade) Notional() float64 {
	return t.EntryPrice * t.Quantity
}

// Realized returns the realized pnl, or zero for an open trade.
func (t *Trade) Realized() float64 {
	if t.RealizedPnL == nil {
		return 0
	}
	return *t.RealizedPnL
}
