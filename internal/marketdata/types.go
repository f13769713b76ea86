package marketdata

import (
	"context"
	"time"
)

// Quote is an immutable price snapshot for one symbol.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Volume        float64   `json:"volume"`
	AvgVolume     float64   `json:"avg_volume"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Open          float64   `json:"open"`
	PreviousClose float64   `json:"previous_close"`
	Timestamp     time.Time `json:"timestamp"`
}

// ChangePct is the percentage move from the previous close.
func (q Quote) ChangePct() float64 {
	if q.PreviousClose <= 0 {
		return 0
	}
	return (q.Price - q.PreviousClose) / q.PreviousClose * 100
}

// Bar is one OHLCV candle.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Profile carries share structure and balance sheet fields used by the risk modules.
type Profile struct {
	FloatShares       float64 `json:"float_shares"`
	SharesOutstanding float64 `json:"shares_outstanding"`
	ShortInterest     float64 `json:"short_interest"`
	DaysToCover       float64 `json:"days_to_cover"`
	BorrowFeePct      float64 `json:"borrow_fee_pct"`
	CashOnHand        float64 `json:"cash_on_hand"`
	QuarterlyBurn     float64 `json:"quarterly_burn"`
	ActiveOffering    bool    `json:"active_offering"`
	ShelfRegistration bool    `json:"shelf_registration"`
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is a depth snapshot, best levels first.
type OrderBook struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}

// Headline is a news item mentioning the symbol.
type Headline struct {
	Time     time.Time `json:"time"`
	Title    string    `json:"title"`
	Source   string    `json:"source"`
	Verified bool      `json:"verified"`
}

// Snapshot bundles everything the indicator modules consume for one symbol.
// Profile and Book are optional.
type Snapshot struct {
	Quote     Quote      `json:"quote"`
	Bars      []Bar      `json:"bars"`
	Profile   *Profile   `json:"profile,omitempty"`
	Book      *OrderBook `json:"book,omitempty"`
	Headlines []Headline `json:"headlines,omitempty"`
}

// Provider fetches market data for a symbol.
type Provider interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error)
}
