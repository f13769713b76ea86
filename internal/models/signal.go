package models

import "time"

// Tier is a discrete signal-quality bucket.
type Tier string

const (
	TierPlatinum Tier = "PLATINUM"
	TierGold     Tier = "GOLD"
	TierSilver   Tier = "SILVER"
	TierBronze   Tier = "BRONZE"
	// TierNone marks a confidence below every threshold; no signal is emitted.
	TierNone Tier = ""
)

// Tiers lists the emitted tiers from best to worst.
var Tiers = []Tier{TierPlatinum, TierGold, TierSilver, TierBronze}

// Rank orders tiers so that a better tier has a larger rank.
func (t Tier) Rank() int {
	switch t {
	case TierPlatinum:
		return 4
	case TierGold:
		return 3
	case TierSilver:
		return 2
	case TierBronze:
		return 1
	default:
		return 0
	}
}

// SizeMultiplier scales the default position size by tier.
func (t Tier) SizeMultiplier() float64 {
	switch t {
	case TierPlatinum:
		return 2.0
	case TierGold:
		return 1.5
	case TierSilver:
		return 1.0
	case TierBronze:
		return 0.5
	default:
		return 0
	}
}

// SignalStatus is the lifecycle state of a Signal.
type SignalStatus string

const (
	SignalActive   SignalStatus = "ACTIVE"
	SignalExecuted SignalStatus = "EXECUTED"
	SignalExpired  SignalStatus = "EXPIRED"
)

// Action is the side a signal recommends.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Signal is a scored, tiered trading opportunity produced by a scan.
// It is immutable once EXECUTED or EXPIRED.
type Signal struct {
	ID          string       `gorm:"primaryKey" json:"id"`
	Symbol      string       `gorm:"index" json:"symbol"`
	Tier        Tier         `gorm:"index" json:"tier"`
	Confidence  float64      `json:"confidence"`
	Action      Action       `json:"action"`
	EntryPrice  float64      `json:"entry_price"`
	TargetPrice *float64     `json:"target_price,omitempty"`
	StopLoss    *float64     `json:"stop_loss,omitempty"`
	Status      SignalStatus `gorm:"index" json:"status"`
	ScannedAt   time.Time    `json:"scanned_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// IsActive reports whether the signal can still be executed at now.
func (s *Signal) IsActive(now time.Time) bool {
	if s.Status != SignalActive {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}
