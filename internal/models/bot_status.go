package models

import "time"

// BotStatus is the process-wide control state exposed to observers.
type BotStatus struct {
	AutoTrading  bool      `json:"auto_trading"`
	Scanning     bool      `json:"scanning"`
	ScanState    string    `json:"scan_state"`
	ScanCount    int64     `json:"scan_count"`
	TradeCount   int64     `json:"trade_count"`
	LastActionAt time.Time `json:"last_action_at"`
	LastScanAt   time.Time `json:"last_scan_at,omitempty"`
}
