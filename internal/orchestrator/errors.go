package orchestrator

import (
	"errors"
	"fmt"
)

// ErrScanRunning is returned when a scan is triggered while another is in flight.
var ErrScanRunning = errors.New("scan already running")

// DataFetchError wraps a failure to fetch market data for one symbol.
type DataFetchError struct {
	Symbol string
	Err    error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Symbol, e.Err)
}

func (e *DataFetchError) Unwrap() error { return e.Err }

// Error kinds recorded in a scan result.
const (
	KindFetch   = "fetch"
	KindModule  = "module"
	KindPersist = "persist"
)

// ScanError is one recovered failure from a scan.
type ScanError struct {
	Kind    string `json:"kind"`
	Symbol  string `json:"symbol"`
	Module  string `json:"module,omitempty"`
	Message string `json:"message"`
}
