package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := New()

	r.ScanCompleted(time.Second, nil)
	r.ScanCompleted(time.Second, errors.New("boom"))
	r.SignalStored("PLATINUM")
	r.SignalStored("PLATINUM")
	r.CooldownRejected()
	r.ModuleFailed("vwap_distance")
	r.TradeOpened()
	r.TradeClosed("STOP_LOSS")
	r.Positions(3, 101250.5)
	r.EventPublished("signal")
	r.EventDropped()
	r.SubscribersChanged(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.scans.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.scans.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.signals.WithLabelValues("PLATINUM")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cooldownRejects))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.trades.WithLabelValues("closed_STOP_LOSS")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.openPositions))
	assert.InDelta(t, 101250.5, testutil.ToFloat64(r.equity), 1e-9)
	assert.Equal(t, 4.0, testutil.ToFloat64(r.subscribers))
}

func TestRecorder_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.SignalStored("GOLD")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `stealth_signals_total{tier="GOLD"} 1`)
}
