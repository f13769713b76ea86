package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stealth-signal-bot/internal/broker"
	"stealth-signal-bot/internal/config"
	"stealth-signal-bot/internal/database"
	"stealth-signal-bot/internal/models"
	"stealth-signal-bot/internal/orchestrator"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBot struct {
	status  models.BotStatus
	scanErr error
	resets  int
}

func (b *fakeBot) GetStatus() models.BotStatus { return b.status }

func (b *fakeBot) ToggleAutoTrade() models.BotStatus {
	b.status.AutoTrading = !b.status.AutoTrading
	return b.status
}

func (b *fakeBot) ToggleScanning() models.BotStatus {
	b.status.Scanning = !b.status.Scanning
	return b.status
}

func (b *fakeBot) Reset() models.BotStatus {
	b.resets++
	b.status = models.BotStatus{}
	return b.status
}

func (b *fakeBot) RunScan(context.Context) (*orchestrator.ScanResult, error) {
	if b.scanErr != nil {
		return nil, b.scanErr
	}
	b.status.ScanCount++
	return &orchestrator.ScanResult{Manual: true, TotalScanned: 3}, nil
}

type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) Execute(ctx context.Context, signalID string) (*models.Trade, error) {
	args := m.Called(ctx, signalID)
	if t, ok := args.Get(0).(*models.Trade); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBroker) Close(ctx context.Context, tradeID string) (*models.Trade, error) {
	args := m.Called(ctx, tradeID)
	if t, ok := args.Get(0).(*models.Trade); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBroker) OpenPositions() []models.Trade {
	return m.Called().Get(0).([]models.Trade)
}

func (m *MockBroker) Cash() float64 { return m.Called().Get(0).(float64) }
func (m *MockBroker) Equity() float64 { return m.Called().Get(0).(float64) }

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors"`
}

type fixture struct {
	server  *Server
	bot     *fakeBot
	broker  *MockBroker
	signals *database.SignalRepository
	trades  *database.TradeRepository
	store   *config.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.NewDatabase("file::memory:")
	require.NoError(t, err)
	store, err := config.NewStore(config.Default())
	require.NoError(t, err)

	f := &fixture{
		bot:     &fakeBot{},
		broker:  &MockBroker{},
		signals: database.NewSignalRepository(db),
		trades:  database.NewTradeRepository(db),
		store:   store,
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("stealth_scans_total 1\n"))
	})
	h := NewHandler(zap.NewNop(), store, f.bot, f.broker, f.signals, f.trades, nil, metrics)
	f.server = NewServer(zap.NewNop(), 0, h)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"status":"ok"`)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stealth_scans_total 1")
}

func TestBotControl(t *testing.T) {
	f := newFixture(t)

	t.Run("toggles auto trading", func(t *testing.T) {
		rec, env := f.do(t, http.MethodPost, "/api/bot/auto-trade", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var s models.BotStatus
		require.NoError(t, json.Unmarshal(env.Data, &s))
		assert.True(t, s.AutoTrading)
	})

	t.Run("toggles scanning", func(t *testing.T) {
		rec, env := f.do(t, http.MethodPost, "/api/bot/scanning", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var s models.BotStatus
		require.NoError(t, json.Unmarshal(env.Data, &s))
		assert.True(t, s.Scanning)
	})

	t.Run("reports status", func(t *testing.T) {
		_, env := f.do(t, http.MethodGet, "/api/bot/status", "")

		var s models.BotStatus
		require.NoError(t, json.Unmarshal(env.Data, &s))
		assert.True(t, s.AutoTrading)
		assert.True(t, s.Scanning)
	})

	t.Run("reset clears everything", func(t *testing.T) {
		rec, env := f.do(t, http.MethodPost, "/api/bot/reset", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var s models.BotStatus
		require.NoError(t, json.Unmarshal(env.Data, &s))
		assert.False(t, s.AutoTrading)
		assert.False(t, s.Scanning)
		assert.Equal(t, 1, f.bot.resets)
	})
}

func TestManualScan(t *testing.T) {
	t.Run("returns the scan result", func(t *testing.T) {
		f := newFixture(t)

		rec, env := f.do(t, http.MethodPost, "/api/bot/scan", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var res orchestrator.ScanResult
		require.NoError(t, json.Unmarshal(env.Data, &res))
		assert.Equal(t, 3, res.TotalScanned)
		assert.True(t, res.Manual)
	})

	t.Run("a scan in flight is a conflict", func(t *testing.T) {
		f := newFixture(t)
		f.bot.scanErr = orchestrator.ErrScanRunning

		rec, env := f.do(t, http.MethodPost, "/api/bot/scan", "")

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, orchestrator.ErrScanRunning.Error(), env.Message)
	})
}

func TestExecuteSignal(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "opens a position", status: http.StatusOK},
		{name: "inactive signal", err: &broker.ExecutionError{Op: "execute", ID: "SIG_1", Err: broker.ErrNotActive}, status: http.StatusConflict},
		{name: "unknown signal", err: &broker.ExecutionError{Op: "execute", ID: "SIG_1", Err: broker.ErrNotFound}, status: http.StatusNotFound},
		{name: "book is full", err: &broker.ExecutionError{Op: "execute", ID: "SIG_1", Err: broker.ErrMaxPositions}, status: http.StatusUnprocessableEntity},
		{name: "storage failure", err: assert.AnError, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			f := newFixture(t)
			var trade *models.Trade
			if tt.err == nil {
				trade = &models.Trade{ID: "TRD_1", SignalID: "SIG_1", Symbol: "AAPL", Status: models.TradeOpen}
			}
			f.broker.On("Execute", mock.Anything, "SIG_1").Return(trade, tt.err).Once()

			// Act
			rec, env := f.do(t, http.MethodPost, "/api/signals/SIG_1/execute", "")

			// Assert
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.status, env.Status)
			if tt.err == nil {
				var got models.Trade
				require.NoError(t, json.Unmarshal(env.Data, &got))
				assert.Equal(t, "TRD_1", got.ID)
			}
			f.broker.AssertExpectations(t)
		})
	}
}

func TestCloseTrade(t *testing.T) {
	t.Run("already closed is a conflict", func(t *testing.T) {
		f := newFixture(t)
		f.broker.On("Close", mock.Anything, "TRD_1").
			Return(nil, &broker.ExecutionError{Op: "close", ID: "TRD_1", Err: broker.ErrAlreadyClosed}).Once()

		rec, _ := f.do(t, http.MethodPost, "/api/trades/TRD_1/close", "")

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown trade", func(t *testing.T) {
		f := newFixture(t)
		f.broker.On("Close", mock.Anything, "TRD_9").
			Return(nil, &broker.ExecutionError{Op: "close", ID: "TRD_9", Err: broker.ErrNotFound}).Once()

		rec, _ := f.do(t, http.MethodPost, "/api/trades/TRD_9/close", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListSignals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	for i, sym := range []string{"AAPL", "TSLA", "AAPL"} {
		require.NoError(t, f.signals.Create(ctx, &models.Signal{
			ID:         "SIG_" + sym + string(rune('0'+i)),
			Symbol:     sym,
			Tier:       models.TierGold,
			Confidence: 80,
			Action:     models.ActionBuy,
			EntryPrice: 100,
			Status:     models.SignalActive,
			ScannedAt:  base,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	t.Run("filters by symbol case-insensitively", func(t *testing.T) {
		rec, env := f.do(t, http.MethodGet, "/api/signals?symbol=aapl", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var got []models.Signal
		require.NoError(t, json.Unmarshal(env.Data, &got))
		require.Len(t, got, 2)
		for _, s := range got {
			assert.Equal(t, "AAPL", s.Symbol)
		}
	})

	t.Run("honors the limit", func(t *testing.T) {
		_, env := f.do(t, http.MethodGet, "/api/signals?limit=1", "")

		var got []models.Signal
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Len(t, got, 1)
	})

	t.Run("rejects an out of range limit", func(t *testing.T) {
		rec, env := f.do(t, http.MethodGet, "/api/signals?limit=5000", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, string(env.Errors), "Limit")
	})
}

func TestListTrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opened := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	require.NoError(t, f.trades.Create(ctx, &models.Trade{ID: "TRD_1", Symbol: "AAPL", Status: models.TradeOpen, OpenedAt: opened}))
	require.NoError(t, f.trades.Create(ctx, &models.Trade{ID: "TRD_2", Symbol: "TSLA", Status: models.TradeClosed, OpenedAt: opened.Add(time.Minute)}))

	t.Run("filters by status", func(t *testing.T) {
		rec, env := f.do(t, http.MethodGet, "/api/trades?status=open", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var got []models.Trade
		require.NoError(t, json.Unmarshal(env.Data, &got))
		require.Len(t, got, 1)
		assert.Equal(t, "TRD_1", got[0].ID)
	})

	t.Run("lists everything without a filter", func(t *testing.T) {
		_, env := f.do(t, http.MethodGet, "/api/trades", "")

		var got []models.Trade
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Len(t, got, 2)
	})

	t.Run("rejects an unknown status", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodGet, "/api/trades?status=pending", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPerformance(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()
	opened := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	for i, pnl := range []float64{200, -50} {
		closedAt := opened.Add(time.Duration(i+1) * time.Hour)
		exit := 100 + pnl/10
		require.NoError(t, f.trades.Create(ctx, &models.Trade{
			ID:          "TRD_" + string(rune('A'+i)),
			Symbol:      "AAPL",
			Tier:        models.TierGold,
			Quantity:    10,
			EntryPrice:  100,
			Status:      models.TradeClosed,
			CloseReason: models.CloseManual,
			ExitPrice:   &exit,
			RealizedPnL: &pnl,
			OpenedAt:    opened,
			ClosedAt:    &closedAt,
		}))
	}
	f.broker.On("OpenPositions").Return([]models.Trade{{ID: "TRD_OPEN", UnrealizedPnL: 25}})
	f.broker.On("Cash").Return(99000.0)
	f.broker.On("Equity").Return(100175.0)

	// Act
	rec, env := f.do(t, http.MethodGet, "/api/performance", "")

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		TotalTrades   int     `json:"total_trades"`
		Wins          int     `json:"wins"`
		TotalPnL      float64 `json:"total_pnl"`
		ProfitFactor  float64 `json:"profit_factor"`
		OpenPositions int     `json:"open_positions"`
		UnrealizedPnL float64 `json:"unrealized_pnl"`
		Equity        float64 `json:"equity"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 2, got.TotalTrades)
	assert.Equal(t, 1, got.Wins)
	assert.InDelta(t, 150.0, got.TotalPnL, 1e-9)
	assert.InDelta(t, 4.0, got.ProfitFactor, 1e-9)
	assert.Equal(t, 1, got.OpenPositions)
	assert.InDelta(t, 25.0, got.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 100175.0, got.Equity, 1e-9)
}

func TestConfig(t *testing.T) {
	t.Run("returns the live configuration", func(t *testing.T) {
		f := newFixture(t)

		rec, env := f.do(t, http.MethodGet, "/api/config", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, string(env.Data), `"min_confidence":60`)
	})

	t.Run("applies a partial update", func(t *testing.T) {
		f := newFixture(t)

		rec, _ := f.do(t, http.MethodPut, "/api/config", `{"trading":{"min_confidence":72.5}}`)

		require.Equal(t, http.StatusOK, rec.Code)
		cfg := f.store.Get()
		assert.InDelta(t, 72.5, cfg.Trading.MinConfidence, 1e-9)
		assert.Equal(t, 10, cfg.Trading.MaxPositions, "untouched fields keep their values")
	})

	t.Run("invalid update keeps the prior configuration", func(t *testing.T) {
		f := newFixture(t)
		before := f.store.Get()

		rec, env := f.do(t, http.MethodPut, "/api/config", `{"trading":{"max_positions":0,"min_confidence":70}}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, string(env.Errors), "MaxPositions")
		assert.Equal(t, before, f.store.Get())
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newFixture(t)

		rec, _ := f.do(t, http.MethodPut, "/api/config", `{"trading":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRecover(t *testing.T) {
	f := newFixture(t)
	f.server.Echo().GET("/boom", func(echo.Context) error { panic("boom") })

	rec, env := f.do(t, http.MethodGet, "/boom", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, http.StatusInternalServerError, env.Status)
}
