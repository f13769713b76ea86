package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"stealth-signal-bot/internal/config"
	"stealth-signal-bot/internal/models"
	"stealth-signal-bot/internal/orchestrator"
	"stealth-signal-bot/internal/performance"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Bot is the control surface of the running bot.
type Bot interface {
	GetStatus() models.BotStatus
	ToggleAutoTrade() models.BotStatus
	ToggleScanning() models.BotStatus
	Reset() models.BotStatus
	RunScan(ctx context.Context) (*orchestrator.ScanResult, error)
}

// Broker executes signals and closes positions.
type Broker interface {
	Execute(ctx context.Context, signalID string) (*models.Trade, error)
	Close(ctx context.Context, tradeID string) (*models.Trade, error)
	OpenPositions() []models.Trade
	Cash() float64
	Equity() float64
}

// SignalReader lists stored signals.
type SignalReader interface {
	List(ctx context.Context, limit int) ([]models.Signal, error)
	GetBySymbol(ctx context.Context, symbol string) ([]models.Signal, error)
}

// TradeReader lists stored trades.
type TradeReader interface {
	List(ctx context.Context, status models.TradeStatus, limit int) ([]models.Trade, error)
	GetClosed(ctx context.Context) ([]models.Trade, error)
}

// Handler serves the REST routes.
type Handler struct {
	logger  *zap.Logger
	cfg     *config.Store
	bot     Bot
	broker  Broker
	signals SignalReader
	trades  TradeReader
	stream  http.Handler
	metrics http.Handler
	started time.Time
}

// NewHandler creates a Handler. stream and metrics may be nil, in which
// case /ws and /metrics are not registered.
func NewHandler(
	logger *zap.Logger,
	cfg *config.Store,
	bot Bot,
	broker Broker,
	signals SignalReader,
	trades TradeReader,
	stream http.Handler,
	metrics http.Handler,
) *Handler {
	return &Handler{
		logger:  logger.Named("api"),
		cfg:     cfg,
		bot:     bot,
		broker:  broker,
		signals: signals,
		trades:  trades,
		stream:  stream,
		metrics: metrics,
		started: time.Now().UTC(),
	}
}

// RegisterRoutes mounts every route on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.health)
	if h.stream != nil {
		e.GET("/ws", echo.WrapHandler(h.stream))
	}
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics))
	}

	g := e.Group("/api")

	b := g.Group("/bot")
	b.GET("/status", h.status)
	b.POST("/auto-trade", h.toggleAutoTrade)
	b.POST("/scanning", h.toggleScanning)
	b.POST("/scan", h.scan)
	b.POST("/reset", h.reset)

	g.GET("/signals", h.listSignals)
	g.POST("/signals/:id/execute", h.executeSignal)

	g.GET("/trades", h.listTrades)
	g.POST("/trades/:id/close", h.closeTrade)

	g.GET("/performance", h.performanceReport)

	g.GET("/config", h.getConfig)
	g.PUT("/config", h.putConfig)
}

func (h *Handler) health(c echo.Context) error {
	return dataResponse(c, map[string]interface{}{
		"status":     "ok",
		"started_at": h.started,
		"uptime":     time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *Handler) status(c echo.Context) error {
	return dataResponse(c, h.bot.GetStatus())
}

func (h *Handler) toggleAutoTrade(c echo.Context) error {
	return dataResponse(c, h.bot.ToggleAutoTrade())
}

func (h *Handler) toggleScanning(c echo.Context) error {
	return dataResponse(c, h.bot.ToggleScanning())
}

func (h *Handler) reset(c echo.Context) error {
	return dataResponse(c, h.bot.Reset())
}

func (h *Handler) scan(c echo.Context) error {
	res, err := h.bot.RunScan(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return dataResponse(c, res)
}

type listSignalsRequest struct {
	Symbol string `query:"symbol" validate:"omitempty,max=12"`
	Limit  int    `query:"limit" default:"100" validate:"min=1,max=1000"`
}

func (h *Handler) listSignals(c echo.Context) error {
	var req listSignalsRequest
	if errs := readRequest(c, &req); errs != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid query", errs)
	}

	ctx := c.Request().Context()
	var (
		signals []models.Signal
		err     error
	)
	if req.Symbol != "" {
		signals, err = h.signals.GetBySymbol(ctx, strings.ToUpper(req.Symbol))
		if err == nil && len(signals) > req.Limit {
			signals = signals[:req.Limit]
		}
	} else {
		signals, err = h.signals.List(ctx, req.Limit)
	}
	if err != nil {
		return h.fail(c, err)
	}
	return dataResponse(c, signals)
}

func (h *Handler) executeSignal(c echo.Context) error {
	trade, err := h.broker.Execute(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return dataResponse(c, trade)
}

type listTradesRequest struct {
	Status string `query:"status" validate:"omitempty,oneof=OPEN CLOSED open closed"`
	Limit  int    `query:"limit" default:"100" validate:"min=1,max=1000"`
}

func (h *Handler) listTrades(c echo.Context) error {
	var req listTradesRequest
	if errs := readRequest(c, &req); errs != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid query", errs)
	}

	status := models.TradeStatus(strings.ToUpper(req.Status))
	trades, err := h.trades.List(c.Request().Context(), status, req.Limit)
	if err != nil {
		return h.fail(c, err)
	}
	return dataResponse(c, trades)
}

func (h *Handler) closeTrade(c echo.Context) error {
	trade, err := h.broker.Close(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return dataResponse(c, trade)
}

// PerformanceResponse combines closed-trade statistics with the live book.
type PerformanceResponse struct {
	performance.Report
	OpenPositions int     `json:"open_positions"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Cash          float64 `json:"cash"`
	Equity        float64 `json:"equity"`
}

func (h *Handler) performanceReport(c echo.Context) error {
	closed, err := h.trades.GetClosed(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}

	open := h.broker.OpenPositions()
	var unrealized float64
	for _, t := range open {
		unrealized += t.UnrealizedPnL
	}
	return dataResponse(c, PerformanceResponse{
		Report:        performance.Calculate(closed, h.cfg.Get().Trading.InitialCapital),
		OpenPositions: len(open),
		UnrealizedPnL: unrealized,
		Cash:          h.broker.Cash(),
		Equity:        h.broker.Equity(),
	})
}

func (h *Handler) getConfig(c echo.Context) error {
	return dataResponse(c, h.cfg.Get())
}

// putConfig merges the body over the current configuration. Fields missing
// from the body keep their values; an invalid result leaves the live
// configuration untouched.
func (h *Handler) putConfig(c echo.Context) error {
	next := h.cfg.Get()
	if err := c.Bind(&next); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid body", problems(err))
	}

	updated, err := h.cfg.Update(func(cfg *config.Config) { *cfg = next })
	if err != nil {
		return h.fail(c, err)
	}
	h.logger.Info("Configuration updated")
	return dataResponse(c, updated)
}
