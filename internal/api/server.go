package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Server exposes the bot over HTTP.
type Server struct {
	echo    *echo.Echo
	addr    string
	logger  *zap.Logger
	handler *Handler
}

// NewServer builds the echo instance and registers every route of h.
func NewServer(logger *zap.Logger, port int, h *Handler) *Server {
	logger = logger.Named("api-server")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(Recover(logger))
	e.Use(RequestLogging(logger))

	h.RegisterRoutes(e)

	return &Server{
		echo:    e,
		addr:    fmt.Sprintf(":%d", port),
		logger:  logger,
		handler: h,
	}
}

// Echo returns the underlying router, mostly for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.addr))
	go func() {
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.echo.Shutdown(ctx)
}
