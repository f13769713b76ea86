package marketdata

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stealth-signal-bot/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxRetries = 3

// RestClient fetches quotes and snapshots from an HTTP market data service.
type RestClient struct {
	client  *resty.Client
	apiKey  string
	logger  *zap.Logger
	limiter *rate.Limiter
	backoff time.Duration
}

// ensure RestClient implements the interface
var _ Provider = (*RestClient)(nil)

// NewRestClient creates a market data client for cfg.BaseURL.
func NewRestClient(cfg config.MarketData, logger *zap.Logger) *RestClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &RestClient{
		client:  client,
		apiKey:  cfg.ApiKey,
		logger:  logger.Named("marketdata"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		backoff: time.Second,
	}
}

// GetQuote fetches the latest quote for symbol.
func (c *RestClient) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	var q Quote
	req := c.client.R().SetResult(&q)

	if _, err := c.doRequest(ctx, http.MethodGet, "/quote/"+symbol, req); err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	if q.Price <= 0 {
		return nil, fmt.Errorf("invalid quote for %s: price %v", symbol, q.Price)
	}
	return &q, nil
}

// GetSnapshot fetches the quote, recent bars and optional fundamentals for symbol.
func (c *RestClient) GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	var s Snapshot
	req := c.client.R().SetResult(&s).SetQueryParam("bars", "60")

	if _, err := c.doRequest(ctx, http.MethodGet, "/snapshot/"+symbol, req); err != nil {
		return nil, fmt.Errorf("failed to get snapshot for %s: %w", symbol, err)
	}
	if s.Quote.Symbol == "" {
		s.Quote.Symbol = symbol
	}
	if s.Quote.Price <= 0 {
		return nil, fmt.Errorf("invalid snapshot for %s: price %v", symbol, s.Quote.Price)
	}
	return &s, nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	req.SetContext(ctx)
	if c.apiKey != "" {
		req.SetHeader("X-API-Key", c.apiKey)
	}

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, perr := strconv.Atoi(resp.Header().Get("Retry-After")); perr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
			err = fmt.Errorf("status %s", resp.Status())
		} else {
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}
		if i == maxRetries-1 {
			break
		}

		if retryAfter == 0 {
			// Exponential backoff: 1x, 2x, 4x the base delay
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.backoff
		}

		c.logger.Warn("Request failed, retrying",
			zap.String("url", url),
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}
