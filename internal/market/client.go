package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/heroes-chatbot/orchestrator/internal/circuitbreaker"
	"github.com/heroes-chatbot/orchestrator/internal/metrics"
	"github.com/heroes-chatbot/orchestrator/internal/tracing"
)

const (
	quoteEndpoint = "/api/dostk/stkinfo"
	quoteAPIID    = "ka10001"
)

// Config configures the live quote client
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	RatePerSec  float64
	RateBurst   int
	MaxParallel int
}

// Client fetches live equity snapshots from the brokerage REST API.
// Calls are rate limited and circuit broken; a tripped breaker surfaces
// as a fetch error the orchestration layer treats as missing data.
type Client struct {
	cfg     Config
	http    *circuitbreaker.HTTPWrapper
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a quote client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 4
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 2
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	wrapper := circuitbreaker.NewHTTPWrapper(httpClient, "market-quotes", "market", logger)

	if cfg.AccessToken == "" {
		logger.Warn("Market access token not set, live quote calls will fail")
	}

	return &Client{
		cfg:     cfg,
		http:    wrapper,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RateBurst),
		logger:  logger,
	}
}

// Fetch retrieves and normalizes the live snapshot for one symbol
func (c *Client) Fetch(ctx context.Context, symbol string) (*Metrics, error) {
	start := time.Now()
	m, err := c.fetch(ctx, symbol)
	if err != nil {
		metrics.RecordMarketFetch("error", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordMarketFetch("ok", time.Since(start).Seconds())
	return m, nil
}

func (c *Client) fetch(ctx context.Context, symbol string) (*Metrics, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, c.cfg.BaseURL+quoteEndpoint)
	defer span.End()

	payload, err := json.Marshal(map[string]string{"stk_cd": symbol})
	if err != nil {
		return nil, fmt.Errorf("marshal quote request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+quoteEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create quote request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("api-id", quoteAPIID)
	req.Header.Set("cont-yn", "N")
	req.Header.Set("next-key", "")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read quote response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote request for %s: status %d", symbol, resp.StatusCode)
	}

	var raw quoteResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode quote response for %s: %w", symbol, err)
	}
	if quoteFailed(&raw) {
		return nil, fmt.Errorf("quote error for %s: code=%v msg=%s", symbol, raw.ReturnCode, raw.ReturnMsg)
	}

	return c.normalize(&raw, symbol), nil
}

// FetchAll fetches snapshots for multiple symbols concurrently. Symbols
// that fail are skipped; results keep the input order. An empty result
// with a nil error means every fetch failed softly.
func (c *Client) FetchAll(ctx context.Context, symbols []string) []*Metrics {
	if len(symbols) == 0 {
		return nil
	}

	var mu sync.Mutex
	found := make(map[string]*Metrics, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxParallel)

	for _, symbol := range symbols {
		sym := symbol
		g.Go(func() error {
			m, err := c.Fetch(gctx, sym)
			if err != nil {
				c.logger.Warn("Live quote fetch failed",
					zap.String("symbol", sym),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			found[sym] = m
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	order := make(map[string]int, len(symbols))
	for i, s := range symbols {
		order[s] = i
	}
	out := make([]*Metrics, 0, len(found))
	for _, m := range found {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return order[out[i].Symbol] < order[out[j].Symbol]
	})
	return out
}

// IsCircuitOpen reports whether the quote breaker is currently open
func (c *Client) IsCircuitOpen() bool {
	return c.http.IsCircuitBreakerOpen()
}
