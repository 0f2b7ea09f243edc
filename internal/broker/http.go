package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"SpikeSentinel/internal/model"
)

const (
	volumePlaces = 2
	pricePlaces  = 5
)

// HTTPConfig configures an HTTPGateway.
type HTTPConfig struct {
	BaseURL       string
	Login         string
	Password      string
	Server        string
	ProxyURL      string
	RatePerSecond float64
	Timeout       time.Duration
}

// HTTPGateway implements Gateway against a REST bridge in front of the
// trading terminal. Every request waits on a shared rate limiter.
type HTTPGateway struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter

	mu    sync.RWMutex
	token string
}

// NewHTTPGateway creates a gateway with optional proxy support.
func NewHTTPGateway(cfg HTTPConfig) *HTTPGateway {
	transport := &http.Transport{}
	if cfg.ProxyURL != "" {
		if u, err := url.Parse(cfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &HTTPGateway{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (g *HTTPGateway) Name() string { return "http" }

// Connect opens a session with the configured credentials.
func (g *HTTPGateway) Connect(ctx context.Context) error {
	body := map[string]string{"login": g.cfg.Login, "password": g.cfg.Password, "server": g.cfg.Server}
	var out struct {
		Token string `json:"token"`
	}
	status, err := g.do(ctx, http.MethodPost, "/api/v1/session", nil, body, &out, false)
	if err != nil {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return fmt.Errorf("%w: login %s on %s", ErrAuthRejected, g.cfg.Login, g.cfg.Server)
		}
		return &ConnectivityError{Op: "connect", Err: err}
	}
	if out.Token == "" {
		return &ConnectivityError{Op: "connect", Err: fmt.Errorf("empty session token")}
	}
	g.mu.Lock()
	g.token = out.Token
	g.mu.Unlock()
	return nil
}

// Close drops the session token.
func (g *HTTPGateway) Close() error {
	g.mu.Lock()
	g.token = ""
	g.mu.Unlock()
	return nil
}

// bar is the JSON shape of one bar from the bridge.
type bar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

func (g *HTTPGateway) FetchBars(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) (*model.PriceSeries, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("timeframe", tf.String())
	q.Set("from", strconv.FormatInt(start.Unix(), 10))
	q.Set("to", strconv.FormatInt(end.Unix(), 10))

	var raw []bar
	if _, err := g.do(ctx, http.MethodGet, "/api/v1/bars", q, nil, &raw, true); err != nil {
		return nil, fmt.Errorf("fetch bars %s %s: %w", symbol, tf, err)
	}
	bars := make([]model.OHLCV, len(raw))
	for i, b := range raw {
		bars[i] = model.OHLCV{
			Time:   time.Unix(b.Timestamp, 0).UTC(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	// Ensure chronological order
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return &model.PriceSeries{Symbol: symbol, Timeframe: tf, Bars: bars}, nil
}

func (g *HTTPGateway) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	var out struct {
		Price *float64 `json:"price"`
	}
	if _, err := g.do(ctx, http.MethodGet, "/api/v1/quote", q, nil, &out, true); err != nil {
		return 0, fmt.Errorf("fetch current price %s: %w", symbol, err)
	}
	if out.Price == nil || *out.Price <= 0 {
		return 0, fmt.Errorf("%w for %s", ErrNoPrice, symbol)
	}
	return *out.Price, nil
}

func (g *HTTPGateway) OpenPositions(ctx context.Context, symbol string) ([]model.BrokerPosition, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	var out []model.BrokerPosition
	if _, err := g.do(ctx, http.MethodGet, "/api/v1/positions", q, nil, &out, true); err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return out, nil
}

// orderBody carries rounded order values.
type orderBody struct {
	Symbol string     `json:"symbol"`
	Side   model.Side `json:"side"`
	Volume float64    `json:"volume"`
	Price  float64    `json:"price"`
}

func (g *HTTPGateway) SubmitOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error) {
	body := orderBody{
		Symbol: req.Symbol,
		Side:   req.Side,
		Volume: RoundVolume(req.Volume),
		Price:  RoundPrice(req.Price),
	}
	if body.Volume <= 0 {
		return nil, fmt.Errorf("submit order %s: volume %v rounds to zero", req.Symbol, req.Volume)
	}
	var out model.OrderResult
	if _, err := g.do(ctx, http.MethodPost, "/api/v1/orders", nil, body, &out, true); err != nil {
		return nil, fmt.Errorf("submit order %s %s: %w", req.Side, req.Symbol, err)
	}
	return &out, nil
}

func (g *HTTPGateway) ClosePosition(ctx context.Context, positionID string) (*model.OrderResult, error) {
	var out model.OrderResult
	path := "/api/v1/positions/" + url.PathEscape(positionID) + "/close"
	if _, err := g.do(ctx, http.MethodPost, path, nil, nil, &out, true); err != nil {
		return nil, fmt.Errorf("close position %s: %w", positionID, err)
	}
	return &out, nil
}

// do performs one rate-limited JSON request and returns the HTTP status.
// Transport failures and 401s surface as ConnectivityError.
func (g *HTTPGateway) do(ctx context.Context, method, path string, q url.Values, in, out any, auth bool) (int, error) {
	var token string
	if auth {
		g.mu.RLock()
		token = g.token
		g.mu.RUnlock()
		if token == "" {
			return 0, &ConnectivityError{Op: path, Err: ErrNotConnected}
		}
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	endpoint := g.cfg.BaseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var reader io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &ConnectivityError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && auth {
		g.mu.Lock()
		g.token = ""
		g.mu.Unlock()
		return resp.StatusCode, &ConnectivityError{Op: path, Err: ErrNotConnected}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// RoundVolume rounds a lot size to the broker's volume step.
func RoundVolume(v float64) float64 {
	return decimal.NewFromFloat(v).Round(volumePlaces).InexactFloat64()
}

// RoundPrice rounds a price to the broker's quote precision.
func RoundPrice(p float64) float64 {
	return decimal.NewFromFloat(p).Round(pricePlaces).InexactFloat64()
}
