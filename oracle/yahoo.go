package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// YahooURL is the public Yahoo Finance query host.
	YahooURL = "https://query1.finance.yahoo.com"

	DefaultTimeout     = 5 * time.Second
	DefaultConcurrency = 8
)

// ErrNotFound is returned when the oracle has no price for a symbol.
var ErrNotFound = errors.New("price not found")

// Yahoo reads the last regular-market price from the Yahoo Finance chart
// endpoint.
type Yahoo struct {
	baseURL     string
	httpClient  *http.Client
	concurrency int
	log         *zap.Logger
}

type YahooOption func(*Yahoo)

func WithBaseURL(u string) YahooOption {
	return func(y *Yahoo) { y.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(d time.Duration) YahooOption {
	return func(y *Yahoo) { y.httpClient.Timeout = d }
}

// WithConcurrency bounds the requests GetPrices keeps in flight.
func WithConcurrency(n int) YahooOption {
	return func(y *Yahoo) {
		if n > 0 {
			y.concurrency = n
		}
	}
}

func WithLogger(l *zap.Logger) YahooOption {
	return func(y *Yahoo) {
		if l != nil {
			y.log = l.Named("oracle")
		}
	}
}

func NewYahoo(opts ...YahooOption) *Yahoo {
	y := &Yahoo{
		baseURL:     YahooURL,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		concurrency: DefaultConcurrency,
		log:         zap.NewNop(),
	}
	for _, o := range opts {
		o(y)
	}
	return y
}

type chartMeta struct {
	Symbol             string           `json:"symbol"`
	Currency           string           `json:"currency"`
	RegularMarketPrice *decimal.Decimal `json:"regularMarketPrice"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta chartMeta `json:"meta"`
		} `json:"result"`
		Error *chartError `json:"error"`
	} `json:"chart"`
}

// GetPrice returns the current price of symbol.
func (y *Yahoo) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return decimal.Zero, fmt.Errorf("symbol is required")
	}

	params := url.Values{}
	params.Set("range", "1d")
	params.Set("interval", "1d")
	apiURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	// Yahoo rejects requests without a browser-like user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; papertrade)")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var cr chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return decimal.Zero, fmt.Errorf("decode response: %w", err)
	}
	if e := cr.Chart.Error; e != nil {
		return decimal.Zero, fmt.Errorf("%s: %s: %w", symbol, e.Description, ErrNotFound)
	}
	if len(cr.Chart.Result) == 0 || cr.Chart.Result[0].Meta.RegularMarketPrice == nil {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, ErrNotFound)
	}

	price := *cr.Chart.Result[0].Meta.RegularMarketPrice
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s: non-positive price %s: %w", symbol, price, ErrNotFound)
	}
	return price, nil
}

// GetPrices prices symbols concurrently. Symbols that fail are logged and
// left out; the error is only non-nil when ctx ends before every lookup ran.
func (y *Yahoo) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]decimal.Decimal, len(symbols))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(y.concurrency)
	for _, s := range symbols {
		s := s
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := y.GetPrice(gctx, s)
			if err != nil {
				y.log.Debug("price lookup failed", zap.String("symbol", s), zap.Error(err))
				return nil
			}
			mu.Lock()
			out[s] = p
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return out, err
}
