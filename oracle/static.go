package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Static serves prices from memory. It backs offline runs and tests.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func NewStatic(prices map[string]decimal.Decimal) *Static {
	s := &Static{prices: make(map[string]decimal.Decimal, len(prices))}
	for sym, p := range prices {
		s.prices[key(sym)] = p
	}
	return s
}

func key(symbol string) string { return strings.ToUpper(strings.TrimSpace(symbol)) }

func (s *Static) Set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[key(symbol)] = price
}

func (s *Static) Delete(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prices, key(symbol))
}

func (s *Static) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[key(symbol)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, ErrNotFound)
	}
	return p, nil
}

// GetPrices returns the known subset of symbols, keyed as requested.
func (s *Static) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, sym := range symbols {
		if p, ok := s.prices[key(sym)]; ok {
			out[sym] = p
		}
	}
	return out, nil
}
