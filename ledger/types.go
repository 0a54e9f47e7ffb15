package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Sizing says how an order amount is read: as asset units or as cash.
type Sizing int

const (
	Units Sizing = iota
	Notional
)

func (s Sizing) String() string {
	switch s {
	case Units:
		return "units"
	case Notional:
		return "notional"
	default:
		return fmt.Sprintf("Sizing(%d)", int(s))
	}
}

// ParseSizing accepts "units" (the default for "") and "notional"; "fiat"
// and "cash" are aliases for notional.
func ParseSizing(s string) (Sizing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "units", "unit", "qty", "quantity":
		return Units, nil
	case "notional", "fiat", "cash":
		return Notional, nil
	}
	return Units, fmt.Errorf("unknown sizing mode %q", s)
}

// CopyMode selects how a copy-trade treats the acting account's holdings.
type CopyMode int

const (
	// Merge buys the source allocation on top of existing holdings.
	Merge CopyMode = iota
	// Replace liquidates every existing position at its average cost first.
	Replace
)

func (m CopyMode) String() string {
	switch m {
	case Merge:
		return "merge"
	case Replace:
		return "replace"
	default:
		return fmt.Sprintf("CopyMode(%d)", int(m))
	}
}

func ParseCopyMode(s string) (CopyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "merge", "buy", "add":
		return Merge, nil
	case "replace", "liquidate", "sell_and_buy":
		return Replace, nil
	}
	return Merge, fmt.Errorf("unknown copy mode %q", s)
}

type Account struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Cash      decimal.Decimal `json:"cash"`
	CreatedAt time.Time       `json:"created_at"`
}

// Position is an account's holding of one symbol.
type Position struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
}

// Cost is the position's book value at its average price.
func (p Position) Cost() decimal.Decimal {
	return p.Quantity.Mul(p.AvgPrice)
}

// Transaction is one executed order. Transactions are never modified.
type Transaction struct {
	ID         string          `json:"id"`
	AccountID  string          `json:"account_id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	TotalValue decimal.Decimal `json:"total_value"`
	Time       time.Time       `json:"time"`
}

// TradeResult is returned by ExecuteBuy and ExecuteSell. Position is nil
// when the trade closed the position.
type TradeResult struct {
	Transaction Transaction     `json:"transaction"`
	Cash        decimal.Decimal `json:"cash"`
	Position    *Position       `json:"position,omitempty"`
}
