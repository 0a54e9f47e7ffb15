package ledger

import (
	"context"
	"sort"

	"github.com/rustyeddy/papertrade/market"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// Holding is a position marked to the current price.
type Holding struct {
	Position
	Price decimal.Decimal `json:"price"`
	// Live is false when the price fell back to the average cost.
	Live   bool            `json:"live"`
	Value  decimal.Decimal `json:"value"`
	PnL    decimal.Decimal `json:"pnl"`
	PnLPct decimal.Decimal `json:"pnl_pct"`
}

type Valuation struct {
	Account       Account         `json:"account"`
	Holdings      []Holding       `json:"holdings"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	NetWorth      decimal.Decimal `json:"net_worth"`
	// PnLPct is the net worth change against the starting balance.
	PnLPct decimal.Decimal `json:"pnl_pct"`
}

type Standing struct {
	Rank      int             `json:"rank"`
	AccountID string          `json:"account_id"`
	Name      string          `json:"name,omitempty"`
	NetWorth  decimal.Decimal `json:"net_worth"`
	PnLPct    decimal.Decimal `json:"pnl_pct"`
	Positions int             `json:"positions"`
}

// Account returns the stored account.
func (e *Engine) Account(ctx context.Context, accountID string) (Account, error) {
	a, err := e.store.Account(ctx, accountID)
	if err != nil {
		return Account{}, e.readError("account", accountID, err)
	}
	return a, nil
}

// NetWorth is cash plus every position at its live price, or at its average
// cost when no live price is available.
func (e *Engine) NetWorth(ctx context.Context, accountID string) (decimal.Decimal, error) {
	v, err := e.Valuate(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return v.NetWorth, nil
}

// Valuate marks every position of accountID to market. Pricing failures
// never fail the valuation. It takes no account lock.
func (e *Engine) Valuate(ctx context.Context, accountID string) (Valuation, error) {
	acct, positions, err := e.store.Snapshot(ctx, accountID)
	if err != nil {
		return Valuation{}, e.readError("valuate", accountID, err)
	}
	live := e.livePrices(ctx, symbolsOf(positions))
	return e.value(acct, positions, live), nil
}

// Leaderboard ranks every account by net worth, pricing all held symbols
// with a single oracle batch. limit <= 0 returns every account.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]Standing, error) {
	const op = "leaderboard"

	accts, err := e.store.Accounts(ctx)
	if err != nil {
		return nil, newError(op, ErrPersistence, "", "", err)
	}

	type snap struct {
		acct      Account
		positions []Position
	}
	snaps := make([]snap, 0, len(accts))
	var all []Position
	for _, a := range accts {
		acct, positions, err := e.store.Snapshot(ctx, a.ID)
		if err != nil {
			return nil, newError(op, ErrPersistence, a.ID, "", err)
		}
		snaps = append(snaps, snap{acct, positions})
		all = append(all, positions...)
	}

	live := e.livePrices(ctx, symbolsOf(all))

	out := make([]Standing, 0, len(snaps))
	for _, s := range snaps {
		v := e.value(s.acct, s.positions, live)
		out = append(out, Standing{
			AccountID: s.acct.ID,
			Name:      s.acct.Name,
			NetWorth:  v.NetWorth,
			PnLPct:    v.PnLPct,
			Positions: len(s.positions),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].NetWorth.Cmp(out[j].NetWorth); c != 0 {
			return c > 0
		}
		return out[i].AccountID < out[j].AccountID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// History returns the account's transactions, newest first.
func (e *Engine) History(ctx context.Context, accountID string, limit int) ([]Transaction, error) {
	const op = "history"

	if _, err := e.store.Account(ctx, accountID); err != nil {
		return nil, e.readError(op, accountID, err)
	}
	txs, err := e.store.Transactions(ctx, accountID, limit)
	if err != nil {
		return nil, e.readError(op, accountID, err)
	}
	return txs, nil
}

func (e *Engine) value(acct Account, positions []Position, live map[string]decimal.Decimal) Valuation {
	v := Valuation{
		Account:       acct,
		Holdings:      make([]Holding, 0, len(positions)),
		HoldingsValue: decimal.Zero,
	}

	for _, p := range positions {
		price, ok := live[p.Symbol]
		if !ok {
			price = p.AvgPrice
		}
		value := p.Quantity.Mul(price)
		h := Holding{
			Position: p,
			Price:    price,
			Live:     ok,
			Value:    value,
			PnL:      value.Sub(p.Cost()),
			PnLPct:   decimal.Zero,
		}
		if p.AvgPrice.IsPositive() {
			h.PnLPct = price.Sub(p.AvgPrice).Div(p.AvgPrice).Mul(hundred)
		}
		v.Holdings = append(v.Holdings, h)
		v.HoldingsValue = v.HoldingsValue.Add(value)
	}

	v.NetWorth = acct.Cash.Add(v.HoldingsValue)
	v.PnLPct = v.NetWorth.Sub(e.opts.StartingBalance).Div(e.opts.StartingBalance).Mul(hundred)
	return v
}

// livePrices returns positive oracle prices keyed by normalized symbol.
// Symbols the oracle could not price are absent.
func (e *Engine) livePrices(ctx context.Context, symbols []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.OracleTimeout)
	defer cancel()

	bySymbol := make(map[string]string, len(symbols))
	req := make([]string, 0, len(symbols))
	for _, s := range symbols {
		q := market.Quoted(s, e.opts.QuoteSuffix)
		if _, ok := bySymbol[q]; ok {
			continue
		}
		bySymbol[q] = s
		req = append(req, q)
	}

	got, err := e.oracle.GetPrices(ctx, req)
	if err != nil {
		e.log.Warn("batch price lookup failed", zap.Int("symbols", len(req)), zap.Error(err))
	}
	for q, p := range got {
		if s, ok := bySymbol[q]; ok && p.IsPositive() {
			out[s] = p
		}
	}
	return out
}

func symbolsOf(positions []Position) []string {
	seen := make(map[string]bool, len(positions))
	out := make([]string, 0, len(positions))
	for _, p := range positions {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			out = append(out, p.Symbol)
		}
	}
	return out
}
