package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CopyOrder is one buy a copy-trade places, sized to the source holding.
type CopyOrder struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Cost     decimal.Decimal `json:"cost"`
	// Live is false when the oracle had no quote and the source's average
	// cost was used.
	Live bool `json:"live"`
}

type CopyPreview struct {
	Source           string          `json:"source"`
	Orders           []CopyOrder     `json:"orders"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	Cash             decimal.Decimal `json:"cash"`
	LiquidationValue decimal.Decimal `json:"liquidation_value"`
	CanMerge         bool            `json:"can_merge"`
	CanReplace       bool            `json:"can_replace"`
}

type CopyResult struct {
	Source     string          `json:"source"`
	Mode       string          `json:"mode"`
	Liquidated []Transaction   `json:"liquidated,omitempty"`
	Bought     []Transaction   `json:"bought"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	Cash       decimal.Decimal `json:"cash"`
}

// PreviewCopyTrade prices what copying sourceID would cost actorID without
// changing anything.
func (e *Engine) PreviewCopyTrade(ctx context.Context, actorID, sourceID string) (CopyPreview, error) {
	const op = "preview copy"

	orders, total, err := e.planCopy(ctx, op, actorID, sourceID)
	if err != nil {
		return CopyPreview{}, err
	}

	acct, held, err := e.store.Snapshot(ctx, actorID)
	if err != nil {
		return CopyPreview{}, e.readError(op, actorID, err)
	}

	liq := decimal.Zero
	for _, p := range held {
		liq = liq.Add(p.Cost())
	}

	return CopyPreview{
		Source:           sourceID,
		Orders:           orders,
		TotalCost:        total,
		Cash:             acct.Cash,
		LiquidationValue: liq,
		CanMerge:         acct.Cash.GreaterThanOrEqual(total),
		CanReplace:       acct.Cash.Add(liq).GreaterThanOrEqual(total),
	}, nil
}

// ExecuteCopyTrade replicates sourceID's current holdings into actorID.
//
// In Replace mode every existing position is first sold at its own average
// cost and the proceeds count toward the copy. The liquidation and the buys
// are one store update: if the account cannot afford the full copy nothing
// is sold and nothing is bought.
func (e *Engine) ExecuteCopyTrade(ctx context.Context, actorID, sourceID string, mode CopyMode) (CopyResult, error) {
	const op = "copy trade"

	orders, total, err := e.planCopy(ctx, op, actorID, sourceID)
	if err != nil {
		return CopyResult{}, err
	}

	now := e.opts.Now().UTC()
	res := CopyResult{Source: sourceID, Mode: mode.String(), TotalCost: total}

	unlock := e.locks.lock(actorID)
	err = e.store.Update(ctx, actorID, func(tx Tx) error {
		acct, err := tx.Account()
		if err != nil {
			return err
		}
		cash := acct.Cash

		if mode == Replace {
			held, err := tx.Positions()
			if err != nil {
				return err
			}
			for _, p := range held {
				proceeds := p.Cost()
				t := e.newTransaction(actorID, p.Symbol, Sell, p.AvgPrice, p.Quantity, proceeds, now)
				if err := tx.AppendTransaction(t); err != nil {
					return err
				}
				cash = cash.Add(proceeds)
				res.Liquidated = append(res.Liquidated, t)
			}
			if err := tx.ClearPositions(); err != nil {
				return err
			}
		}

		if cash.LessThan(total) {
			return newError(op, ErrInsufficientFunds, actorID, "",
				fmt.Errorf("copy costs %s, available %s", total.StringFixed(2), cash.StringFixed(2)))
		}

		for _, o := range orders {
			if _, err := e.addToPosition(tx, actorID, o.Symbol, o.Quantity, o.Price, o.Cost); err != nil {
				return err
			}
			t := e.newTransaction(actorID, o.Symbol, Buy, o.Price, o.Quantity, o.Cost, now)
			if err := tx.AppendTransaction(t); err != nil {
				return err
			}
			cash = cash.Sub(o.Cost)
			res.Bought = append(res.Bought, t)
		}

		res.Cash = cash
		return tx.SetCash(cash)
	})
	unlock()
	if err != nil {
		return CopyResult{}, e.updateError(op, actorID, "", err)
	}

	e.log.Info("copy trade executed",
		zap.String("account", actorID),
		zap.String("source", sourceID),
		zap.String("mode", mode.String()),
		zap.Int("liquidated", len(res.Liquidated)),
		zap.Int("bought", len(res.Bought)),
		zap.String("cost", total.String()))
	e.notify(actorID, append(append([]Transaction{}, res.Liquidated...), res.Bought...)...)
	return res, nil
}

// planCopy prices every source position with one batched oracle call and
// returns the orders and their total cost.
func (e *Engine) planCopy(ctx context.Context, op, actorID, sourceID string) ([]CopyOrder, decimal.Decimal, error) {
	if sourceID == "" || sourceID == actorID {
		return nil, decimal.Zero, newError(op, ErrInvalidCopySource, actorID, "", errors.New("cannot copy own account"))
	}
	if _, err := e.store.Account(ctx, actorID); err != nil {
		return nil, decimal.Zero, e.readError(op, actorID, err)
	}

	_, src, err := e.store.Snapshot(ctx, sourceID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, decimal.Zero, newError(op, ErrInvalidCopySource, actorID, "", fmt.Errorf("source %s: %w", sourceID, err))
		}
		return nil, decimal.Zero, newError(op, ErrPersistence, actorID, "", err)
	}
	if len(src) == 0 {
		return nil, decimal.Zero, newError(op, ErrInvalidCopySource, actorID, "", fmt.Errorf("source %s holds no positions", sourceID))
	}

	live := e.livePrices(ctx, symbolsOf(src))

	orders := make([]CopyOrder, 0, len(src))
	total := decimal.Zero
	for _, p := range src {
		price, ok := live[p.Symbol]
		if !ok {
			price = p.AvgPrice
		}
		cost := p.Quantity.Mul(price)
		orders = append(orders, CopyOrder{
			Symbol:   p.Symbol,
			Quantity: p.Quantity,
			Price:    price,
			Cost:     cost,
			Live:     ok,
		})
		total = total.Add(cost)
	}
	return orders, total, nil
}
