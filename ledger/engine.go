package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/pkg/id"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultOracleTimeout = 5 * time.Second

var (
	// DefaultStartingBalance is the cash a new or reset account holds.
	DefaultStartingBalance = decimal.NewFromInt(10_000)

	// DefaultDustQuantity is the quantity at or below which a position is
	// considered closed and deleted.
	DefaultDustQuantity = decimal.New(1, -6)

	// DefaultSellTolerance is the relative shortfall (0.001%) a sell may
	// have against the held quantity, absorbing rounding from earlier
	// weighted-average updates.
	DefaultSellTolerance = decimal.New(1, -5)
)

type Options struct {
	StartingBalance decimal.Decimal
	DustQuantity    decimal.Decimal
	SellTolerance   decimal.Decimal

	// QuoteSuffix turns an asset symbol into its oracle pair, e.g. "-USD".
	// Empty means DefaultQuoteSuffix unless BareSymbols is set.
	QuoteSuffix string

	// BareSymbols quotes symbols as is, with no pair lookup.
	BareSymbols bool

	OracleTimeout time.Duration
	Logger        *zap.Logger
	Listener      Listener

	// Now stamps transactions. Defaults to time.Now.
	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		StartingBalance: DefaultStartingBalance,
		DustQuantity:    DefaultDustQuantity,
		SellTolerance:   DefaultSellTolerance,
		QuoteSuffix:     market.DefaultQuoteSuffix,
		OracleTimeout:   DefaultOracleTimeout,
	}
}

// Engine applies trades to accounts. It is safe for concurrent use;
// operations on the same account are serialized.
type Engine struct {
	store  Store
	oracle PriceOracle
	opts   Options
	log    *zap.Logger
	locks  *accountLocks

	mu       sync.RWMutex
	listener Listener
}

func NewEngine(store Store, oracle PriceOracle, opts Options) *Engine {
	def := DefaultOptions()
	if !opts.StartingBalance.IsPositive() {
		opts.StartingBalance = def.StartingBalance
	}
	if !opts.DustQuantity.IsPositive() {
		opts.DustQuantity = def.DustQuantity
	}
	if opts.SellTolerance.IsNegative() || opts.SellTolerance.IsZero() {
		opts.SellTolerance = def.SellTolerance
	}
	if opts.BareSymbols {
		opts.QuoteSuffix = ""
	} else if opts.QuoteSuffix == "" {
		opts.QuoteSuffix = def.QuoteSuffix
	}
	if opts.OracleTimeout <= 0 {
		opts.OracleTimeout = def.OracleTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Engine{
		store:    store,
		oracle:   oracle,
		opts:     opts,
		log:      log.Named("ledger"),
		locks:    newAccountLocks(),
		listener: opts.Listener,
	}
}

// SetListener replaces the transaction listener. nil disables notifications.
func (e *Engine) SetListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

// OpenAccount creates an account holding the starting balance.
func (e *Engine) OpenAccount(ctx context.Context, accountID, name string) (Account, error) {
	const op = "open account"

	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Account{}, newError(op, ErrInvalidAccount, "", "", errors.New("account id is required"))
	}

	acct := Account{
		ID:        accountID,
		Name:      strings.TrimSpace(name),
		Cash:      e.opts.StartingBalance,
		CreatedAt: e.opts.Now().UTC(),
	}
	if err := e.store.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return Account{}, newError(op, ErrAccountExists, accountID, "", nil)
		}
		return Account{}, newError(op, ErrPersistence, accountID, "", err)
	}

	e.log.Info("account opened",
		zap.String("account", accountID),
		zap.String("cash", acct.Cash.String()))
	return acct, nil
}

// ExecuteBuy buys symbol for accountID. amount is a unit quantity or a
// cash amount depending on sizing. The order fills completely or not at all.
func (e *Engine) ExecuteBuy(ctx context.Context, accountID, symbol string, amount decimal.Decimal, sizing Sizing) (TradeResult, error) {
	const op = "buy"

	sym := market.Normalize(symbol, e.opts.QuoteSuffix)
	if !amount.IsPositive() {
		return TradeResult{}, newError(op, ErrInvalidAmount, accountID, sym, fmt.Errorf("amount %s must be positive", amount))
	}

	// Resolve the price before taking the account lock.
	price, err := e.quote(ctx, sym)
	if err != nil {
		return TradeResult{}, newError(op, ErrPriceUnavailable, accountID, sym, err)
	}

	qty, cost := size(amount, price, sizing)
	if err := e.checkQuantity(op, accountID, sym, qty); err != nil {
		return TradeResult{}, err
	}
	now := e.opts.Now().UTC()

	var res TradeResult
	unlock := e.locks.lock(accountID)
	err = e.store.Update(ctx, accountID, func(tx Tx) error {
		acct, err := tx.Account()
		if err != nil {
			return err
		}
		if acct.Cash.LessThan(cost) {
			return newError(op, ErrInsufficientFunds, accountID, sym,
				fmt.Errorf("cost %s exceeds cash %s", cost.StringFixed(2), acct.Cash.StringFixed(2)))
		}

		pos, err := e.addToPosition(tx, accountID, sym, qty, price, cost)
		if err != nil {
			return err
		}

		cash := acct.Cash.Sub(cost)
		if err := tx.SetCash(cash); err != nil {
			return err
		}

		t := e.newTransaction(accountID, sym, Buy, price, qty, cost, now)
		if err := tx.AppendTransaction(t); err != nil {
			return err
		}

		res = TradeResult{Transaction: t, Cash: cash, Position: &pos}
		return nil
	})
	unlock()
	if err != nil {
		return TradeResult{}, e.updateError(op, accountID, sym, err)
	}

	e.log.Info("buy executed",
		zap.String("account", accountID),
		zap.String("symbol", sym),
		zap.String("quantity", qty.String()),
		zap.String("price", price.String()),
		zap.String("cost", cost.String()))
	e.notify(accountID, res.Transaction)
	return res, nil
}

// ExecuteSell sells symbol from accountID's position. A request exceeding
// the holding by no more than the sell tolerance sells the whole holding.
func (e *Engine) ExecuteSell(ctx context.Context, accountID, symbol string, amount decimal.Decimal, sizing Sizing) (TradeResult, error) {
	const op = "sell"

	sym := market.Normalize(symbol, e.opts.QuoteSuffix)
	if !amount.IsPositive() {
		return TradeResult{}, newError(op, ErrInvalidAmount, accountID, sym, fmt.Errorf("amount %s must be positive", amount))
	}

	price, err := e.quote(ctx, sym)
	if err != nil {
		return TradeResult{}, newError(op, ErrPriceUnavailable, accountID, sym, err)
	}

	qty, proceeds := size(amount, price, sizing)
	if err := e.checkQuantity(op, accountID, sym, qty); err != nil {
		return TradeResult{}, err
	}
	now := e.opts.Now().UTC()

	var res TradeResult
	unlock := e.locks.lock(accountID)
	err = e.store.Update(ctx, accountID, func(tx Tx) error {
		acct, err := tx.Account()
		if err != nil {
			return err
		}

		pos, ok, err := tx.Position(sym)
		if err != nil {
			return err
		}
		if !ok {
			return newError(op, ErrInsufficientHoldings, accountID, sym, errors.New("no open position"))
		}

		floor := qty.Mul(decimal.NewFromInt(1).Sub(e.opts.SellTolerance))
		if pos.Quantity.LessThan(floor) {
			return newError(op, ErrInsufficientHoldings, accountID, sym,
				fmt.Errorf("holding %s, selling %s", pos.Quantity, qty))
		}

		sold, total := qty, proceeds
		if sold.GreaterThan(pos.Quantity) {
			sold = pos.Quantity
			total = sold.Mul(price)
		}

		remaining := pos.Quantity.Sub(sold)
		if remaining.LessThanOrEqual(e.opts.DustQuantity) {
			if err := tx.DeletePosition(sym); err != nil {
				return err
			}
			res.Position = nil
		} else {
			pos.Quantity = remaining
			if err := tx.PutPosition(pos); err != nil {
				return err
			}
			res.Position = &pos
		}

		cash := acct.Cash.Add(total)
		if err := tx.SetCash(cash); err != nil {
			return err
		}

		t := e.newTransaction(accountID, sym, Sell, price, sold, total, now)
		if err := tx.AppendTransaction(t); err != nil {
			return err
		}

		res.Transaction = t
		res.Cash = cash
		return nil
	})
	unlock()
	if err != nil {
		return TradeResult{}, e.updateError(op, accountID, sym, err)
	}

	e.log.Info("sell executed",
		zap.String("account", accountID),
		zap.String("symbol", sym),
		zap.String("quantity", res.Transaction.Quantity.String()),
		zap.String("price", price.String()),
		zap.String("proceeds", res.Transaction.TotalValue.String()))
	e.notify(accountID, res.Transaction)
	return res, nil
}

// Reset returns an account to its opening state: starting balance, no
// positions, no transactions.
func (e *Engine) Reset(ctx context.Context, accountID string) (Account, error) {
	const op = "reset"

	var acct Account
	unlock := e.locks.lock(accountID)
	err := e.store.Update(ctx, accountID, func(tx Tx) error {
		a, err := tx.Account()
		if err != nil {
			return err
		}
		if err := tx.SetCash(e.opts.StartingBalance); err != nil {
			return err
		}
		if err := tx.ClearPositions(); err != nil {
			return err
		}
		if err := tx.ClearTransactions(); err != nil {
			return err
		}
		a.Cash = e.opts.StartingBalance
		acct = a
		return nil
	})
	unlock()
	if err != nil {
		return Account{}, e.updateError(op, accountID, "", err)
	}

	e.log.Info("account reset", zap.String("account", accountID))
	return acct, nil
}

// addToPosition merges a fill into the symbol's position using the executed
// cost, so notional orders do not drift from price * quantity rounding.
func (e *Engine) addToPosition(tx Tx, accountID, sym string, qty, price, cost decimal.Decimal) (Position, error) {
	pos, ok, err := tx.Position(sym)
	if err != nil {
		return Position{}, err
	}
	if ok {
		total := pos.Quantity.Add(qty)
		pos.AvgPrice = pos.Quantity.Mul(pos.AvgPrice).Add(cost).Div(total)
		pos.Quantity = total
	} else {
		pos = Position{AccountID: accountID, Symbol: sym, Quantity: qty, AvgPrice: price}
	}
	return pos, tx.PutPosition(pos)
}

func (e *Engine) newTransaction(accountID, sym string, side Side, price, qty, total decimal.Decimal, now time.Time) Transaction {
	return Transaction{
		ID:         id.At(now),
		AccountID:  accountID,
		Symbol:     sym,
		Side:       side,
		Price:      price,
		Quantity:   qty,
		TotalValue: total,
		Time:       now,
	}
}

// quote resolves a positive price for sym, trying the quoted pair first and
// the bare symbol second.
func (e *Engine) quote(ctx context.Context, sym string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.OracleTimeout)
	defer cancel()

	candidates := market.Candidates(sym, e.opts.QuoteSuffix)
	if len(candidates) == 0 {
		return decimal.Zero, errors.New("symbol is required")
	}

	var errs []error
	for _, c := range candidates {
		p, err := e.oracle.GetPrice(ctx, c)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c, err))
			continue
		}
		if !p.IsPositive() {
			errs = append(errs, fmt.Errorf("%s: non-positive price %s", c, p))
			continue
		}
		return p, nil
	}
	return decimal.Zero, errors.Join(errs...)
}

// updateError converts a Store.Update failure into an *Error. Rejections
// raised inside the update keep their kind; anything else is a persistence
// failure.
func (e *Engine) updateError(op, accountID, sym string, err error) error {
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	if errors.Is(err, ErrAccountNotFound) {
		return newError(op, ErrAccountNotFound, accountID, sym, nil)
	}

	e.log.Error("update failed",
		zap.String("op", op),
		zap.String("account", accountID),
		zap.Error(err))
	return newError(op, ErrPersistence, accountID, sym, err)
}

func (e *Engine) readError(op, accountID string, err error) error {
	if errors.Is(err, ErrAccountNotFound) {
		return newError(op, ErrAccountNotFound, accountID, "", nil)
	}
	return newError(op, ErrPersistence, accountID, "", err)
}

func (e *Engine) notify(accountID string, txs ...Transaction) {
	e.mu.RLock()
	l := e.listener
	e.mu.RUnlock()

	if l != nil && len(txs) > 0 {
		l.OnTransactions(accountID, txs)
	}
}

// checkQuantity rejects fills too small to leave a position above dust.
func (e *Engine) checkQuantity(op, accountID, sym string, qty decimal.Decimal) error {
	if qty.LessThanOrEqual(e.opts.DustQuantity) {
		return newError(op, ErrInvalidAmount, accountID, sym,
			fmt.Errorf("quantity %s is at or below the dust threshold %s", qty, e.opts.DustQuantity))
	}
	return nil
}

// size converts an order amount into quantity and cash value at price.
func size(amount, price decimal.Decimal, sizing Sizing) (qty, value decimal.Decimal) {
	if sizing == Notional {
		return amount.Div(price), amount
	}
	return amount, amount.Mul(price)
}
