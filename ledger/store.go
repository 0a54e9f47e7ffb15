package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store is the durable record of accounts, positions and transactions.
// Implementations live in the journal package.
type Store interface {
	CreateAccount(ctx context.Context, acct Account) error
	Account(ctx context.Context, id string) (Account, error)
	Accounts(ctx context.Context) ([]Account, error)

	// Snapshot reads an account and its positions from one consistent view.
	Snapshot(ctx context.Context, id string) (Account, []Position, error)
	Positions(ctx context.Context, id string) ([]Position, error)

	// Transactions returns an account's transactions, newest first.
	// limit <= 0 returns all of them.
	Transactions(ctx context.Context, id string, limit int) ([]Transaction, error)

	// Update runs fn against the account's state and commits every write it
	// made as one unit. Nothing is written when fn or the commit fails; fn's
	// error is returned as is.
	Update(ctx context.Context, id string, fn func(Tx) error) error

	Close() error
}

// Tx is the view of one account inside Store.Update. Reads observe the
// writes already made through the same Tx.
type Tx interface {
	Account() (Account, error)
	Position(symbol string) (Position, bool, error)
	Positions() ([]Position, error)

	SetCash(cash decimal.Decimal) error
	PutPosition(p Position) error
	DeletePosition(symbol string) error
	AppendTransaction(t Transaction) error
	ClearPositions() error
	ClearTransactions() error
}

// PriceOracle supplies current prices. GetPrices leaves out symbols it
// could not price rather than failing the whole batch.
type PriceOracle interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// Listener is notified of executed transactions after the account lock
// has been released.
type Listener interface {
	OnTransactions(accountID string, txs []Transaction)
}
