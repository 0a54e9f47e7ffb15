package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/shopspring/decimal"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One connection makes every Update a single writer and keeps an
	// in-memory database alive for the life of the store.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) CreateAccount(ctx context.Context, a ledger.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, cash, created_at)
		VALUES (?, ?, ?, ?)`,
		a.ID, a.Name, a.Cash.String(), a.CreatedAt,
	)
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("account %q: %w", a.ID, ledger.ErrAccountExists)
	}
	return err
}

func (s *SQLite) Account(ctx context.Context, id string) (ledger.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, accountQuery, id), id)
}

func (s *SQLite) Accounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, cash, created_at
		FROM accounts
		ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		var a ledger.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Cash, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLite) Snapshot(ctx context.Context, id string) (ledger.Account, []ledger.Position, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Account{}, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	a, err := scanAccount(tx.QueryRowContext(ctx, accountQuery, id), id)
	if err != nil {
		return ledger.Account{}, nil, err
	}
	ps, err := queryPositions(ctx, tx, id)
	if err != nil {
		return ledger.Account{}, nil, err
	}
	return a, ps, nil
}

func (s *SQLite) Positions(ctx context.Context, id string) ([]ledger.Position, error) {
	return queryPositions(ctx, s.db, id)
}

func (s *SQLite) Transactions(ctx context.Context, id string, limit int) ([]ledger.Transaction, error) {
	q := `
		SELECT id, account_id, symbol, side, price, quantity, total_value, time
		FROM transactions
		WHERE account_id = ?
		ORDER BY id DESC`
	args := []any{id}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var t ledger.Transaction
		if err := rows.Scan(
			&t.ID,
			&t.AccountID,
			&t.Symbol,
			&t.Side,
			&t.Price,
			&t.Quantity,
			&t.TotalValue,
			&t.Time,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLite) Update(ctx context.Context, id string, fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if err := fn(&sqliteTx{ctx: ctx, tx: tx, id: id}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// sqliteTx is the ledger.Tx of one SQLite transaction.
type sqliteTx struct {
	ctx context.Context
	tx  *sql.Tx
	id  string
}

func (t *sqliteTx) Account() (ledger.Account, error) {
	return scanAccount(t.tx.QueryRowContext(t.ctx, accountQuery, t.id), t.id)
}

func (t *sqliteTx) Position(symbol string) (ledger.Position, bool, error) {
	p := ledger.Position{AccountID: t.id, Symbol: symbol}
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT quantity, avg_price
		FROM positions
		WHERE account_id = ? AND symbol = ?`, t.id, symbol).Scan(&p.Quantity, &p.AvgPrice)
	if err != nil {
		if err == sql.ErrNoRows {
			return ledger.Position{}, false, nil
		}
		return ledger.Position{}, false, err
	}
	return p, true, nil
}

func (t *sqliteTx) Positions() ([]ledger.Position, error) {
	return queryPositions(t.ctx, t.tx, t.id)
}

func (t *sqliteTx) SetCash(cash decimal.Decimal) error {
	_, err := t.tx.ExecContext(t.ctx, `UPDATE accounts SET cash = ? WHERE id = ?`, cash.String(), t.id)
	return err
}

func (t *sqliteTx) PutPosition(p ledger.Position) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO positions (account_id, symbol, quantity, avg_price)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id, symbol)
		DO UPDATE SET quantity = excluded.quantity, avg_price = excluded.avg_price`,
		t.id, p.Symbol, p.Quantity.String(), p.AvgPrice.String(),
	)
	return err
}

func (t *sqliteTx) DeletePosition(symbol string) error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM positions WHERE account_id = ? AND symbol = ?`, t.id, symbol)
	return err
}

func (t *sqliteTx) AppendTransaction(tr ledger.Transaction) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO transactions
		(id, account_id, symbol, side, price, quantity, total_value, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, t.id, tr.Symbol, string(tr.Side), tr.Price.String(),
		tr.Quantity.String(), tr.TotalValue.String(), tr.Time,
	)
	return err
}

func (t *sqliteTx) ClearPositions() error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM positions WHERE account_id = ?`, t.id)
	return err
}

func (t *sqliteTx) ClearTransactions() error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM transactions WHERE account_id = ?`, t.id)
	return err
}

const accountQuery = `
	SELECT id, name, cash, created_at
	FROM accounts
	WHERE id = ?`

func scanAccount(row *sql.Row, id string) (ledger.Account, error) {
	var a ledger.Account
	if err := row.Scan(&a.ID, &a.Name, &a.Cash, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return ledger.Account{}, fmt.Errorf("account %q: %w", id, ledger.ErrAccountNotFound)
		}
		return ledger.Account{}, err
	}
	return a, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryPositions(ctx context.Context, q querier, id string) ([]ledger.Position, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT account_id, symbol, quantity, avg_price
		FROM positions
		WHERE account_id = ?
		ORDER BY symbol ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Position
	for rows.Next() {
		var p ledger.Position
		if err := rows.Scan(&p.AccountID, &p.Symbol, &p.Quantity, &p.AvgPrice); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
