package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/shopspring/decimal"
)

// Pebble stores the ledger in a Pebble key-value database. Values are JSON.
//
// keys: a\x00<account>, p\x00<account>\x00<symbol>, t\x00<account>\x00<txid>
type Pebble struct {
	db *pebble.DB

	// mu serializes Update so a staged Tx is never built from state another
	// Update is about to overwrite.
	mu sync.Mutex
}

func NewPebble(path string) (*Pebble, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Pebble{db: db}, nil
}

func (s *Pebble) Close() error { return s.db.Close() }

const sep = "\x00"

func accountKey(id string) []byte        { return []byte("a" + sep + id) }
func positionPrefix(id string) []byte    { return []byte("p" + sep + id + sep) }
func transactionPrefix(id string) []byte { return []byte("t" + sep + id + sep) }

func positionKey(id, symbol string) []byte {
	return append(positionPrefix(id), symbol...)
}

func transactionKey(id, txID string) []byte {
	return append(transactionPrefix(id), txID...)
}

// keyUpperBound returns the smallest key greater than every key with prefix.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// reader is satisfied by both *pebble.DB and *pebble.Snapshot.
type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

func (s *Pebble) CreateAccount(ctx context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := loadAccount(s.db, a.ID)
	if err == nil {
		return fmt.Errorf("account %q: %w", a.ID, ledger.ErrAccountExists)
	}
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		return err
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	return s.db.Set(accountKey(a.ID), data, pebble.Sync)
}

func (s *Pebble) Account(ctx context.Context, id string) (ledger.Account, error) {
	return loadAccount(s.db, id)
}

func (s *Pebble) Accounts(ctx context.Context) ([]ledger.Account, error) {
	prefix := []byte("a" + sep)
	var out []ledger.Account
	err := scanPrefix(s.db, prefix, false, func(v []byte) (bool, error) {
		var a ledger.Account
		if err := json.Unmarshal(v, &a); err != nil {
			return false, fmt.Errorf("unmarshal account: %w", err)
		}
		out = append(out, a)
		return true, nil
	})
	return out, err
}

func (s *Pebble) Snapshot(ctx context.Context, id string) (ledger.Account, []ledger.Position, error) {
	snap := s.db.NewSnapshot()
	defer snap.Close()

	a, err := loadAccount(snap, id)
	if err != nil {
		return ledger.Account{}, nil, err
	}
	ps, err := loadPositions(snap, id)
	if err != nil {
		return ledger.Account{}, nil, err
	}
	return a, ps, nil
}

func (s *Pebble) Positions(ctx context.Context, id string) ([]ledger.Position, error) {
	return loadPositions(s.db, id)
}

func (s *Pebble) Transactions(ctx context.Context, id string, limit int) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	err := scanPrefix(s.db, transactionPrefix(id), true, func(v []byte) (bool, error) {
		var t ledger.Transaction
		if err := json.Unmarshal(v, &t); err != nil {
			return false, fmt.Errorf("unmarshal transaction: %w", err)
		}
		out = append(out, t)
		return limit <= 0 || len(out) < limit, nil
	})
	return out, err
}

func (s *Pebble) Update(ctx context.Context, id string, fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := loadAccount(s.db, id)
	if err != nil {
		return err
	}
	ps, err := loadPositions(s.db, id)
	if err != nil {
		return err
	}

	tx := &pebbleTx{
		id:        id,
		account:   a,
		positions: make(map[string]ledger.Position, len(ps)),
		batch:     s.db.NewBatch(),
	}
	defer tx.batch.Close()
	for _, p := range ps {
		tx.positions[p.Symbol] = p
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// pebbleTx stages writes in a batch and mirrors them in memory so reads
// observe them before commit.
type pebbleTx struct {
	id        string
	account   ledger.Account
	positions map[string]ledger.Position
	batch     *pebble.Batch
}

func (t *pebbleTx) Account() (ledger.Account, error) { return t.account, nil }

func (t *pebbleTx) Position(symbol string) (ledger.Position, bool, error) {
	p, ok := t.positions[symbol]
	return p, ok, nil
}

func (t *pebbleTx) Positions() ([]ledger.Position, error) {
	out := make([]ledger.Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p)
	}
	sortPositions(out)
	return out, nil
}

func (t *pebbleTx) SetCash(cash decimal.Decimal) error {
	t.account.Cash = cash
	data, err := json.Marshal(t.account)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	return t.batch.Set(accountKey(t.id), data, nil)
}

func (t *pebbleTx) PutPosition(p ledger.Position) error {
	p.AccountID = t.id
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	t.positions[p.Symbol] = p
	return t.batch.Set(positionKey(t.id, p.Symbol), data, nil)
}

func (t *pebbleTx) DeletePosition(symbol string) error {
	delete(t.positions, symbol)
	return t.batch.Delete(positionKey(t.id, symbol), nil)
}

func (t *pebbleTx) AppendTransaction(tr ledger.Transaction) error {
	tr.AccountID = t.id
	data, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	return t.batch.Set(transactionKey(t.id, tr.ID), data, nil)
}

func (t *pebbleTx) ClearPositions() error {
	for sym := range t.positions {
		if err := t.DeletePosition(sym); err != nil {
			return err
		}
	}
	return nil
}

func (t *pebbleTx) ClearTransactions() error {
	prefix := transactionPrefix(t.id)
	return t.batch.DeleteRange(prefix, keyUpperBound(prefix), nil)
}

func loadAccount(r reader, id string) (ledger.Account, error) {
	data, closer, err := r.Get(accountKey(id))
	if err == pebble.ErrNotFound {
		return ledger.Account{}, fmt.Errorf("account %q: %w", id, ledger.ErrAccountNotFound)
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("get account: %w", err)
	}
	defer closer.Close()

	var a ledger.Account
	if err := json.Unmarshal(data, &a); err != nil {
		return ledger.Account{}, fmt.Errorf("unmarshal account: %w", err)
	}
	return a, nil
}

func loadPositions(r reader, id string) ([]ledger.Position, error) {
	var out []ledger.Position
	err := scanPrefix(r, positionPrefix(id), false, func(v []byte) (bool, error) {
		var p ledger.Position
		if err := json.Unmarshal(v, &p); err != nil {
			return false, fmt.Errorf("unmarshal position: %w", err)
		}
		out = append(out, p)
		return true, nil
	})
	return out, err
}

// scanPrefix calls fn with every value under prefix, in key order or in
// reverse, until fn returns false or an error.
func scanPrefix(r reader, prefix []byte, reverse bool, fn func(v []byte) (bool, error)) error {
	iter, err := r.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	first, next := iter.First, iter.Next
	if reverse {
		first, next = iter.Last, iter.Prev
	}
	for ok := first(); ok; ok = next() {
		more, err := fn(iter.Value())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

func sortPositions(ps []ledger.Position) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Symbol < ps[j].Symbol })
}
