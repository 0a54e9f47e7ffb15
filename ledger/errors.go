package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every failure returned by the Engine matches exactly one of
// these with errors.Is.
var (
	ErrPriceUnavailable     = errors.New("price unavailable")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrPersistence          = errors.New("persistence failure")

	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists")
	ErrInvalidAccount    = errors.New("invalid account")
	ErrInvalidCopySource = errors.New("invalid copy source")
)

var kindNames = []struct {
	kind error
	name string
}{
	{ErrPriceUnavailable, "PriceUnavailable"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrInsufficientHoldings, "InsufficientHoldings"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrAccountNotFound, "AccountNotFound"},
	{ErrAccountExists, "AccountExists"},
	{ErrInvalidAccount, "InvalidAccount"},
	{ErrInvalidCopySource, "InvalidCopySource"},
	{ErrPersistence, "PersistenceFailure"},
}

// Error describes a rejected or failed ledger operation. State is unchanged
// whenever an Error is returned.
type Error struct {
	Op      string
	Kind    error
	Account string
	Symbol  string
	Err     error
}

func newError(op string, kind error, account, symbol string, err error) *Error {
	return &Error{Op: op, Kind: kind, Account: account, Symbol: symbol, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Symbol != "" {
		b.WriteString(" ")
		b.WriteString(e.Symbol)
	}
	if e.Account != "" {
		fmt.Fprintf(&b, " (account %s)", e.Account)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the error kind err matches, or nil.
func KindOf(err error) error {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	for _, k := range kindNames {
		if errors.Is(err, k.kind) {
			return k.kind
		}
	}
	return nil
}

// KindName returns a stable identifier for err's kind, e.g.
// "InsufficientFunds", or "" when err matches no kind.
func KindName(err error) string {
	kind := KindOf(err)
	for _, k := range kindNames {
		if k.kind == kind {
			return k.name
		}
	}
	return ""
}
