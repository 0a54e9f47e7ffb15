package api

import (
	"encoding/json"

	"github.com/rustyeddy/papertrade/ledger"
)

// OrderRequest is the body of POST /api/v1/orders. Amount may be a JSON
// number or a numeric string; Mode is "units" (default) or "notional".
type OrderRequest struct {
	Symbol string      `json:"symbol"`
	Side   string      `json:"side"`
	Amount json.Number `json:"amount"`
	Mode   string      `json:"mode,omitempty"`
}

// CopyRequest is the optional body of POST /api/v1/copy/{source}.
type CopyRequest struct {
	Mode string `json:"mode,omitempty"` // "merge" (default) or "replace"
}

// OpenRequest is the optional body of POST /api/v1/account.
type OpenRequest struct {
	Name string `json:"name,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// TransactionsMessage is pushed to websocket subscribers of an account.
type TransactionsMessage struct {
	Type         string               `json:"type"`
	Channel      string               `json:"channel"`
	AccountID    string               `json:"account_id"`
	Transactions []ledger.Transaction `json:"transactions"`
}

// WSSubscribeRequest is sent by websocket clients.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}
