package api

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey struct{}

// Authenticator resolves bearer tokens to account ids.
type Authenticator struct {
	tokens map[string]string
}

func NewAuthenticator(tokens map[string]string) *Authenticator {
	a := &Authenticator{tokens: make(map[string]string, len(tokens))}
	for tok, acct := range tokens {
		a.tokens[tok] = acct
	}
	return a
}

// Authenticate returns the account for the request's bearer token. Browsers
// cannot set headers on websocket upgrades, so a token query parameter is
// accepted as well.
func (a *Authenticator) Authenticate(r *http.Request) (string, bool) {
	tok := ""
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, rest, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}
		tok = strings.TrimSpace(rest)
	} else {
		tok = r.URL.Query().Get("token")
	}
	if tok == "" {
		return "", false
	}
	acct, ok := a.tokens[tok]
	return acct, ok
}

// Middleware rejects unauthenticated requests with 401 and stores the
// account id in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct, ok := a.Authenticate(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, acct)))
	})
}

// AccountFrom returns the authenticated account id stored by Middleware.
func AccountFrom(ctx context.Context) (string, bool) {
	acct, ok := ctx.Value(ctxKey{}).(string)
	return acct, ok && acct != ""
}
