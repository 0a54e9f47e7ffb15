// market/symbol.go
package market

import "strings"

// DefaultQuoteSuffix is appended to a bare asset symbol to form the pair the
// oracle quotes against the account currency, e.g. BTC -> BTC-USD.
const DefaultQuoteSuffix = "-USD"

// Normalize upper-cases and trims symbol and strips a trailing quote suffix,
// so "btc", "BTC " and "BTC-USD" all key the same position.
func Normalize(symbol, suffix string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	suffix = strings.ToUpper(suffix)
	if suffix != "" && len(s) > len(suffix) && strings.HasSuffix(s, suffix) {
		s = strings.TrimSuffix(s, suffix)
	}
	return s
}

// Quoted returns the primary oracle form of a normalized symbol.
func Quoted(symbol, suffix string) string {
	if suffix == "" {
		return symbol
	}
	return symbol + strings.ToUpper(suffix)
}

// Candidates returns the oracle symbols to try for symbol, primary first:
// the quoted pair, then the bare symbol.
func Candidates(symbol, suffix string) []string {
	s := Normalize(symbol, suffix)
	if s == "" {
		return nil
	}
	q := Quoted(s, suffix)
	if q == s {
		return []string{s}
	}
	return []string{q, s}
}
