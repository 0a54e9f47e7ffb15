// journal/journal.go
package journal

import (
	"fmt"

	"github.com/rustyeddy/papertrade/ledger"
)

const (
	TypeSQLite = "sqlite"
	TypePebble = "pebble"
)

// Open opens the ledger store of the given type at path. SQLite takes a
// file path (or ":memory:"); Pebble takes a directory.
func Open(kind, path string) (ledger.Store, error) {
	switch kind {
	case TypeSQLite, "":
		return NewSQLite(path)
	case TypePebble:
		return NewPebble(path)
	default:
		return nil, fmt.Errorf("unknown store type %q", kind)
	}
}

var (
	_ ledger.Store = (*SQLite)(nil)
	_ ledger.Store = (*Pebble)(nil)
)
