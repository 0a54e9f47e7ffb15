package ledger

import "sync"

// accountLocks hands out one mutex per account id and forgets it once no
// goroutine holds or waits for it.
type accountLocks struct {
	mu sync.Mutex
	m  map[string]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{m: make(map[string]*accountLock)}
}

// lock blocks until id is held and returns the matching unlock func.
func (l *accountLocks) lock(id string) func() {
	l.mu.Lock()
	al, ok := l.m[id]
	if !ok {
		al = &accountLock{}
		l.m[id] = al
	}
	al.refs++
	l.mu.Unlock()

	al.mu.Lock()

	return func() {
		al.mu.Unlock()

		l.mu.Lock()
		al.refs--
		if al.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}

func (l *accountLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
