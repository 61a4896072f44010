package ledger

import "sync"

// accountLocks is the per-account serialization boundary: every mutating
// operation holds the target account's mutex so two concurrent operations
// cannot both read a stale balance and both succeed.
type accountLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{m: make(map[string]*sync.Mutex)}
}

func (l *accountLocks) lockFor(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu, ok := l.m[id]
	if !ok {
		mu = &sync.Mutex{}
		l.m[id] = mu
	}
	return mu
}

// Lock acquires the account's mutex and returns the unlock func.
func (l *accountLocks) Lock(id string) func() {
	mu := l.lockFor(id)
	mu.Lock()
	return mu.Unlock
}

// LockPair acquires both accounts' mutexes in id order, so opposite-direction
// transfers between the same pair cannot deadlock.
func (l *accountLocks) LockPair(a, b string) func() {
	if b < a {
		a, b = b, a
	}
	first, second := l.lockFor(a), l.lockFor(b)
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}
