// Package lockmgr implements the in-process lock manager (spec.md §4.4,
// §5, C5): per-object shared/exclusive locks with wait-for-graph deadlock
// detection. "Object" here is any lockable thing identified by a string
// key — an entry (keyA, valA) or an index (a-index for a key_a, b-index
// for a key_b). internal/store builds those keys; this package only knows
// about locks, holders, and waiters.
//
// Grounded on original_source/src/lib/lock.c for the wait-queue/holder-set
// shape and spec.md §4.4's deadlock-detection algorithm: a waiter follows
// the chain holder → holder.waiting_for → holder's-holder → ... and aborts
// with Deadlock if the chain loops back to itself.
package lockmgr

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// lockMetrics holds OTel metric instruments for lock contention and
// deadlock detection, the same delegating-provider pattern as
// internal/store's storeMetrics.
var lockMetrics struct {
	lockWait metric.Int64Counter
	deadlock metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/relatedb/s4/lockmgr")
	lockMetrics.lockWait, _ = m.Int64Counter("s4_lock_wait_total",
		metric.WithDescription("times a lock acquisition had to block before being granted"),
		metric.WithUnit("{wait}"),
	)
	lockMetrics.deadlock, _ = m.Int64Counter("s4_deadlock_total",
		metric.WithDescription("times a lock acquisition was refused to break a wait-for cycle"),
		metric.WithUnit("{deadlock}"),
	)
}

// Mode is a lock's acquisition mode.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

// TxnID identifies a lock requester. Callers (internal/txn) mint these;
// the lock manager treats them as opaque.
type TxnID uint64

type lockState struct {
	key     string
	holders map[TxnID]Mode
	cond    *sync.Cond
}

func canGrant(l *lockState, txn TxnID, mode Mode) bool {
	if len(l.holders) == 0 {
		return true
	}
	if mode == Shared {
		for id, m := range l.holders {
			if id != txn && m == Exclusive {
				return false
			}
		}
		return true
	}
	// Exclusive: only grantable if we're the sole holder (upgrade) or
	// nobody holds it.
	if len(l.holders) == 1 {
		if _, ok := l.holders[txn]; ok {
			return true
		}
	}
	return false
}

// Manager is the database-wide lock table plus wait-for graph.
type Manager struct {
	mu         sync.Mutex
	locks      map[string]*lockState
	waitingFor map[TxnID]*lockState
	held       map[TxnID]map[string]struct{}
}

// New creates an empty lock manager.
func New() *Manager {
	return &Manager{
		locks:      make(map[string]*lockState),
		waitingFor: make(map[TxnID]*lockState),
		held:       make(map[TxnID]map[string]struct{}),
	}
}

func (m *Manager) getOrCreate(key string) *lockState {
	if l, ok := m.locks[key]; ok {
		return l
	}
	l := &lockState{key: key, holders: make(map[TxnID]Mode)}
	l.cond = sync.NewCond(&m.mu)
	m.locks[key] = l
	return l
}

// Acquire blocks until txn holds key in mode, or returns deadlock=true if
// granting the request would complete a wait-for cycle, in which case the
// caller (the would-be waiter) is the deadlock victim per spec.md §4.4/§8
// property 7.
func (m *Manager) Acquire(txn TxnID, key string, mode Mode) (deadlock bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.getOrCreate(key)
	waited := false
	for {
		if canGrant(l, txn, mode) {
			l.holders[txn] = mode
			if m.held[txn] == nil {
				m.held[txn] = make(map[string]struct{})
			}
			m.held[txn][key] = struct{}{}
			delete(m.waitingFor, txn)
			if waited {
				lockMetrics.lockWait.Add(context.Background(), 1)
			}
			return false
		}
		if m.wouldDeadlock(txn, l) {
			lockMetrics.deadlock.Add(context.Background(), 1)
			return true
		}
		waited = true
		m.waitingFor[txn] = l
		l.cond.Wait()
		delete(m.waitingFor, txn)
	}
}

// wouldDeadlock walks the wait-for graph of transactions, not locks: txn
// depends on every other holder of l, each of which (if itself blocked)
// depends on the other holders of whatever it's waiting on, and so on. A
// path that reaches txn again means granting txn's request would close a
// cycle. Holders are excluded from their own lock's dependency edge so
// that an ordinary shared-to-exclusive upgrade contention (txn is already
// one of l's holders) isn't mistaken for a self-loop.
func (m *Manager) wouldDeadlock(txn TxnID, l *lockState) bool {
	visited := make(map[TxnID]bool)
	var queue []TxnID
	for h := range l.holders {
		if h != txn {
			queue = append(queue, h)
		}
	}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == txn {
			return true
		}
		if visited[h] {
			continue
		}
		visited[h] = true
		waitLock, ok := m.waitingFor[h]
		if !ok {
			continue
		}
		for h2 := range waitLock.holders {
			if h2 != h {
				queue = append(queue, h2)
			}
		}
	}
	return false
}

// Release releases txn's hold on key, waking any waiters.
func (m *Manager) Release(txn TxnID, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		return
	}
	delete(l.holders, txn)
	if ids := m.held[txn]; ids != nil {
		delete(ids, key)
	}
	l.cond.Broadcast()
}

// ReleaseAll releases every lock txn currently holds (commit/abort path,
// spec.md §4.4 step "Release all locks").
func (m *Manager) ReleaseAll(txn TxnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.held[txn] {
		if l, ok := m.locks[key]; ok {
			delete(l.holders, txn)
			l.cond.Broadcast()
		}
	}
	delete(m.held, txn)
	delete(m.waitingFor, txn)
}

// HeldKeys returns the set of keys currently held by txn (used by tests
// and diagnostics).
func (m *Manager) HeldKeys(txn TxnID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.held[txn]))
	for k := range m.held[txn] {
		keys = append(keys, k)
	}
	return keys
}
