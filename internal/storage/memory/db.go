// Package memory provides an in-process transactional store used by tests and
// by the server when no database is configured.
//
// A DB owns every registered table. RunInTx holds one coarse lock for the
// duration of fn and restores each table's snapshot if fn fails, so partial
// writes are never visible.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	dErrors "unionregistry/pkg/domain-errors"
	txcontext "unionregistry/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// Table is a piece of state that can be rolled back.
type Table interface {
	// Snapshot captures the current state and returns a function restoring it.
	Snapshot() (restore func())
}

type txKey struct{}

// DB coordinates locking and rollback across tables.
type DB struct {
	mu      sync.RWMutex
	tables  []Table
	timeout time.Duration
}

// Option configures a DB.
type Option func(*DB)

// WithTxTimeout bounds how long a transaction may wait for the lock and run.
// It applies only when the caller's context has no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(db *DB) {
		if d > 0 {
			db.timeout = d
		}
	}
}

// New creates an empty DB.
func New(opts ...Option) *DB {
	db := &DB{timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Register adds a table to the rollback set. Call before serving traffic.
func (db *DB) Register(t Table) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables = append(db.tables, t)
}

func (db *DB) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*DB)
	return owner == db
}

// RunInTx executes fn under the write lock. Nested calls join the outer transaction.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if db.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.timeout)
		defer cancel()
	}

	if err := db.lock(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: timed out waiting for lock")
	}
	defer db.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	restores := make([]func(), len(db.tables))
	for i, t := range db.tables {
		restores[i] = t.Snapshot()
	}
	rollback := func() {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
	}
	defer func() {
		if r := recover(); r != nil {
			rollback()
			panic(r)
		}
	}()

	if err := fn(txcontext.MarkActive(context.WithValue(ctx, txKey{}, db))); err != nil {
		rollback()
		return err
	}
	return nil
}

// lock takes the write lock or gives up when ctx is done. An abandoned
// acquisition releases the lock as soon as it is granted.
func (db *DB) lock(ctx context.Context) error {
	if db.mu.TryLock() {
		return nil
	}
	acquired := make(chan struct{})
	go func() {
		db.mu.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		return nil
	case <-ctx.Done():
		go func() {
			<-acquired
			db.mu.Unlock()
		}()
		return ctx.Err()
	}
}

// LockSubject is a no-op: RunInTx already serialises every transaction.
func (db *DB) LockSubject(ctx context.Context, _ string) error {
	if !db.inTx(ctx) {
		return dErrors.New(dErrors.CodeInternal, "subject lock outside transaction")
	}
	return nil
}

// View runs fn under the read lock unless ctx is already inside a transaction.
func (db *DB) View(ctx context.Context, fn func()) {
	if db.inTx(ctx) {
		fn()
		return
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	fn()
}

// Update runs fn under the write lock unless ctx is already inside a transaction.
// Writes made outside RunInTx are not rolled back.
func (db *DB) Update(ctx context.Context, fn func()) {
	if db.inTx(ctx) {
		fn()
		return
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	fn()
}

// Map is a keyed table of values. Values are copied in and out, so callers
// never share memory with the table.
type Map[K comparable, V any] struct {
	rows map[K]V
}

// NewMap creates a Map registered with db.
func NewMap[K comparable, V any](db *DB) *Map[K, V] {
	m := &Map[K, V]{rows: make(map[K]V)}
	db.Register(m)
	return m
}

func (m *Map[K, V]) Snapshot() func() {
	saved := maps.Clone(m.rows)
	return func() { m.rows = saved }
}

func (m *Map[K, V]) Get(k K) (V, bool) {
	v, ok := m.rows[k]
	return v, ok
}

func (m *Map[K, V]) Put(k K, v V) {
	m.rows[k] = v
}

func (m *Map[K, V]) Delete(k K) {
	delete(m.rows, k)
}

func (m *Map[K, V]) Len() int {
	return len(m.rows)
}

// Each calls fn for every row until fn returns false. Order is unspecified.
func (m *Map[K, V]) Each(fn func(K, V) bool) {
	for k, v := range m.rows {
		if !fn(k, v) {
			return
		}
	}
}
