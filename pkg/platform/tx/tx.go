// Package tx carries a SQL transaction through context so stores can join the
// caller's transaction without it appearing in their signatures.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

type activeKey struct{}

var txKey = ctxKey{}

// Execer is the subset of *sql.DB and *sql.Tx used by stores.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// MarkActive flags ctx as running inside a transaction that is not a SQL
// transaction, such as the in-memory backend's.
func MarkActive(ctx context.Context) context.Context {
	return context.WithValue(ctx, activeKey{}, true)
}

// Active reports whether ctx runs inside any transaction.
func Active(ctx context.Context) bool {
	if _, ok := From(ctx); ok {
		return true
	}
	marked, _ := ctx.Value(activeKey{}).(bool)
	return marked
}

// Pick returns the transaction in ctx, or db when there is none.
func Pick(ctx context.Context, db *sql.DB) Execer {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}
