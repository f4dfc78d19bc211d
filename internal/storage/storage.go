// Package storage defines the transactional boundary shared by services.
//
// Every mutation and its audit entry run inside one RunInTx call. Stores join the
// transaction carried by the context passed to fn; implementations live in
// storage/memory and storage/postgres.
package storage

import "context"

// Tx runs fn atomically. Any error returned by fn discards every write made
// through its context.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	// LockSubject serialises transactions that touch the same subject key
	// (a person's national id, a client key or id) until the enclosing
	// transaction ends. It must be called inside RunInTx.
	LockSubject(ctx context.Context, key string) error
}
