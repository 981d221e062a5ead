package data

import (
	"context"
	"sync"
)

// TransactionRunner runs a function within a single storage transaction.
// Batch create, update and delete run under one transaction spanning the
// whole decorator pipeline; a failure anywhere rolls back the entire batch.
type TransactionRunner interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Tx carries per-transaction state through the context: work deferred to
// after a successful commit, such as index dispatch.
type Tx struct {
	mu          sync.Mutex
	afterCommit []func(ctx context.Context)
}

type txKey struct{}

// WithTx derives a context carrying a new transaction scope
func WithTx(ctx context.Context) (context.Context, *Tx) {
	tx := &Tx{}
	return context.WithValue(ctx, txKey{}, tx), tx
}

// TxFrom returns the transaction scope from the context, or nil outside a
// transaction.
func TxFrom(ctx context.Context) *Tx {
	tx, _ := ctx.Value(txKey{}).(*Tx)
	return tx
}

// OnCommit defers a function until the transaction commits. Deferred
// functions never run when the transaction rolls back.
func (t *Tx) OnCommit(fn func(ctx context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.afterCommit = append(t.afterCommit, fn)
}

// Commit runs the deferred after-commit functions in registration order
func (t *Tx) Commit(ctx context.Context) {
	t.mu.Lock()
	fns := t.afterCommit
	t.afterCommit = nil
	t.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}
