// Package tx carries the per-action transaction boundary.
//
// A Runner executes a function inside one transaction. The Postgres runner
// stores the *sql.Tx in the context so every store call made with that
// context joins it; the memory runner serialises actions behind a mutex.
package tx

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dErrors "benefits/pkg/domain-errors"
)

type ctxKey struct{}

var txKey = ctxKey{}

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

type hooksKey struct{}

type commitHooks struct {
	fns []func()
}

// AfterCommit defers fn until the transaction carried by ctx commits; a
// rollback drops it. Outside a transaction fn runs at once.
func AfterCommit(ctx context.Context, fn func()) {
	if h, ok := ctx.Value(hooksKey{}).(*commitHooks); ok {
		h.fns = append(h.fns, fn)
		return
	}
	fn()
}

func withHooks(ctx context.Context) (context.Context, *commitHooks) {
	h := &commitHooks{}
	return context.WithValue(ctx, hooksKey{}, h), h
}

func (h *commitHooks) run() {
	for _, fn := range h.fns {
		fn()
	}
}

// Runner is the transactional boundary used by services.
type Runner interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// defaultTxTimeout bounds a single action.
const defaultTxTimeout = 5 * time.Second

func withDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return nil
}

// Postgres runs fn inside BEGIN/COMMIT; any error from fn rolls back.
type Postgres struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := cancelled(ctx); err != nil {
		return err
	}
	// Nested calls join the outer transaction.
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}

	ctx, cancel := withDeadline(ctx, p.timeout)
	defer cancel()

	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	txCtx, hooks := withHooks(WithTx(ctx, sqlTx))
	if err := fn(txCtx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return err
	}
	hooks.run()
	return nil
}

type memoryMarker struct{}

// Memory serialises actions for the in-memory stores. It gives isolation but
// no rollback, so services validate before the first write.
type Memory struct {
	mu      sync.Mutex
	timeout time.Duration
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := cancelled(ctx); err != nil {
		return err
	}
	if ctx.Value(memoryMarker{}) != nil {
		return fn(ctx)
	}

	ctx, cancel := withDeadline(ctx, m.timeout)
	defer cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Check again after acquiring lock
	if err := cancelled(ctx); err != nil {
		return err
	}
	txCtx, hooks := withHooks(context.WithValue(ctx, memoryMarker{}, true))
	if err := fn(txCtx); err != nil {
		return err
	}
	hooks.run()
	return nil
}
