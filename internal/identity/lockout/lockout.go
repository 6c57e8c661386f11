// Package lockout throttles repeated login failures. After Attempts failures
// inside Window the identifier is locked for LockFor; a success clears it.
//
// Every attempt reserves a slot before its outcome is known, so concurrent
// guesses cannot all slip past the limit. A failed attempt keeps its slot;
// any other outcome hands it back.
package lockout

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/requestcontext"
)

// Store counts attempts and holds locks. Counters expire on their own.
type Store interface {
	// Reserve atomically takes one attempt slot. It returns a positive wait
	// when the key is locked or every slot in the window is taken.
	Reserve(ctx context.Context, key string, window time.Duration, limit int) (time.Duration, error)
	// Release hands back a slot whose attempt did not fail.
	Release(ctx context.Context, key string) error
	// LockIfExhausted locks key for d once limit failures are held.
	LockIfExhausted(ctx context.Context, key string, limit int, d time.Duration) (bool, error)
	Clear(ctx context.Context, key string) error
}

type Config struct {
	Attempts int
	Window   time.Duration
	LockFor  time.Duration
}

func DefaultConfig() Config {
	return Config{Attempts: 5, Window: 15 * time.Minute, LockFor: 15 * time.Minute}
}

type Guard struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func WithConfig(cfg Config) Option {
	return func(g *Guard) {
		g.cfg = cfg
	}
}

func New(store Store, opts ...Option) *Guard {
	g := &Guard{store: store, cfg: DefaultConfig(), logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Begin reserves an attempt for key, refusing a locked or saturated
// identifier with a too-many-requests error.
func (g *Guard) Begin(ctx context.Context, key string) error {
	wait, err := g.store.Reserve(ctx, key, g.cfg.Window, g.cfg.Attempts)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check login lockout")
	}
	if wait <= 0 {
		return nil
	}
	minutes := max(1, int(math.Ceil(wait.Minutes())))
	return dErrors.New(dErrors.CodeTooManyRequests,
		fmt.Sprintf("too many failed attempts; try again in %d minute(s)", minutes))
}

// Fail keeps the reserved slot as a failure and locks the identifier once
// the limit is reached.
func (g *Guard) Fail(ctx context.Context, key string) error {
	locked, err := g.store.LockIfExhausted(ctx, key, g.cfg.Attempts, g.cfg.LockFor)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login failure")
	}
	if locked {
		g.logger.WarnContext(ctx, "login locked",
			"request_id", requestcontext.RequestID(ctx),
			"key", key,
			"locked_until", requestcontext.Now(ctx).Add(g.cfg.LockFor),
		)
	}
	return nil
}

// Release returns the slot of an attempt that ended without a credential
// failure.
func (g *Guard) Release(ctx context.Context, key string) error {
	if err := g.store.Release(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to release login attempt")
	}
	return nil
}

func (g *Guard) Clear(ctx context.Context, key string) error {
	if err := g.store.Clear(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear login failures")
	}
	return nil
}
