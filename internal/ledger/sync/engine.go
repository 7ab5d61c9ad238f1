package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/batabung/batabung/internal/ledger/lock"
	"github.com/batabung/batabung/internal/logger"
)

// Messages published on success.
const (
	MsgBootstrapDone = "initial download complete"
	MsgSyncDone      = "sync complete"
)

// Config holds the engine's optional collaborators.
type Config struct {
	// Logger defaults to a stderr console logger.
	Logger *zerolog.Logger
	// Publisher defaults to a fresh one. Pass a shared publisher to let
	// observers subscribe before the engine exists.
	Publisher *Publisher
	// Locker adds a per-owner lock on top of the publisher's single-flight
	// check, e.g. a Redis lock shared between processes.
	Locker lock.Locker
	// DeleteTimeout bounds a detached remote delete. Default 30s.
	DeleteTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine reconciles one device's ledger with the remote backend.
type Engine struct {
	local  LocalStore
	remote Gateway
	log    zerolog.Logger
	pub    *Publisher
	locker lock.Locker
	now    func() time.Time

	deleteTimeout time.Duration

	// mu guards closed; detached.Add only happens under mu while open.
	mu       gosync.Mutex
	closed   bool
	detached gosync.WaitGroup
	halt     context.Context
	haltFn   context.CancelFunc
}

// New creates an Engine. cfg may be nil.
//
// Example:
//
//	store, _ := db.Open(path)
//	engine := sync.New(store, remote.NewGateway(client), nil)
//	report, err := engine.FullSync(ctx, ownerID)
func New(local LocalStore, remote Gateway, cfg *Config) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	e := &Engine{
		local:         local,
		remote:        remote,
		log:           logger.OrDefault(cfg.Logger, "sync"),
		pub:           cfg.Publisher,
		locker:        cfg.Locker,
		now:           cfg.Now,
		deleteTimeout: cfg.DeleteTimeout,
	}
	if e.pub == nil {
		e.pub = NewPublisher()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.deleteTimeout <= 0 {
		e.deleteTimeout = 30 * time.Second
	}
	e.halt, e.haltFn = context.WithCancel(context.Background())
	return e
}

// Publisher returns the publisher observers subscribe to.
func (e *Engine) Publisher() *Publisher {
	return e.pub
}

// State returns the current sync state.
func (e *Engine) State() State {
	return e.pub.Current()
}

// ResetState moves Success or Error back to Idle. It does nothing while a
// sync is running and reports whether the state changed.
func (e *Engine) ResetState() bool {
	return e.pub.reset()
}

// Wait stops DeleteOne from starting new detached remote deletes and
// blocks until the running ones have finished. Later DeleteOne calls still
// delete locally; their tombstones are pushed by the next FullSync.
func (e *Engine) Wait() {
	_ = e.Close(context.Background())
}

// Close is Wait bounded by ctx. When ctx ends first, running remote
// deletes are cancelled and awaited; their tombstones stay for the next
// FullSync. Once Close returns no detached work touches the local store,
// so it can be closed.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.detached.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		e.haltFn()
		<-done
		return ctx.Err()
	}
}

// track registers a detached delete. It returns false once the engine is
// closed.
func (e *Engine) track() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.detached.Add(1)
	return true
}

// run is one Bootstrap or FullSync invocation.
type run struct {
	op      string
	start   time.Time
	release lock.Release
	report  *Report
}

// begin checks the owner, takes the optional lock, then moves the
// publisher to Syncing. Nothing is published if any check fails.
func (e *Engine) begin(ctx context.Context, op, ownerID string) (*run, error) {
	if ownerID == "" {
		return nil, opError(op, ErrUnauthenticated, nil)
	}

	var release lock.Release
	if e.locker != nil {
		r, err := e.locker.Acquire(ctx, ownerID)
		if errors.Is(err, lock.ErrLocked) {
			return nil, opError(op, ErrSyncInProgress, err)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		release = r
	}

	if err := e.pub.tryBegin(); err != nil {
		if release != nil {
			_ = release(context.WithoutCancel(ctx))
		}
		return nil, opError(op, ErrSyncInProgress, nil)
	}

	return &run{
		op:      op,
		start:   e.now(),
		release: release,
		report:  &Report{Op: op, OwnerID: ownerID},
	}, nil
}

// finish publishes the outcome and releases the lock.
func (e *Engine) finish(ctx context.Context, r *run, err error, successMsg string) (*Report, error) {
	r.report.Duration = e.now().Sub(r.start)

	if r.release != nil {
		if rerr := r.release(context.WithoutCancel(ctx)); rerr != nil {
			e.log.Warn().Err(rerr).Str("op", r.op).Msg("failed to release sync lock")
		}
	}

	if err != nil {
		e.log.Error().Err(err).Str("op", r.op).Str("owner", r.report.OwnerID).Msg("sync failed")
		e.pub.fail(err.Error())
		return r.report, err
	}

	e.log.Info().
		Str("op", r.op).
		Str("owner", r.report.OwnerID).
		Int("pushed", r.report.Accounts.Pushed+r.report.Transactions.Pushed).
		Int("push_failed", r.report.PushFailures()).
		Int("inserted", r.report.Accounts.Inserted+r.report.Transactions.Inserted).
		Int("updated", r.report.Accounts.Updated+r.report.Transactions.Updated).
		Dur("duration", r.report.Duration).
		Msg(successMsg)
	e.pub.succeed(successMsg)
	return r.report, nil
}

// cancelled wraps a context error so callers can tell an aborted run from
// a failed one.
func cancelled(op string, err error) error {
	return fmt.Errorf("%s cancelled: %w", op, err)
}
