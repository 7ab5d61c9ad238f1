// Package daemon keeps a device's ledger in sync in the background.
//
// The daemon:
//  1. Runs the scheduler: a sync on start, every interval, and on Trigger,
//     with connectivity gating and exponential backoff
//  2. Watches the inbox for record files and imports them
//  3. Shuts down gracefully when its context is cancelled
package daemon

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/batabung/batabung/internal/logger"
)

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long a file must be quiet before it is
	// imported. This batches the create and write events of one copy.
	DebounceInterval time.Duration
	Logger           *zerolog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 200 * time.Millisecond,
	}
}

// queued is a pending inbox file.
type queued struct {
	event FileEvent
	at    time.Time
}

// Daemon runs the scheduler and the inbox watcher.
type Daemon struct {
	scheduler *Scheduler
	inbox     *Inbox
	config    *Config
	log       zerolog.Logger

	watcher       *FileWatcher
	changeQueue   map[string]queued
	changeQueueMu gosync.Mutex

	wg gosync.WaitGroup
}

// New creates a daemon. inbox may be nil to disable file imports.
func New(scheduler *Scheduler, inbox *Inbox, config *Config) (*Daemon, error) {
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}
	return &Daemon{
		scheduler:   scheduler,
		inbox:       inbox,
		config:      config,
		log:         logger.OrDefault(config.Logger, "daemon"),
		changeQueue: make(map[string]queued),
	}, nil
}

// Scheduler returns the daemon's scheduler, e.g. to Trigger a run.
func (d *Daemon) Scheduler() *Scheduler {
	return d.scheduler
}

// Start runs until ctx is cancelled, then waits for background work.
func (d *Daemon) Start(ctx context.Context) error {
	d.log.Info().Msg("starting daemon")

	if d.inbox != nil {
		if err := d.startInbox(ctx); err != nil {
			return err
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.scheduler.Run(ctx)
	}()

	<-ctx.Done()
	d.log.Info().Msg("shutdown signal received")
	return d.stop()
}

func (d *Daemon) startInbox(ctx context.Context) error {
	if err := d.inbox.Ensure(); err != nil {
		return err
	}
	if n, err := d.inbox.Scan(ctx); err != nil {
		return fmt.Errorf("initial inbox scan failed: %w", err)
	} else if n > 0 {
		d.log.Info().Int("files", n).Msg("imported waiting inbox files")
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Start(d.inbox.AccountsDir(), d.inbox.TransactionsDir()); err != nil {
		return err
	}
	d.watcher = watcher
	d.log.Info().Str("accounts", d.inbox.AccountsDir()).Str("transactions", d.inbox.TransactionsDir()).Msg("watching inbox")

	d.wg.Add(2)
	go d.watchFileEvents(ctx)
	go d.processChangeQueue(ctx)
	return nil
}

func (d *Daemon) stop() error {
	var err error
	if d.watcher != nil {
		if err = d.watcher.Stop(); err != nil {
			d.log.Error().Err(err).Msg("error closing watcher")
		}
	}
	d.wg.Wait()
	d.log.Info().Msg("daemon stopped")
	return err
}

func (d *Daemon) watchFileEvents(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.log.Debug().Str("op", ev.Op.String()).Str("path", ev.Path).Msg("inbox event")
			d.queueChange(ev)
		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (d *Daemon) queueChange(ev FileEvent) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	d.changeQueue[ev.Path] = queued{event: ev, at: time.Now()}
}

func (d *Daemon) processChangeQueue(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.processPendingChanges(ctx)
		}
	}
}

// processPendingChanges imports files that have been quiet long enough.
// Accounts go first so a transaction dropped together with its account
// finds it.
func (d *Daemon) processPendingChanges(ctx context.Context) {
	d.changeQueueMu.Lock()
	now := time.Now()
	var ready []FileEvent
	for path, q := range d.changeQueue {
		if now.Sub(q.at) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, q.event)
		delete(d.changeQueue, path)
	}
	d.changeQueueMu.Unlock()

	for _, typ := range []FileType{TypeAccount, TypeTransaction} {
		for _, ev := range ready {
			if ev.Type != typ {
				continue
			}
			if err := d.inbox.Process(ctx, ev); err != nil {
				d.log.Warn().Err(err).Str("path", ev.Path).Msg("inbox import failed")
			}
		}
	}
}
