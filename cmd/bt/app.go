package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/batabung/batabung/internal/auth"
	"github.com/batabung/batabung/internal/config"
	"github.com/batabung/batabung/internal/ledger/book"
	"github.com/batabung/batabung/internal/ledger/db"
	"github.com/batabung/batabung/internal/ledger/lock"
	"github.com/batabung/batabung/internal/ledger/remote"
	"github.com/batabung/batabung/internal/ledger/schema"
	ledgersync "github.com/batabung/batabung/internal/ledger/sync"
)

// app is everything a command needs, wired from the loaded config.
type app struct {
	owner   string
	store   *db.DB
	gateway ledgersync.Gateway
	client  *remote.Gateway
	pub     *ledgersync.Publisher
	engine  *ledgersync.Engine
	book    *book.Book
	redis   *redis.Client
}

// openApp opens the local store and builds the engine. Without a
// configured backend every remote call fails and changes stay pending.
func openApp(ctx context.Context) (*app, error) {
	owner, err := auth.Resolve(cfg.Owner, cfg.Remote.Token)
	if err != nil {
		return nil, fmt.Errorf("not signed in: %w (set owner or remote.token)", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := store.InitSchemaContext(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}

	a := &app{owner: owner, store: store, pub: ledgersync.NewPublisher()}

	a.gateway = offlineGateway{}
	if cfg.Remote.URL != "" {
		client, err := remote.NewClient(remote.Config{
			BaseURL: cfg.Remote.URL,
			APIKey:  cfg.Remote.APIKey,
			Token:   cfg.Remote.Token,
			Timeout: cfg.Remote.Timeout,
			Logger:  &log,
		})
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.client = remote.NewGateway(client)
		a.gateway = a.client
	}

	var locker lock.Locker
	if cfg.Redis.Addr != "" {
		rdb, err := lock.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.redis = rdb
		locker = lock.NewRedis(rdb, lock.RedisConfig{TTL: cfg.Redis.LockTTL})
	}

	a.engine = ledgersync.New(store, a.gateway, &ledgersync.Config{
		Logger:        &log,
		Publisher:     a.pub,
		Locker:        locker,
		DeleteTimeout: cfg.Sync.DeleteTimeout,
	})
	a.book = book.New(owner, store, a.engine, &log)
	return a, nil
}

// mustOpenApp is openApp for commands that cannot continue without it.
func mustOpenApp(ctx context.Context) *app {
	a, err := openApp(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	return a
}

// requireRemote fails when no backend is configured.
func (a *app) requireRemote() {
	if a.client == nil {
		fatalf("no backend configured (set remote.url or %s_REMOTE_URL)", config.EnvPrefix)
	}
}

// Close waits for detached remote deletes, bounded so an unreachable
// backend cannot hang the command, then closes everything. Deletes still
// running at the deadline are halted first and retried on the next sync.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Sync.DeleteTimeout+time.Second)
	defer cancel()
	if err := a.engine.Close(ctx); err != nil {
		log.Warn().Msg("remote deletes did not finish; they will be retried on next sync")
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.store.Close()
}

var errNoBackend = errors.New("no backend configured")

// offlineGateway stands in for the backend when none is configured.
type offlineGateway struct{}

func (offlineGateway) FetchAccounts(context.Context, string) ([]*schema.Account, error) {
	return nil, errNoBackend
}

func (offlineGateway) FetchTransactions(context.Context, string) ([]*schema.Transaction, error) {
	return nil, errNoBackend
}

func (offlineGateway) UpsertAccount(context.Context, *schema.Account) error { return errNoBackend }

func (offlineGateway) UpsertTransaction(context.Context, *schema.Transaction) error {
	return errNoBackend
}

func (offlineGateway) DeleteAccount(context.Context, string) error { return errNoBackend }

func (offlineGateway) DeleteTransaction(context.Context, string) error { return errNoBackend }

func (offlineGateway) DeleteTransactionsByAccount(context.Context, string) error {
	return errNoBackend
}
