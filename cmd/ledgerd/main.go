// Command ledgerd is the reference batabung backend: the table API the
// device syncs with, backed by Postgres.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/batabung/batabung/internal/auth"
	"github.com/batabung/batabung/internal/config"
	"github.com/batabung/batabung/internal/ledger/backend"
	"github.com/batabung/batabung/internal/logger"
)

var (
	configPath string
	verbose    bool

	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:          "ledgerd",
	Short:        "Reference backend for batabung ledger sync",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		level := cfg.Log.Level
		if verbose {
			level = zerolog.LevelDebugValue
		}
		log = logger.NewWithOptions(logger.Options{
			Level:      level,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the table API",
	Long: `Serve /rest/v1/accounts and /rest/v1/transactions over HTTP.

Every request needs a bearer token signed with backend.jwt_secret; its
subject is the owner, and every query is restricted to that owner's rows.
The schema is created on startup if missing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Backend.Addr
		}
		if cfg.Backend.JWTSecret == "" {
			return fmt.Errorf("backend.jwt_secret is required (or %s_BACKEND_JWT_SECRET)", config.EnvPrefix)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		db, err := backend.OpenPostgres(ctx, backend.DBConfig{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Name:            cfg.Database.Name,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		defer db.Close()

		store := backend.NewStore(db)
		if err := store.Migrate(ctx); err != nil {
			return err
		}

		server := backend.NewServer(store, backend.Config{
			Addr:           addr,
			Secret:         []byte(cfg.Backend.JWTSecret),
			AllowedOrigins: cfg.Backend.Origins,
			Logger:         &log,
		})
		log.Info().Str("addr", addr).Msg("ledgerd starting")
		return server.Start(ctx)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for an owner",
	Long: `Print a token for --owner signed with backend.jwt_secret. Put it in the
device's remote.token. Intended for development setups.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if cfg.Backend.JWTSecret == "" {
			return fmt.Errorf("backend.jwt_secret is required (or %s_BACKEND_JWT_SECRET)", config.EnvPrefix)
		}
		token, err := auth.IssueToken([]byte(cfg.Backend.JWTSecret), owner, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	serveCmd.Flags().String("addr", "", "listen address (default backend.addr)")

	tokenCmd.Flags().String("owner", "", "owner id (token subject)")
	tokenCmd.Flags().Duration("ttl", 30*24*time.Hour, "token lifetime, 0 for no expiry")
	_ = tokenCmd.MarkFlagRequired("owner")

	rootCmd.AddCommand(serveCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
