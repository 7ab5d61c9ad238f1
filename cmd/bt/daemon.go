package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/batabung/batabung/internal/ledger/daemon"
	"github.com/batabung/batabung/internal/ledger/dashboard"
	ledgersync "github.com/batabung/batabung/internal/ledger/sync"
	"github.com/batabung/batabung/internal/logger"
	"github.com/batabung/batabung/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Sync in the background",
	Long: `Run the background sync loop in the foreground until interrupted.

The daemon runs a full sync every sync.interval while the backend is
reachable, retrying failures with exponential backoff. On a device without
local accounts the first run downloads the remote ledger instead.

With --inbox (or sync.watch_inbox), JSON record files dropped into
<data_dir>/inbox/accounts and <data_dir>/inbox/transactions are imported
and pushed as they arrive.

Logs go to stderr and, when log.file is set, to a rotating log file.`,
	Run: func(cmd *cobra.Command, args []string) {
		watchInbox, _ := cmd.Flags().GetBool("inbox")
		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		runDaemon(watchInbox || cfg.Sync.WatchInbox, withDashboard, cfg.Dashboard.Addr)
	},
}

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Run the daemon with a live WebSocket dashboard",
	Long: `Run the background sync loop with a WebSocket dashboard attached.

Clients connected to /ws receive a sync_state message for every state
change, a sync_report after each run and the current record counts.
GET /state returns the current state as JSON.

Example:
  bt dashboard --addr 127.0.0.1:9000
  websocat ws://127.0.0.1:9000/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Dashboard.Addr
		}
		runDaemon(cfg.Sync.WatchInbox, true, addr)
	},
}

func runDaemon(watchInbox, withDashboard bool, dashboardAddr string) {
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = filepath.Join(cfg.DataDir, "daemon.log")
	}
	log = logger.NewWithOptions(logger.Options{
		Level:      logLevel(),
		File:       logFile,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, cancel := signalContext()
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a := mustOpenApp(ctx)
	defer a.Close()
	a.requireRemote()

	var (
		server  *dashboard.Server
		handler *dashboard.Handler
	)
	if withDashboard {
		dlog := log.With().Str("component", "dashboard").Logger()
		server = dashboard.NewServer(a.pub, &dashboard.Config{Addr: dashboardAddr, Logger: &dlog})
		if err := server.Start(); err != nil {
			fatalf("failed to start dashboard: %v", err)
		}
		handler = dashboard.NewHandler(server, a.pub, a.store, a.owner, &dlog)
		go handler.Watch(ctx)
	}

	slog := log.With().Str("component", "scheduler").Logger()
	scheduler := daemon.NewScheduler(a.owner, a.engine, a.client, a.store, daemon.SchedulerConfig{
		Interval:    cfg.Sync.Interval,
		MinBackoff:  cfg.Sync.MinBackoff,
		MaxBackoff:  cfg.Sync.MaxBackoff,
		MaxAttempts: cfg.Sync.MaxAttempts,
		ResetAfter:  cfg.Sync.ResetAfter,
		OnRun: func(report *ledgersync.Report, err error) {
			if handler != nil {
				handler.OnReport(report, err)
			}
		},
		Logger: &slog,
	})

	var inbox *daemon.Inbox
	if watchInbox {
		ilog := log.With().Str("component", "inbox").Logger()
		inbox = daemon.NewInbox(cfg.InboxDir(), a.owner, a.store, a.engine, &ilog)
	}

	dlog := log.With().Str("component", "daemon").Logger()
	d, err := daemon.New(scheduler, inbox, &daemon.Config{Logger: &dlog})
	if err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("%s Syncing %s with %s every %s\n", ui.RenderAccent("🔄"), a.owner, cfg.Remote.URL, cfg.Sync.Interval)
	if inbox != nil {
		fmt.Printf("   Inbox:     %s\n", cfg.InboxDir())
	}
	if server != nil {
		fmt.Printf("   Dashboard: http://%s (ws://%s/ws)\n", server.Addr(), server.Addr())
	}
	fmt.Printf("   Log:       %s\n", logFile)
	fmt.Println("\nPress Ctrl+C to stop...")

	if err := d.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	if server != nil {
		if err := server.Stop(); err != nil {
			log.Error().Err(err).Msg("dashboard shutdown failed")
		}
	}
	fmt.Println("Stopped.")
}

func logLevel() string {
	if verbose {
		return zerolog.LevelDebugValue
	}
	return cfg.Log.Level
}

func init() {
	daemonCmd.Flags().Bool("inbox", false, "import record files dropped into the inbox")
	daemonCmd.Flags().Bool("dashboard", false, "also serve the WebSocket dashboard")
	dashboardCmd.Flags().String("addr", "", "listen address (default dashboard.addr)")

	rootCmd.AddCommand(daemonCmd, dashboardCmd)
}
