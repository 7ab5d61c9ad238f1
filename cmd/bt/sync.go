package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/batabung/batabung/internal/ledger/schema"
	ledgersync "github.com/batabung/batabung/internal/ledger/sync"
	"github.com/batabung/batabung/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push local changes and pull remote ones",
	Long: `Run a full sync with the backend.

Pending local changes and owed deletes are pushed first, then the remote
ledger is pulled. For each record the copy with the later update wins.
Records that fail to push stay pending and are retried next time.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		a := mustOpenApp(ctx)
		defer a.Close()
		a.requireRemote()

		if err := a.client.Ping(ctx); err != nil {
			fatalf("backend unreachable: %v", err)
		}
		report, err := a.engine.FullSync(ctx, a.owner)
		printReport(report, err)
	},
}

var syncBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Replace the local ledger with the remote one",
	Long: `Download the whole ledger from the backend and replace the local copy.

Use this on a new device. Local changes that were never pushed are lost.
Nothing is changed if the download fails.`,
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")

		ctx, cancel := signalContext()
		defer cancel()
		a := mustOpenApp(ctx)
		defer a.Close()
		a.requireRemote()

		counts, err := a.store.Counts(ctx, a.owner)
		if err != nil {
			fatalf("%v", err)
		}
		if pending := counts.Pending(); pending > 0 && !yes {
			question := fmt.Sprintf("%d local change(s) have not been pushed and will be lost. Continue?", pending)
			if !confirm(question) {
				fmt.Println("Cancelled. Run 'bt sync' first, or pass --yes.")
				return
			}
		}

		report, err := a.engine.Bootstrap(ctx, a.owner)
		printReport(report, err)
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what is waiting to sync",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		a := mustOpenApp(ctx)
		defer a.Close()

		counts, err := a.store.Counts(ctx, a.owner)
		if err != nil {
			fatalf("%v", err)
		}

		online := false
		if a.client != nil {
			online = a.client.Ping(ctx) == nil
		}

		if jsonOutput {
			printJSON(map[string]any{
				"owner":   a.owner,
				"backend": cfg.Remote.URL,
				"online":  online,
				"counts":  counts,
			})
			return
		}

		fmt.Printf("\n%s\n", ui.RenderBold("Sync Status"))
		fmt.Printf("   Owner:   %s\n", a.owner)
		switch {
		case a.client == nil:
			fmt.Printf("   Backend: %s\n", ui.RenderWarn("not configured"))
		case online:
			fmt.Printf("   Backend: %s %s\n", cfg.Remote.URL, ui.RenderPass("(online)"))
		default:
			fmt.Printf("   Backend: %s %s\n", cfg.Remote.URL, ui.RenderFail("(unreachable)"))
		}
		fmt.Printf("   Ledger:  %s\n\n", cfg.DBPath())

		rows := [][]string{}
		for _, kind := range []struct {
			name   string
			counts map[schema.SyncStatus]int
		}{
			{"accounts", counts.Accounts},
			{"transactions", counts.Transactions},
		} {
			rows = append(rows, []string{
				kind.name,
				fmt.Sprint(kind.counts[schema.StatusSynced]),
				fmt.Sprint(kind.counts[schema.StatusPending]),
			})
		}
		ui.PrintTable(os.Stdout, []string{"", "SYNCED", "PENDING"}, rows, "")
		if counts.Tombstones > 0 {
			fmt.Printf("\n%s %d delete(s) waiting for the backend\n", ui.RenderWarn("⚠"), counts.Tombstones)
		}
		if counts.Pending() == 0 {
			fmt.Printf("\n%s Everything is synced\n", ui.RenderPass("✓"))
		}
	},
}

var syncResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Mark every local record pending so the next sync pushes it again",
	Long: `Queue the whole local ledger for upload again.

Use this after the backend lost data. Nothing is deleted; the next sync
pushes every record and the backend keeps whichever copy is newer.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		a := mustOpenApp(ctx)
		defer a.Close()

		accounts, err := a.store.ListAccounts(ctx, a.owner)
		if err != nil {
			fatalf("%v", err)
		}
		for _, acc := range accounts {
			if err := a.store.UpdateAccountStatus(ctx, acc.ID, schema.StatusPending); err != nil {
				fatalf("%v", err)
			}
		}
		txs, err := a.store.ListTransactions(ctx, a.owner)
		if err != nil {
			fatalf("%v", err)
		}
		for _, tx := range txs {
			if err := a.store.UpdateTransactionStatus(ctx, tx.ID, schema.StatusPending); err != nil {
				fatalf("%v", err)
			}
		}
		fmt.Printf("%s Queued %d account(s) and %d transaction(s) for upload\n", ui.RenderPass("✓"), len(accounts), len(txs))
	},
}

// printReport prints the outcome of a sync run and exits 1 on failure.
func printReport(report *ledgersync.Report, err error) {
	if jsonOutput && report != nil {
		printJSON(report)
	}
	if err != nil {
		switch {
		case errors.Is(err, ledgersync.ErrSyncInProgress):
			fatalf("another sync is already running")
		case errors.Is(err, ledgersync.ErrUnauthenticated):
			fatalf("not signed in")
		}
		fatalf("%v", err)
	}
	if jsonOutput {
		return
	}

	msg := ledgersync.MsgSyncDone
	if report.Op == "bootstrap" {
		msg = ledgersync.MsgBootstrapDone
	}
	fmt.Printf("%s %s in %v\n", ui.RenderPass("✓"), msg, report.Duration.Round(time.Millisecond))
	rows := [][]string{}
	for _, e := range []struct {
		name string
		c    ledgersync.EntityCounts
	}{
		{"accounts", report.Accounts},
		{"transactions", report.Transactions},
	} {
		rows = append(rows, []string{
			e.name,
			fmt.Sprint(e.c.Pushed),
			fmt.Sprint(e.c.Deleted),
			fmt.Sprint(e.c.Inserted),
			fmt.Sprint(e.c.Updated),
			fmt.Sprint(e.c.Skipped + e.c.Orphaned),
		})
	}
	ui.PrintTable(os.Stdout, []string{"", "PUSHED", "DELETED", "NEW", "UPDATED", "SKIPPED"}, rows, "")
	if n := report.PushFailures(); n > 0 {
		fmt.Printf("%s %d change(s) could not be pushed and stay pending\n", ui.RenderWarn("⚠"), n)
	}
}

func init() {
	syncBootstrapCmd.Flags().BoolP("yes", "y", false, "discard unpushed local changes without asking")
	syncCmd.AddCommand(syncBootstrapCmd, syncStatusCmd, syncResetCmd)
	rootCmd.AddCommand(syncCmd)
}
