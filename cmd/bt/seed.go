package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/batabung/batabung/internal/ledger/seed"
	"github.com/batabung/batabung/internal/ui"
)

var seedCmd = &cobra.Command{
	Use:     "seed",
	GroupID: "advanced",
	Short:   "Fill the ledger with generated demo data",
	Long: `Generate accounts and transactions for demos and testing.

Accounts are named after institutions from the catalog. The same --seed
always produces the same ledger.

With --stress, concurrent readers query balances for the given duration
and latency statistics are printed. Combine with a running daemon to check
reads while a sync is in progress.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := seed.DefaultOptions("")
		opts.Accounts, _ = cmd.Flags().GetInt("accounts")
		opts.TransactionsPerAccount, _ = cmd.Flags().GetInt("transactions")
		opts.Days, _ = cmd.Flags().GetInt("days")
		opts.SyncedPct, _ = cmd.Flags().GetFloat64("synced")
		opts.Seed, _ = cmd.Flags().GetInt64("seed")
		stress, _ := cmd.Flags().GetDuration("stress")
		readers, _ := cmd.Flags().GetInt("readers")

		ctx, cancel := signalContext()
		defer cancel()
		a := mustOpenApp(ctx)
		defer a.Close()

		opts.Owner = a.owner
		opts.Catalog = loadCatalog()
		l, err := seed.Generate(opts)
		if err != nil {
			fatalf("%v", err)
		}

		start := time.Now()
		if err := seed.Populate(ctx, a.store, l); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Generated %d account(s) and %d transaction(s) in %v\n",
			ui.RenderPass("✓"), len(l.Accounts), len(l.Transactions), time.Since(start).Round(time.Millisecond))

		if stress <= 0 {
			return
		}
		fmt.Printf("%s Running %d readers for %v...\n", ui.RenderAccent("🔄"), readers, stress)
		sctx, scancel := context.WithTimeout(ctx, stress)
		defer scancel()
		stats, err := seed.Stress(sctx, a.store, a.owner, readers)
		stats.Print(os.Stdout)
		if err != nil {
			fatalf("%v", err)
		}
	},
}

func init() {
	seedCmd.Flags().Int("accounts", 4, "number of accounts")
	seedCmd.Flags().Int("transactions", 25, "transactions per account")
	seedCmd.Flags().Int("days", 60, "spread transactions over this many days")
	seedCmd.Flags().Float64("synced", 0, "fraction of records marked already synced")
	seedCmd.Flags().Int64("seed", 42, "random seed")
	seedCmd.Flags().Duration("stress", 0, "run concurrent readers for this long")
	seedCmd.Flags().Int("readers", 16, "concurrent readers for --stress")
	rootCmd.AddCommand(seedCmd)
}
