package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/batabung/batabung/internal/ledger/schema"
	"github.com/batabung/batabung/internal/ui"
)

var txCmd = &cobra.Command{
	Use:     "tx",
	Aliases: []string{"transaction", "transactions"},
	GroupID: "ledger",
	Short:   "Record and list transactions",
}

var txAddCmd = &cobra.Command{
	Use:   "add <in|out> <amount>",
	Short: "Record money in or out of an account",
	Long: `Record a transaction. Amounts are whole rupiah; dots and commas are
ignored, so 1.500.000 and 1500000 are the same.

--at accepts a date (2024-03-01), a date and time, or plain English such
as "yesterday" or "last friday 7pm".

Examples:
  bt tx add out 25000 --account bca --category food
  bt tx add in 5.000.000 -a bca -c salary --at "last friday"`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		accountArg, _ := cmd.Flags().GetString("account")
		category, _ := cmd.Flags().GetString("category")
		note, _ := cmd.Flags().GetString("note")
		at, _ := cmd.Flags().GetString("at")

		dir := schema.Direction(strings.ToLower(args[0]))
		if !dir.Valid() {
			fatalf("direction must be 'in' or 'out' (got %q)", args[0])
		}
		amount, err := parseAmount(args[1])
		if err != nil {
			fatalf("%v", err)
		}
		occurred := time.Now()
		if at != "" {
			if occurred, err = parseWhen(at, time.Now()); err != nil {
				fatalf("%v", err)
			}
		}
		if accountArg == "" {
			fatalf("--account is required")
		}

		ctx, cancel := signalContext()
		defer cancel()
		a := mustOpenApp(ctx)
		defer a.Close()

		tx := &schema.Transaction{
			AccountID:  resolveAccountID(ctx, a, accountArg),
			Direction:  dir,
			Amount:     amount,
			Category:   strings.TrimSpace(category),
			Note:       strings.TrimSpace(note),
			OccurredAt: occurred.UnixMilli(),
		}
		if err := a.book.AddTransaction(ctx, tx); err != nil {
			fatalf("%v", err)
		}

		if jsonOutput {
			printJSON(tx)
			return
		}
		bal, err := a.book.Balance(ctx, tx.AccountID)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Recorded %s on %s\n", ui.RenderPass("✓"), ui.RenderSigned(tx.Signed()), schema.FromMillis(tx.OccurredAt).Format("2006-01-02 15:04"))
		fmt.Printf("   ID:      %s\n", tx.ID)
		fmt.Printf("   Balance: %s\n", ui.RenderSigned(bal))
	},
}

// parseAmount accepts whole numbers with optional thousands separators.
func parseAmount(s string) (int64, error) {
	clean := strings.NewReplacer(".", "", ",", "", "_", "").Replace(strings.TrimSpace(s))
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w (got %d)", schema.ErrInvalidAmount, n)
	}
	return n, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	time.RFC3339,
}

// parseWhen parses a fixed layout first, then natural language relative
// to base.
func parseWhen(s string, base time.Time) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return r.Time, nil
}

var txListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transactions, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		accountArg, _ := cmd.Flags().GetString("account")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, cancel := signalContext()
		defer cancel()
		a := mustOpenApp(ctx)
		defer a.Close()

		accountID := ""
		if accountArg != "" {
			accountID = resolveAccountID(ctx, a, accountArg)
		}
		txs, err := a.book.Transactions(ctx, accountID)
		if err != nil {
			fatalf("%v", err)
		}
		if limit > 0 && len(txs) > limit {
			txs = txs[:limit]
		}

		if jsonOutput {
			printJSON(txs)
			return
		}

		accounts, err := a.book.Accounts(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		names := make(map[string]string, len(accounts))
		for _, acc := range accounts {
			names[acc.ID] = acc.DisplayName()
		}

		rows := make([][]string, 0, len(txs))
		for _, tx := range txs {
			rows = append(rows, []string{
				shortID(tx.ID),
				schema.FromMillis(tx.OccurredAt).Format("2006-01-02 15:04"),
				names[tx.AccountID],
				tx.Category,
				ui.RenderSigned(tx.Signed()),
				ui.RenderStatus(string(tx.SyncStatus)),
			})
		}
		ui.PrintTable(os.Stdout, []string{"ID", "WHEN", "ACCOUNT", "CATEGORY", "AMOUNT", "SYNC"}, rows, "No transactions.")
	},
}

var txRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a transaction",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		a := mustOpenApp(ctx)
		defer a.Close()

		id := resolveTransactionID(ctx, a, args[0])
		if err := a.book.DeleteTransaction(ctx, id); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Deleted transaction %s\n", ui.RenderPass("✓"), shortID(id))
	},
}

func init() {
	txAddCmd.Flags().StringP("account", "a", "", "account id or id prefix")
	txAddCmd.Flags().StringP("category", "c", "", "category, e.g. food")
	txAddCmd.Flags().StringP("note", "n", "", "free-form note")
	txAddCmd.Flags().String("at", "", "when it happened (default now)")

	txListCmd.Flags().StringP("account", "a", "", "only this account")
	txListCmd.Flags().IntP("limit", "l", 50, "maximum rows (0 for all)")

	txCmd.AddCommand(txAddCmd, txListCmd, txRmCmd)
	rootCmd.AddCommand(txCmd)
}
