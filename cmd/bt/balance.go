package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/batabung/batabung/internal/ledger/book"
	"github.com/batabung/batabung/internal/ledger/schema"
	"github.com/batabung/batabung/internal/ui"
)

var balanceCmd = &cobra.Command{
	Use:     "balance [account]",
	GroupID: "ledger",
	Short:   "Show balances, or the totals of one account",
	Long: `Without an argument, show every active account's balance and the total.

With an account, show money in and out over a period and where it went.
--since takes the same formats as 'bt tx add --at'.

Examples:
  bt balance
  bt balance bca --since "1 month ago"`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		since, _ := cmd.Flags().GetString("since")

		ctx, cancel := signalContext()
		defer cancel()
		a := mustOpenApp(ctx)
		defer a.Close()

		if len(args) == 0 {
			accounts, err := a.book.Accounts(ctx)
			if err != nil {
				fatalf("%v", err)
			}
			total, err := a.book.TotalBalance(ctx)
			if err != nil {
				fatalf("%v", err)
			}

			type line struct {
				ID      string `json:"id"`
				Name    string `json:"name"`
				Balance int64  `json:"balance"`
			}
			var lines []line
			rows := [][]string{}
			for _, acc := range accounts {
				if !acc.Active {
					continue
				}
				bal, err := a.book.Balance(ctx, acc.ID)
				if err != nil {
					fatalf("%v", err)
				}
				lines = append(lines, line{acc.ID, acc.DisplayName(), bal})
				rows = append(rows, []string{acc.DisplayName(), string(acc.Kind), ui.RenderSigned(bal)})
			}
			if jsonOutput {
				printJSON(map[string]any{"accounts": lines, "total": total})
				return
			}
			ui.PrintTable(os.Stdout, []string{"ACCOUNT", "KIND", "BALANCE"}, rows, "No active accounts.")
			fmt.Printf("\n%s %s\n", ui.RenderBold("Total:"), ui.RenderSigned(total))
			return
		}

		acc, err := a.book.Account(ctx, resolveAccountID(ctx, a, args[0]))
		if err != nil {
			fatalf("%v", err)
		}
		var from int64
		if since != "" {
			t, err := parseWhen(since, time.Now())
			if err != nil {
				fatalf("%v", err)
			}
			from = t.UnixMilli()
		}
		totals, err := a.book.Totals(ctx, acc.ID, from, 0)
		if err != nil {
			fatalf("%v", err)
		}
		spending, err := a.book.CategoryTotals(ctx, acc.ID, schema.DirectionOut)
		if err != nil {
			fatalf("%v", err)
		}
		bal, err := a.book.Balance(ctx, acc.ID)
		if err != nil {
			fatalf("%v", err)
		}

		if jsonOutput {
			printJSON(struct {
				Account  *schema.Account `json:"account"`
				Balance  int64           `json:"balance"`
				Totals   book.Totals     `json:"totals"`
				Spending any             `json:"spending"`
			}{acc, bal, totals, spending})
			return
		}

		fmt.Printf("\n%s\n", ui.RenderBold(acc.DisplayName()))
		fmt.Printf("   Balance: %s\n", ui.RenderSigned(bal))
		fmt.Printf("   In:      %s\n", ui.FormatAmount(totals.In))
		fmt.Printf("   Out:     %s\n", ui.FormatAmount(totals.Out))
		fmt.Printf("   Net:     %s\n\n", ui.RenderSigned(totals.Net()))

		rows := make([][]string, 0, len(spending))
		for _, ct := range spending {
			category := ct.Category
			if category == "" {
				category = ui.RenderMuted("(none)")
			}
			rows = append(rows, []string{category, ui.FormatAmount(ct.Total)})
		}
		ui.PrintTable(os.Stdout, []string{"CATEGORY", "SPENT"}, rows, "No spending recorded.")
	},
}

func init() {
	balanceCmd.Flags().String("since", "", "only count transactions from this date")
	rootCmd.AddCommand(balanceCmd)
}
