package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/batabung/batabung/internal/catalog"
	"github.com/batabung/batabung/internal/ledger/schema"
	"github.com/batabung/batabung/internal/ui"
)

var accountCmd = &cobra.Command{
	Use:     "account",
	Aliases: []string{"accounts", "acc"},
	GroupID: "ledger",
	Short:   "Manage bank accounts and e-wallets",
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an account",
	Long: `Add a bank account or e-wallet.

Pick a known institution with --institution to fill in the kind and the
notification source tag, or give --name and --kind yourself. Run without
flags in a terminal for an interactive form.

Examples:
  bt account add --institution BCA --alias payroll
  bt account add --name "Dompet" --kind e-wallet`,
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		alias, _ := cmd.Flags().GetString("alias")
		kind, _ := cmd.Flags().GetString("kind")
		source, _ := cmd.Flags().GetString("source")
		institution, _ := cmd.Flags().GetString("institution")

		cat := loadCatalog()
		if institution != "" {
			inst, ok := cat.Lookup(institution)
			if !ok {
				fatalf("unknown institution %q (see 'bt catalog')", institution)
			}
			name, kind = inst.Name, string(inst.Kind)
			if source == "" {
				source = inst.SourceTag
			}
		}

		if name == "" {
			if !ui.IsTerminal(os.Stdin) {
				fatalf("--name or --institution is required")
			}
			var err error
			name, alias, kind, source, err = accountForm(cat)
			if errors.Is(err, huh.ErrUserAborted) {
				return
			}
			if err != nil {
				fatalf("%v", err)
			}
		}

		acc := &schema.Account{
			Name:      strings.TrimSpace(name),
			Alias:     strings.TrimSpace(alias),
			Kind:      schema.AccountKind(kind),
			Active:    true,
			SourceTag: source,
		}

		ctx, cancel := signalContext()
		defer cancel()
		a := mustOpenApp(ctx)
		defer a.Close()

		if err := a.book.AddAccount(ctx, acc); err != nil {
			fatalf("%v", err)
		}
		printAccount(acc, "Added")
	},
}

// accountForm asks for the account fields interactively.
func accountForm(cat *catalog.Catalog) (name, alias, kind, source string, err error) {
	options := []huh.Option[string]{huh.NewOption("Other (type a name)", "")}
	for _, inst := range cat.Institutions {
		options = append(options, huh.NewOption(fmt.Sprintf("%s (%s)", inst.Name, inst.Kind), inst.Name))
	}

	var picked string
	kind = string(schema.KindBank)
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Institution").
				Options(options...).
				Value(&picked),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Value(&name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("name is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Kind").
				Options(
					huh.NewOption("Bank", string(schema.KindBank)),
					huh.NewOption("E-wallet", string(schema.KindEWallet)),
				).
				Value(&kind),
		).WithHideFunc(func() bool { return picked != "" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Alias").
				Description("Optional, e.g. payroll or savings").
				Value(&alias),
		),
	).Run()
	if err != nil {
		return "", "", "", "", err
	}
	if inst, ok := cat.Lookup(picked); ok {
		name, kind, source = inst.Name, string(inst.Kind), inst.SourceTag
	}
	return name, alias, kind, source, nil
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts with their balances",
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")

		ctx, cancel := signalContext()
		defer cancel()
		a := mustOpenApp(ctx)
		defer a.Close()

		accounts, err := a.book.Accounts(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		if !all {
			active := accounts[:0]
			for _, acc := range accounts {
				if acc.Active {
					active = append(active, acc)
				}
			}
			accounts = active
		}

		if jsonOutput {
			printJSON(accounts)
			return
		}

		rows := make([][]string, 0, len(accounts))
		for _, acc := range accounts {
			bal, err := a.book.Balance(ctx, acc.ID)
			if err != nil {
				fatalf("%v", err)
			}
			state := "active"
			if !acc.Active {
				state = ui.RenderMuted("inactive")
			}
			rows = append(rows, []string{
				shortID(acc.ID), acc.DisplayName(), string(acc.Kind), state,
				ui.RenderSigned(bal), ui.RenderStatus(string(acc.SyncStatus)),
			})
		}
		ui.PrintTable(os.Stdout, []string{"ID", "NAME", "KIND", "STATE", "BALANCE", "SYNC"}, rows, "No accounts yet. Add one with 'bt account add'.")
	},
}

var accountEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit an account's name, alias or source tag",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		a := mustOpenApp(ctx)
		defer a.Close()

		acc, err := a.book.Account(ctx, resolveAccountID(ctx, a, args[0]))
		if err != nil {
			fatalf("%v", err)
		}

		changed := false
		for _, f := range []struct {
			flag  string
			field *string
		}{
			{"name", &acc.Name},
			{"alias", &acc.Alias},
			{"source", &acc.SourceTag},
		} {
			if cmd.Flags().Changed(f.flag) {
				v, _ := cmd.Flags().GetString(f.flag)
				*f.field = strings.TrimSpace(v)
				changed = true
			}
		}
		if cmd.Flags().Changed("kind") {
			v, _ := cmd.Flags().GetString("kind")
			acc.Kind = schema.AccountKind(v)
			changed = true
		}
		if !changed {
			fatalf("nothing to change (use --name, --alias, --kind or --source)")
		}

		if err := a.book.UpdateAccount(ctx, acc); err != nil {
			fatalf("%v", err)
		}
		printAccount(acc, "Updated")
	},
}

var accountToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Activate or deactivate an account",
	Long: `Flip an account between active and inactive. Inactive accounts keep
their transactions but are left out of the total balance.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		a := mustOpenApp(ctx)
		defer a.Close()

		acc, err := a.book.ToggleActive(ctx, resolveAccountID(ctx, a, args[0]))
		if err != nil {
			fatalf("%v", err)
		}
		state := ui.RenderPass("active")
		if !acc.Active {
			state = ui.RenderMuted("inactive")
		}
		fmt.Printf("%s %s is now %s\n", ui.RenderPass("✓"), acc.DisplayName(), state)
	},
}

var accountRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete an account and all of its transactions",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")

		ctx, cancel := signalContext()
		defer cancel()
		a := mustOpenApp(ctx)
		defer a.Close()

		acc, err := a.book.Account(ctx, resolveAccountID(ctx, a, args[0]))
		if err != nil {
			fatalf("%v", err)
		}
		if !yes && !confirm(fmt.Sprintf("Delete %s and all of its transactions?", acc.DisplayName())) {
			fmt.Println("Cancelled.")
			return
		}
		if err := a.book.DeleteAccount(ctx, acc.ID); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), acc.DisplayName())
	},
}

func printAccount(acc *schema.Account, verb string) {
	if jsonOutput {
		printJSON(acc)
		return
	}
	fmt.Printf("%s %s %s (%s)\n", ui.RenderPass("✓"), verb, ui.RenderBold(acc.DisplayName()), acc.Kind)
	fmt.Printf("   ID:   %s\n", acc.ID)
	fmt.Printf("   Sync: %s\n", ui.RenderStatus(string(acc.SyncStatus)))
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("encoding JSON: %v", err)
	}
}

// confirm asks a yes/no question. It answers no when stdin is not a terminal.
func confirm(question string) bool {
	if !ui.IsTerminal(os.Stdin) {
		return false
	}
	var ok bool
	if err := huh.NewConfirm().Title(question).Value(&ok).Run(); err != nil {
		return false
	}
	return ok
}

func loadCatalog() *catalog.Catalog {
	if cfg.Catalog == "" {
		return catalog.Default()
	}
	cat, err := catalog.Load(cfg.Catalog)
	if err != nil {
		fatalf("%v", err)
	}
	return cat
}

func init() {
	accountAddCmd.Flags().String("name", "", "account name")
	accountAddCmd.Flags().String("alias", "", "optional alias shown after the name")
	accountAddCmd.Flags().String("kind", string(schema.KindBank), "bank or e-wallet")
	accountAddCmd.Flags().String("source", "", "notification source tag")
	accountAddCmd.Flags().StringP("institution", "i", "", "known institution from 'bt catalog'")

	accountListCmd.Flags().BoolP("all", "a", false, "include inactive accounts")

	accountEditCmd.Flags().String("name", "", "new name")
	accountEditCmd.Flags().String("alias", "", "new alias (empty to clear)")
	accountEditCmd.Flags().String("kind", "", "bank or e-wallet")
	accountEditCmd.Flags().String("source", "", "new notification source tag")

	accountRmCmd.Flags().BoolP("yes", "y", false, "skip confirmation")

	accountCmd.AddCommand(accountAddCmd, accountListCmd, accountEditCmd, accountToggleCmd, accountRmCmd)
	rootCmd.AddCommand(accountCmd)
}
