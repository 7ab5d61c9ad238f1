package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/batabung/batabung/internal/ledger/schema"
	"github.com/batabung/batabung/internal/ui"
)

var catalogCmd = &cobra.Command{
	Use:     "catalog",
	GroupID: "ledger",
	Short:   "List known banks and e-wallets",
	Long: `List the institutions 'bt account add --institution' understands.

Set catalog in the config to a TOML file to replace the built-in list.`,
	Run: func(cmd *cobra.Command, args []string) {
		kind, _ := cmd.Flags().GetString("kind")

		cat := loadCatalog()
		institutions := cat.Institutions
		if kind != "" {
			k := schema.AccountKind(kind)
			if !k.Valid() {
				fatalf("kind must be bank or e-wallet (got %q)", kind)
			}
			institutions = cat.ByKind(k)
		}

		if jsonOutput {
			printJSON(institutions)
			return
		}
		rows := make([][]string, 0, len(institutions))
		for _, inst := range institutions {
			rows = append(rows, []string{inst.Name, string(inst.Kind), ui.RenderMuted(inst.SourceTag)})
		}
		ui.PrintTable(os.Stdout, []string{"NAME", "KIND", "SOURCE"}, rows, "No institutions.")
	},
}

func init() {
	catalogCmd.Flags().String("kind", "", "only bank or e-wallet")
	rootCmd.AddCommand(catalogCmd)
}
