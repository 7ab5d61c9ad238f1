package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/batabung/batabung/internal/ledger/migrate"
	"github.com/batabung/batabung/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "advanced",
	Short:   "Export the ledger as JSONL",
	Long: `Write every account and transaction as one JSON object per line.
Without a file the export goes to stdout.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		a := mustOpenApp(ctx)
		defer a.Close()

		if len(args) == 0 {
			if _, err := migrate.Export(ctx, a.store, a.owner, os.Stdout); err != nil {
				fatalf("%v", err)
			}
			return
		}
		result, err := migrate.ExportFile(ctx, a.store, a.owner, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Fprintf(os.Stderr, "%s Exported %d account(s) and %d transaction(s) to %s\n",
			ui.RenderPass("✓"), result.Accounts, result.Transactions, args[0])
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "advanced",
	Short:   "Import a JSONL export",
	Long: `Load accounts and transactions from a JSONL export.

Imported records belong to the signed-in owner and are queued for upload.
A record that already exists is only replaced when the imported copy is
newer. A backup of the current ledger is written first unless --no-backup
is given.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		noBackup, _ := cmd.Flags().GetBool("no-backup")

		ctx, cancel := signalContext()
		defer cancel()
		a := mustOpenApp(ctx)
		defer a.Close()

		opts := migrate.ImportOptions{Owner: a.owner, DryRun: dryRun}
		if !noBackup {
			opts.BackupDir = cfg.DataDir
		}
		result, err := migrate.ImportFile(ctx, args[0], a.store, opts)
		if err != nil {
			fatalf("%v", err)
		}

		if jsonOutput {
			printJSON(result)
			return
		}
		if dryRun {
			fmt.Printf("%s Dry run, nothing written\n", ui.RenderWarn("⚠"))
		}
		fmt.Printf("%s Imported %d new, %d updated, %d skipped\n", ui.RenderPass("✓"), result.Inserted, result.Updated, result.Skipped)
		if result.BackupCreated != "" {
			fmt.Printf("   Backup: %s\n", result.BackupCreated)
		}
		for _, msg := range result.Errors {
			fmt.Printf("   %s %s\n", ui.RenderFail("✗"), msg)
		}
		if !dryRun && result.Inserted+result.Updated > 0 {
			fmt.Println("   Run 'bt sync' to upload the imported records.")
		}
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "show what would be imported")
	importCmd.Flags().Bool("no-backup", false, "skip the backup of the current ledger")
	rootCmd.AddCommand(exportCmd, importCmd)
}
