// Command bt is the batabung device CLI: a local ledger of bank accounts
// and e-wallets that syncs with a remote backend when online.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/batabung/batabung/internal/config"
	"github.com/batabung/batabung/internal/logger"
	"github.com/batabung/batabung/internal/ui"
)

var (
	configPath string
	verbose    bool
	noColor    bool
	jsonOutput bool

	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bt",
	Short: "Offline-first ledger for bank accounts and e-wallets",
	Long: `bt keeps a ledger of your bank accounts and e-wallets on this device and
syncs it with the batabung backend whenever a connection is available.

Every change is saved locally first and pushed right away; changes made
offline wait until the next sync.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			ui.DisableColor()
		}
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		log = logger.NewWithOptions(logger.Options{Level: logLevel()})
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "ledger", Title: "Ledger:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./batabung.yaml or ~/.config/batabung/batabung.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON where supported")
}

// fatalf prints an error and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
