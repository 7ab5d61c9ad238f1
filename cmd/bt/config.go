package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/batabung/batabung/internal/config"
	"github.com/batabung/batabung/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Create or inspect the configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file with the defaults",
	Long: `Write a configuration file containing every setting with its default.
The default path is ~/.config/batabung/batabung.yaml.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				fatalf("%v", err)
			}
			path = filepath.Join(home, ".config", "batabung", config.FileName+".yaml")
		}

		if err := config.WriteTemplate(path, config.Default(), force); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		fmt.Println("   Set remote.url and remote.token, then run 'bt sync bootstrap'.")
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file, .env and
BATABUNG_* environment variables are applied. Secrets are masked.`,
	Run: func(cmd *cobra.Command, args []string) {
		shown := *cfg
		shown.Remote.Token = mask(shown.Remote.Token)
		shown.Remote.APIKey = mask(shown.Remote.APIKey)
		shown.Redis.Password = mask(shown.Redis.Password)
		shown.Backend.JWTSecret = mask(shown.Backend.JWTSecret)
		shown.Database.Password = mask(shown.Database.Password)

		if jsonOutput {
			printJSON(shown)
			return
		}
		if f := cfg.File(); f != "" {
			fmt.Printf("# from %s\n", f)
		} else {
			fmt.Println("# no config file found, showing defaults and environment")
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(shown); err != nil {
			fatalf("%v", err)
		}
		_ = enc.Close()
	},
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
