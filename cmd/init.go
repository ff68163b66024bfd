package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"starminder/config"
	"starminder/internal/secrets"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file with a fresh encryption key",
	Run:   runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) {
	path := cfgFile
	if path == "" {
		path = config.GetConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		log.Fatalf("Config file already exists at %s", path)
	}

	cfg := config.DefaultConfig()
	key, err := secrets.GenerateKey()
	if err != nil {
		log.Fatalf("Failed to generate encryption key: %v", err)
	}
	cfg.EncryptionKey = key

	if err := cfg.SaveToFile(path); err != nil {
		log.Fatalf("Failed to write config: %v", err)
	}
	fmt.Printf("✅ Wrote %s\n", path)
}
