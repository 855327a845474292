package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/preflight/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("Preflight Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println("The encryption key is taken from the ENCRYPTION_KEY environment")
		fmt.Println("variable at startup and is not stored here.")
		fmt.Println()

		cfg.DataDir = prompt(scanner, "Data directory", cfg.DataDir)
		cfg.AdminAddr = prompt(scanner, "Admin listen address", cfg.AdminAddr)
		cfg.Sync.ServerURL = prompt(scanner, "Aggregator URL (optional)", cfg.Sync.ServerURL)
		cfg.LogLevel = prompt(scanner, "Log level", cfg.LogLevel)

		historyStr := prompt(scanner, "History length", strconv.Itoa(cfg.Model.HistoryLength))
		if n, err := strconv.Atoi(historyStr); err == nil && n > 0 {
			cfg.Model.HistoryLength = n
		}

		// Load applied ENCRYPTION_KEY from the environment; keep it out
		// of the saved file.
		if os.Getenv("ENCRYPTION_KEY") != "" {
			cfg.EncryptionKey = ""
		}

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

func prompt(scanner *bufio.Scanner, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	if !scanner.Scan() {
		return def
	}
	input := strings.TrimSpace(scanner.Text())
	if input == "" {
		return def
	}
	return input
}
