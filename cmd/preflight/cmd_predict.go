package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(predictCmd)
	predictCmd.Flags().Int64("at", 0, "query time in ms since epoch (default: now)")
	predictCmd.Flags().Bool("stats", false, "also print model statistics")
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Print the predicted next action",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		at, _ := cmd.Flags().GetInt64("at")
		withStats, _ := cmd.Flags().GetBool("stats")
		if at == 0 {
			at = time.Now().UnixMilli()
		}

		ctx := context.Background()
		client, err := newClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		defer client.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(client.Predict(at)); err != nil {
			return err
		}
		if withStats {
			if err := enc.Encode(client.Stats()); err != nil {
				return err
			}
		}
		return nil
	},
}
