package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncUploadCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Remote sync operations",
}

var syncUploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload the anonymized action histogram now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		ctx := context.Background()
		client, err := newClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		defer client.Close()

		if err := client.ForceUploadData(ctx); err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		fmt.Fprintln(os.Stdout, "Upload complete.")
		return nil
	},
}
