package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(trackCmd)
	trackCmd.Flags().String("component", "", "component id to bind the action to (required)")
	trackCmd.Flags().String("type", "page", "component type used when the component is new")
	_ = trackCmd.MarkFlagRequired("component")
}

var trackCmd = &cobra.Command{
	Use:   "track <action>",
	Short: "Record one interaction (testing tool; stop the daemon first)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		component, _ := cmd.Flags().GetString("component")
		componentType, _ := cmd.Flags().GetString("type")

		ctx := context.Background()
		client, err := newClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		defer client.Close()

		client.TrackComponent(component, componentType, nil)
		if err := client.AssociateActionWithComponent(args[0], component); err != nil {
			return err
		}
		client.TrackInteraction(ctx, args[0])
		fmt.Fprintf(os.Stdout, "Tracked %q on component %q.\n", args[0], component)
		return nil
	},
}
