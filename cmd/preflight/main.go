package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/preflight/internal/config"
	"github.com/user/preflight/pkg/preflight"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "preflight",
	Short:         "Predictive preloading daemon and tools",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath,
		"config",
		filepath.Join(os.Getenv("HOME"), ".preflight", "config.json"),
		"config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// newClient validates the file config and opens the library client.
func newClient(ctx context.Context, cfg *config.Config, opts ...preflight.Option) (*preflight.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return preflight.New(ctx, preflight.Config{
		DataDir:             cfg.DataDir,
		ServerURL:           cfg.Sync.ServerURL,
		EncryptionKey:       cfg.EncryptionKey,
		HistoryLength:       cfg.Model.HistoryLength,
		DecayLambda:         cfg.Model.DecayLambda,
		SmoothingFactor:     cfg.Model.SmoothingFactor,
		WeightSequence:      cfg.Model.WeightSequence,
		WeightTime:          cfg.Model.WeightTime,
		MaxPatternLength:    cfg.Model.MaxPatternLength,
		MinActionsThreshold: cfg.Model.MinActionsThreshold,
	}, opts...)
}
