package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	DataDir   string `json:"data_dir" validate:"required"`
	LogLevel  string `json:"log_level"`
	AdminAddr string `json:"admin_addr"`

	// EncryptionKey is the shared 256-bit AES key as 64 hex characters.
	// It normally arrives through the ENCRYPTION_KEY environment variable
	// at deploy time; startup fails if it is missing or ill-formed.
	EncryptionKey string `json:"encryption_key" validate:"required,len=64,hexadecimal"`

	Sync struct {
		// ServerURL is the aggregator base URL. Empty disables remote sync;
		// the library then runs purely on local history.
		ServerURL string `json:"server_url" validate:"omitempty,url"`
	} `json:"sync"`

	Model struct {
		HistoryLength int `json:"history_length" validate:"gte=1"`
		// DecayLambda is the exponential decay rate in ms^-1 applied to
		// sequence evidence. The default of 5e-4 (half-life ~1.4s) is
		// deliberately aggressive; deployments that want decay per hour
		// should lower it by several orders of magnitude.
		DecayLambda         float64 `json:"decay_lambda" validate:"gt=0"`
		SmoothingFactor     float64 `json:"smoothing_factor" validate:"gte=0"`
		WeightSequence      float64 `json:"weight_sequence" validate:"gte=0"`
		WeightTime          float64 `json:"weight_time" validate:"gte=0"`
		MaxPatternLength    int     `json:"max_pattern_length" validate:"gte=1"`
		MinActionsThreshold int     `json:"min_actions_threshold" validate:"gte=0"`
	} `json:"model"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:   filepath.Join(os.Getenv("HOME"), ".preflight"),
		LogLevel:  "info",
		AdminAddr: "127.0.0.1:7317",
	}
	cfg.Model.HistoryLength = 100
	cfg.Model.DecayLambda = 5e-4
	cfg.Model.SmoothingFactor = 0.1
	cfg.Model.WeightSequence = 0.7
	cfg.Model.WeightTime = 0.3
	cfg.Model.MaxPatternLength = 5
	cfg.Model.MinActionsThreshold = 50

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if key := os.Getenv("ENCRYPTION_KEY"); key != "" {
		cfg.EncryptionKey = key
	}
	if url := os.Getenv("PREFLIGHT_SERVER_URL"); url != "" {
		cfg.Sync.ServerURL = url
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks the configuration invariants: key well-formed, weights
// non-negative, history and pattern lengths positive. A failure here is a
// ConfigurationError: callers must abort initialization.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	// The key never lands in the default file; it comes from the
	// environment.
	clone := *cfg
	clone.EncryptionKey = ""
	data, err := json.MarshalIndent(&clone, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}

// Save writes the configuration to path atomically.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
