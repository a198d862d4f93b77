package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/cxr-api/internal/model"
)

const defaultMaxUploadMB = 10

// Config holds the application configuration.
type Config struct {
	Port int `yaml:"port"`

	ModelPath        string `yaml:"model_path"`
	MetadataPath     string `yaml:"metadata_path"`
	ThresholdsPath   string `yaml:"thresholds_path"`
	ClassWeightsPath string `yaml:"class_weights_path"`
	ORTLibraryPath   string `yaml:"ort_library_path"`
	IntraOpThreads   int    `yaml:"intra_op_threads"`

	ReportDir   string `yaml:"report_dir"`
	KeepReports bool   `yaml:"keep_reports"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// Load builds the configuration from, in increasing priority: defaults, the YAML
// file named by CONFIG_PATH (config.yaml if unset), a .env file, and environment
// variables. A missing YAML or .env file is not an error.
func Load() (Config, error) {
	// .env only fills variables that are not already set.
	_ = godotenv.Load()

	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("error parsing %s: %w", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverrideInt(&cfg.Port, "PORT")
	envOverride(&cfg.ModelPath, "MODEL_PATH")
	envOverride(&cfg.MetadataPath, "METADATA_PATH")
	envOverride(&cfg.ThresholdsPath, "THRESHOLDS_PATH")
	envOverrideAllowEmpty(&cfg.ClassWeightsPath, "CLASS_WEIGHTS_PATH")
	envOverride(&cfg.ORTLibraryPath, "ORT_LIBRARY_PATH")
	envOverrideInt(&cfg.IntraOpThreads, "INTRA_OP_THREADS")
	envOverride(&cfg.ReportDir, "REPORT_DIR")
	envOverrideBool(&cfg.KeepReports, "KEEP_REPORTS")
	envOverrideInt(&cfg.MaxUploadMB, "MAX_UPLOAD_MB")

	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ModelPath == "" {
		c.ModelPath = "models/model.onnx"
	}
	if c.MetadataPath == "" {
		c.MetadataPath = "models/model_metadata.json"
	}
	if c.ThresholdsPath == "" {
		c.ThresholdsPath = "models/optimal_thresholds.npy"
	}
	if _, set := os.LookupEnv("CLASS_WEIGHTS_PATH"); c.ClassWeightsPath == "" && !set {
		c.ClassWeightsPath = "models/class_weights.npy"
	}
	if c.ReportDir == "" {
		c.ReportDir = os.TempDir()
	}
	if c.MaxUploadMB == 0 {
		c.MaxUploadMB = defaultMaxUploadMB
	}
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.MaxUploadMB < 0 {
		return fmt.Errorf("max_upload_mb must not be negative, got %d", c.MaxUploadMB)
	}
	if c.IntraOpThreads < 0 {
		return fmt.Errorf("intra_op_threads must not be negative, got %d", c.IntraOpThreads)
	}
	return nil
}

// MaxUploadBytes is the multipart parsing limit.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Paths returns the model artifact locations.
func (c Config) Paths() model.Paths {
	return model.Paths{
		Model:        c.ModelPath,
		Metadata:     c.MetadataPath,
		Thresholds:   c.ThresholdsPath,
		ClassWeights: c.ClassWeightsPath,
	}
}

func envOverride(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envOverrideAllowEmpty(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func envOverrideInt(dst *int, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: ignoring %s=%q: %v", key, v, err)
		return
	}
	*dst = n
}

func envOverrideBool(dst *bool, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Warning: ignoring %s=%q: %v", key, v, err)
		return
	}
	*dst = b
}
