package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"churnpredict/ml"
	"gopkg.in/yaml.v2"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env      string         `yaml:"env"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Model    ModelConfig    `yaml:"model"`
	Training TrainingConfig `yaml:"training"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	JSON       bool   `yaml:"json"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type ModelConfig struct {
	Path      string `yaml:"path"`
	Watch     bool   `yaml:"watch"`
	CacheSize int    `yaml:"cache_size"`
}

type TrainingConfig struct {
	Samples        int     `yaml:"samples"`
	Seed           int64   `yaml:"seed"`
	TestRatio      float64 `yaml:"test_ratio"`
	NEstimators    int     `yaml:"n_estimators"`
	MaxDepth       int     `yaml:"max_depth"`
	Workers        int     `yaml:"workers"`
	SampleDataPath string  `yaml:"sample_data_path"`
}

func Default() *Config {
	return &Config{
		Env: EnvDevelopment,
		Server: ServerConfig{
			Port:           5000,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    60 * time.Second,
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   1 << 20,
		},
		Database: DatabaseConfig{Path: "predictions.db"},
		Log: LogConfig{
			Level:      "info",
			File:       "app.log",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Model: ModelConfig{
			Path:      "models/churn_model.bin",
			Watch:     true,
			CacheSize: 1024,
		},
		Training: TrainingConfig{
			Samples:        1000,
			Seed:           42,
			TestRatio:      0.2,
			NEstimators:    100,
			MaxDepth:       10,
			SampleDataPath: "data/sample_data.csv",
		},
	}
}

// Load reads the yaml file at path on top of Default and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("APP_ENV"); ok && v != "" {
		c.Env = strings.ToLower(v)
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("DATABASE_PATH"); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup("MODEL_PATH"); ok && v != "" {
		c.Model.Path = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		return fmt.Errorf("env must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}
	if c.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if c.Model.CacheSize < 0 {
		return errors.New("model.cache_size must not be negative")
	}
	if c.Training.Samples <= 0 {
		return errors.New("training.samples must be positive")
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		return fmt.Errorf("training.test_ratio must be in (0, 1), got %v", c.Training.TestRatio)
	}
	if c.Training.NEstimators <= 0 {
		return errors.New("training.n_estimators must be positive")
	}
	if c.Training.MaxDepth <= 0 {
		return errors.New("training.max_depth must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Addr is the listen address for the configured port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// TrainConfig maps the training section onto the trainer's parameters.
func (t TrainingConfig) TrainConfig() ml.TrainConfig {
	cfg := ml.DefaultTrainConfig()
	cfg.Samples = t.Samples
	cfg.Seed = t.Seed
	cfg.TestRatio = t.TestRatio
	cfg.Forest.NEstimators = t.NEstimators
	cfg.Forest.MaxDepth = t.MaxDepth
	cfg.Forest.Workers = t.Workers
	cfg.Forest.Seed = t.Seed
	return cfg
}
