package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"APP_ENV", "PORT", "DATABASE_PATH", "MODEL_PATH", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ":5000", cfg.Server.Addr())
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
env: production
server:
  port: 8080
  read_timeout: 5s
database:
  path: /tmp/churn.db
model:
  path: /tmp/model.bin
  cache_size: 0
training:
  n_estimators: 50
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "/tmp/churn.db", cfg.Database.Path)
	assert.Equal(t, 0, cfg.Model.CacheSize)
	assert.Equal(t, 50, cfg.Training.NEstimators)
	assert.Equal(t, 10, cfg.Training.MaxDepth)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "Production")
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_PATH", "env.db")
	t.Setenv("MODEL_PATH", "env.bin")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, cfg.Env)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "env.db", cfg.Database.Path)
	assert.Equal(t, "env.bin", cfg.Model.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsBadInput(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "http")
	_, err := Load("")
	assert.Error(t, err)

	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [1, 2"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"env":        func(c *Config) { c.Env = "staging" },
		"port":       func(c *Config) { c.Server.Port = 70000 },
		"body":       func(c *Config) { c.Server.MaxBodyBytes = 0 },
		"model path": func(c *Config) { c.Model.Path = "" },
		"cache":      func(c *Config) { c.Model.CacheSize = -1 },
		"samples":    func(c *Config) { c.Training.Samples = 0 },
		"ratio":      func(c *Config) { c.Training.TestRatio = 1 },
		"trees":      func(c *Config) { c.Training.NEstimators = 0 },
		"depth":      func(c *Config) { c.Training.MaxDepth = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestTrainConfig(t *testing.T) {
	training := Default().Training
	training.NEstimators = 7
	training.Seed = 3

	cfg := training.TrainConfig()
	assert.Equal(t, 1000, cfg.Samples)
	assert.Equal(t, int64(3), cfg.Seed)
	assert.Equal(t, int64(3), cfg.Forest.Seed)
	assert.Equal(t, 7, cfg.Forest.NEstimators)
	assert.Equal(t, 10, cfg.Forest.MaxDepth)
	assert.True(t, cfg.Forest.Bootstrap)
}
