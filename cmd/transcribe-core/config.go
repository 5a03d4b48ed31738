package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voxstream/transcribe-core/registry"
)

// Config is the process-wide configuration loaded once at startup.
// Grounded on original_source/backend/app/core/config.py's Settings: the
// same field groups (server, JWT, default provider credentials, per-user
// overrides), reloaded from a YAML file instead of env vars/.env since
// this core has no pydantic-settings equivalent in the retrieval pack and
// the teacher itself has no config-file loader of its own to imitate —
// yaml.v3 (already a teacher dependency, otherwise only exercised by
// providers/mock's test fixtures) is adopted here for its intended job.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	JWTSecret string `yaml:"jwt_secret"`

	Persistence PersistenceConfig `yaml:"persistence"`

	// Default is the provider/recording configuration applied to any user
	// not listed in Users (mirrors Settings' DEFAULT_STT_*/DEFAULT_LLM_*
	// fields, which apply process-wide unless a user overrides them).
	Default registry.UserConfig `yaml:"default"`

	// Admin is the configuration delegated to when a user has
	// CanUseAdminKey set (spec.md §6.2). Nil disables delegation.
	Admin *registry.UserConfig `yaml:"admin"`

	// Users holds per-user overrides, keyed by user id (the JWT "sub"
	// claim). A user absent from this map acts under Default.
	Users map[string]registry.UserConfig `yaml:"users"`
}

// PersistenceConfig selects the audio-bytes storage backend (spec.md
// §6.5): "memory" for local development/tests, "postgres" for the
// large-object backend (persistence/pglo) in production.
type PersistenceConfig struct {
	Driver string `yaml:"driver"` // "memory" or "postgres"
	DSN    string `yaml:"dsn"`
}

const defaultShutdownGrace = 15 * time.Second

// defaultConfig returns the configuration used when no config file is
// supplied, suitable for local development against persistence/memory.
func defaultConfig() Config {
	return Config{
		ListenAddr: ":8000",
		JWTSecret:  "your-super-secret-key-change-in-production",
		Persistence: PersistenceConfig{
			Driver: "memory",
		},
		Default: registry.UserConfig{
			STT: registry.ProviderConfig{
				Provider: "groq",
				Model:    "whisper-large-v3-turbo",
				BaseURL:  "https://api.groq.com/openai/v1",
			},
			LLM: registry.ProviderConfig{
				Provider: "siliconflow",
				Model:    "deepseek-ai/DeepSeek-V2.5",
				BaseURL:  "https://api.siliconflow.cn/v1",
			},
			Recording: registry.RecordingConfig{
				AudioBufferDuration: 6.0,
				RPMLimit:            100,
			},
		},
	}
}

// loadConfig reads and parses a YAML config file at path, layering it over
// defaultConfig so an operator only needs to specify overrides. An empty
// path returns defaultConfig unchanged.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// userConfig resolves the registry.UserConfig for userID, falling back to
// cfg.Default when the user has no explicit entry.
func (c Config) userConfig(userID string) registry.UserConfig {
	if u, ok := c.Users[userID]; ok {
		u.UserID = userID
		return u
	}
	u := c.Default
	u.UserID = userID
	return u
}
