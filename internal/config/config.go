// Package config loads the daemon configuration: persisted JSON config
// file, optional .env file, and SHORTREEL_* environment overrides, in that
// order of precedence (env wins).
package config

import (
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Batch    BatchConfig
	Defaults DefaultsConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type StorageConfig struct {
	DataDir string
}

type BatchConfig struct {
	// Workers bounds concurrent scene image generations.
	Workers int
}

type DefaultsConfig struct {
	Provider    string
	Model       string
	AspectRatio string
	IdeaCount   int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4600,
			MCPPort: 4601,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Batch: BatchConfig{
			Workers: 4,
		},
		Defaults: DefaultsConfig{
			Provider:    "gemini",
			Model:       "gemini-2.5-flash",
			AspectRatio: "16:9",
			IdeaCount:   6,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/shortreel/config.json, a .env file in the working
// directory if present, and SHORTREEL_* environment variables. Environment
// variables override file values. API keys are not config; they live in the
// key store.
func Load() (Config, error) {
	// Missing .env is the normal case; godotenv only fills variables that
	// are not already set.
	_ = godotenv.Load()
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}
