package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SHORTREEL_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "SHORTREEL_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SHORTREEL_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "batch.workers", typ: kInt, env: "SHORTREEL_BATCH_WORKERS",
		apply:   func(cfg *Config, v any) { cfg.Batch.Workers = v.(int) },
		extract: func(cfg Config) any { return cfg.Batch.Workers },
	},
	{
		key: "defaults.provider", typ: kString, env: "SHORTREEL_DEFAULTS_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Defaults.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Defaults.Provider },
	},
	{
		key: "defaults.model", typ: kString, env: "SHORTREEL_DEFAULTS_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Defaults.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Defaults.Model },
	},
	{
		key: "defaults.aspect_ratio", typ: kString, env: "SHORTREEL_DEFAULTS_ASPECT_RATIO",
		apply:   func(cfg *Config, v any) { cfg.Defaults.AspectRatio = v.(string) },
		extract: func(cfg Config) any { return cfg.Defaults.AspectRatio },
	},
	{
		key: "defaults.idea_count", typ: kInt, env: "SHORTREEL_DEFAULTS_IDEA_COUNT",
		apply:   func(cfg *Config, v any) { cfg.Defaults.IdeaCount = v.(int) },
		extract: func(cfg Config) any { return cfg.Defaults.IdeaCount },
	},
	{
		key: "log.level", typ: kString, env: "SHORTREEL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
