// Package config provides configuration loading for graph-memory.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces environment overrides (GRAPH_HTTP_ADDR, GRAPH_DB_PATH, ...).
const envPrefix = "GRAPH_"

// Config holds all application configuration.
type Config struct {
	HTTP HTTPConfig `koanf:"http"`
	DB   DBConfig   `koanf:"db"`
	Log  LogConfig  `koanf:"log"`
	MCP  MCPConfig  `koanf:"mcp"`
}

// HTTPConfig configures the HTTP server hosting both façades.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// DBConfig configures the SQLite store.
type DBConfig struct {
	Path string `koanf:"path"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level string `koanf:"level"`
	Env   string `koanf:"env"`
}

// MCPConfig selects the MCP transport.
type MCPConfig struct {
	Transport string `koanf:"transport"`
}

func defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{Addr: ":8080"},
		DB:   DBConfig{Path: "./data/graph.db"},
		Log:  LogConfig{Level: "info", Env: "development"},
		MCP:  MCPConfig{Transport: "http"},
	}
}

// Load builds the configuration with the following precedence (highest
// first): environment variables, the optional YAML file at configPath,
// hardcoded defaults. A .env file in the working directory is loaded into
// the environment first when present.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	// GRAPH_HTTP_ADDR -> http.addr, GRAPH_LOG_LEVEL -> log.level
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	switch c.MCP.Transport {
	case "http", "stdio":
	default:
		return fmt.Errorf("mcp.transport must be http or stdio, got %q", c.MCP.Transport)
	}
	return nil
}
