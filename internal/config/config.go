// Package config loads and holds the service configuration.
//
// Precedence, lowest to highest: built-in defaults, the config file
// (compliance-config.yaml, or the path in COMPLIANCE_CONFIG; a .json
// extension selects JSON), then environment variables. A .env file in the
// working directory is loaded into the environment first and never
// overrides variables that are already set.
package config

import (
	"encoding/json"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when COMPLIANCE_CONFIG is unset.
const DefaultConfigFile = "compliance-config.yaml"

// Config holds the full service configuration.
type Config struct {
	BindAddress string `json:"bindAddress" yaml:"bind_address"`
	APIPort     int    `json:"apiPort" yaml:"api_port"`
	LogLevel    string `json:"logLevel" yaml:"log_level"`

	// APIToken, when set, is required as a bearer token on /api and /ws routes.
	APIToken string `json:"apiToken" yaml:"api_token"`

	// JournalPath is the bbolt violation journal. Empty keeps violations
	// in memory only.
	JournalPath string `json:"journalPath" yaml:"journal_path"`

	MaxConns        int   `json:"maxConns" yaml:"max_conns"`
	MaxBodyBytes    int64 `json:"maxBodyBytes" yaml:"max_body_bytes"`
	EnableWebSocket bool  `json:"enableWebSocket" yaml:"enable_websocket"`
}

// Addr returns the API listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.APIPort))
}

// Load returns config with defaults overridden by the config file and env vars.
func Load() *Config {
	_ = godotenv.Load()

	cfg := defaults()
	path := os.Getenv("COMPLIANCE_CONFIG")
	if path == "" {
		path = DefaultConfigFile
	}
	loadFile(cfg, path)
	loadEnv(cfg)
	sanitize(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		BindAddress:     "127.0.0.1",
		APIPort:         8090,
		LogLevel:        "info",
		JournalPath:     "compliance-journal.db",
		MaxConns:        256,
		MaxBodyBytes:    1 << 20,
		EnableWebSocket: true,
	}
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // file is optional
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
		return
	}
	log.Printf("[CONFIG] Loaded %s", path)
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.APIPort = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	// Set but empty disables the journal file.
	if v, ok := os.LookupEnv("JOURNAL_PATH"); ok {
		cfg.JournalPath = v
	}
	if v := os.Getenv("MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConns = n
		}
	}
	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxBodyBytes = n
		}
	}
	if v := os.Getenv("ENABLE_WEBSOCKET"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EnableWebSocket = b
		}
	}
}

// sanitize replaces out-of-range values with defaults.
func sanitize(cfg *Config) {
	d := defaults()
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		log.Printf("[CONFIG] Warning: invalid api port %d, using %d", cfg.APIPort, d.APIPort)
		cfg.APIPort = d.APIPort
	}
	if cfg.MaxConns < 0 {
		log.Printf("[CONFIG] Warning: negative max conns %d, using %d", cfg.MaxConns, d.MaxConns)
		cfg.MaxConns = d.MaxConns
	}
	if cfg.MaxBodyBytes <= 0 {
		log.Printf("[CONFIG] Warning: invalid max body bytes %d, using %d", cfg.MaxBodyBytes, d.MaxBodyBytes)
		cfg.MaxBodyBytes = d.MaxBodyBytes
	}
	if cfg.BindAddress == "" {
		cfg.BindAddress = d.BindAddress
	}
}
