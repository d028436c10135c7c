// Copyright 2025 OneCore Project
//
// Package config loads a node's configuration from a YAML file on disk,
// with environment variables available as overrides for the values an
// operator most often needs to vary between deployments without editing
// the file (spec.md §6).

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds everything a node needs to start: local identity, storage
// location, which recipes and reverse-map types to enable up front, and
// where to reach a communication relay.
type Config struct {
	// Name is the local person's display name.
	Name string `yaml:"name"`
	// Email is the local person's contact address, used only for display.
	Email string `yaml:"email"`
	// Secret is the password storage encryption derives its key from when
	// EncryptStorage is set. Never logged.
	Secret string `yaml:"secret"`
	// Directory is the base path the embedded KV store is opened under.
	Directory string `yaml:"directory"`
	// EncryptStorage, when true, derives a symmetric key from Secret via
	// scrypt and seals the node's key file (identity.hex) with it. Object
	// blobs are stored unencrypted either way.
	EncryptStorage bool `yaml:"encryptStorage"`
	// InitialRecipes names recipe types, by type name, besides the built-in
	// ones. The node has no recipe definitions beyond its built-in set, so
	// at startup it logs each listed name and registers nothing for it.
	InitialRecipes []string `yaml:"initialRecipes"`
	// InitiallyEnabledReverseMapTypes lists parent types, as "TypeName" or
	// "Object:TypeName" strings ("*" enables every type), to enable
	// Object-kind reverse-index maintenance for at startup, beyond the
	// always-on core types. Any text before a ':' is ignored: every entry
	// of this list is enabled for the Object kind.
	InitiallyEnabledReverseMapTypes []string `yaml:"initiallyEnabledReverseMapTypes"`
	// InitiallyEnabledReverseMapTypesForIdObjects is the IdObject-kind
	// analogue of InitiallyEnabledReverseMapTypes, kept as a separate list
	// because the two most commonly diverge in practice (most types only
	// need Object-kind reverse maps).
	InitiallyEnabledReverseMapTypesForIdObjects []string `yaml:"initiallyEnabledReverseMapTypesForIdObjects"`
	// CommServerURL is the relay this node connects to for NAT traversal,
	// pairing, and chum-protocol sync with peers.
	CommServerURL string `yaml:"commServerUrl"`

	// ListenAddr serves the node's HTTP health and metrics endpoints.
	ListenAddr string `yaml:"listenAddr"`
	// StorageBackend selects the cometbft-db backend ("badgerdb",
	// "goleveldb", "memdb") the blob store is opened with.
	StorageBackend string `yaml:"storageBackend"`
	// DatabaseURL, if set, points reverse-index maintenance at a Postgres
	// instance instead of the embedded KV backend.
	DatabaseURL string `yaml:"databaseUrl"`
}

// Load reads a YAML config file from path, then applies any recognized
// environment overrides on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Default returns a Config populated with safe defaults, suitable as the
// unmarshal target so unset YAML fields keep their default rather than
// zeroing out.
func Default() *Config {
	return &Config{
		Directory:      "./data",
		EncryptStorage: false,
		ListenAddr:     "0.0.0.0:8080",
		StorageBackend: "badgerdb",
	}
}

// applyEnvOverrides lets an operator override the fields most often varied
// per deployment without touching the checked-in YAML file.
func applyEnvOverrides(cfg *Config) {
	cfg.Name = getEnv("ONECORE_NAME", cfg.Name)
	cfg.Email = getEnv("ONECORE_EMAIL", cfg.Email)
	cfg.Secret = getEnv("ONECORE_SECRET", cfg.Secret)
	cfg.Directory = getEnv("ONECORE_DIRECTORY", cfg.Directory)
	cfg.EncryptStorage = getEnvBool("ONECORE_ENCRYPT_STORAGE", cfg.EncryptStorage)
	cfg.CommServerURL = getEnv("ONECORE_COMM_SERVER_URL", cfg.CommServerURL)
	cfg.ListenAddr = getEnv("ONECORE_LISTEN_ADDR", cfg.ListenAddr)
	cfg.StorageBackend = getEnv("ONECORE_STORAGE_BACKEND", cfg.StorageBackend)
	cfg.DatabaseURL = getEnv("ONECORE_DATABASE_URL", cfg.DatabaseURL)
}

// Validate checks that the configuration is sufficient to start a node.
func (c *Config) Validate() error {
	var problems []string
	if c.Name == "" {
		problems = append(problems, "name is required")
	}
	if c.Directory == "" {
		problems = append(problems, "directory is required")
	}
	if c.EncryptStorage && c.Secret == "" {
		problems = append(problems, "secret is required when encryptStorage is true")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
