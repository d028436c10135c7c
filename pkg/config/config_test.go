// Copyright 2025 OneCore Project

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "onecore.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "name: alice\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Directory != "./data" {
		t.Errorf("expected default directory, got %q", cfg.Directory)
	}
	if cfg.StorageBackend != "badgerdb" {
		t.Errorf("expected default storage backend, got %q", cfg.StorageBackend)
	}
}

func TestLoadParsesFields(t *testing.T) {
	path := writeConfigFile(t, `
name: alice
email: alice@example.com
secret: correct-horse
directory: /var/lib/onecore
encryptStorage: true
commServerUrl: wss://relay.example.com
initialRecipes:
  - Document
initiallyEnabledReverseMapTypes:
  - "Object:Profile"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "alice" || cfg.Email != "alice@example.com" {
		t.Errorf("unexpected identity fields: %+v", cfg)
	}
	if !cfg.EncryptStorage {
		t.Error("expected encryptStorage to be true")
	}
	if cfg.CommServerURL != "wss://relay.example.com" {
		t.Errorf("unexpected commServerUrl: %q", cfg.CommServerURL)
	}
	if len(cfg.InitialRecipes) != 1 || cfg.InitialRecipes[0] != "Document" {
		t.Errorf("unexpected initialRecipes: %v", cfg.InitialRecipes)
	}
	if len(cfg.InitiallyEnabledReverseMapTypes) != 1 || cfg.InitiallyEnabledReverseMapTypes[0] != "Object:Profile" {
		t.Errorf("unexpected initiallyEnabledReverseMapTypes: %v", cfg.InitiallyEnabledReverseMapTypes)
	}
}

func TestEnvOverridesTakePrecedence(t *testing.T) {
	path := writeConfigFile(t, "name: alice\ndirectory: /from/file\n")
	t.Setenv("ONECORE_DIRECTORY", "/from/env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Directory != "/from/env" {
		t.Errorf("expected env override to win, got %q", cfg.Directory)
	}
}

func TestValidateRequiresSecretWhenEncrypting(t *testing.T) {
	cfg := Default()
	cfg.Name = "alice"
	cfg.EncryptStorage = true

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when encryptStorage is set without a secret")
	}

	cfg.Secret = "hunter2"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected validation to pass, got %v", err)
	}
}

func TestValidateRequiresName(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when name is missing")
	}
}
