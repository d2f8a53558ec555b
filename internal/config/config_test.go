package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
base_url: "https://api.example.com"
identity_provider_url: "https://id.example.com/oauth2/token"
tenants:
  acme:
    client_id: "abc"
    client_secret: "shh"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "https://api.example.com" {
		t.Errorf("base_url = %s", cfg.BaseURL)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	tenant, err := cfg.Tenant("acme")
	if err != nil {
		t.Fatal(err)
	}
	if tenant.ClientID != "abc" || tenant.ClientSecret != "shh" {
		t.Errorf("unexpected tenant config: %+v", tenant)
	}
	if _, err := cfg.Tenant("missing"); err == nil {
		t.Error("unknown tenant should return an error")
	}
}

func TestLoad_expandCachePathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
base_url: "https://api.example.com"
cache_path: "./cache/models.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "cache", "models.db")
	if cfg.CachePath != want {
		t.Errorf("cache_path = %s, want %s", cfg.CachePath, want)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.PageSize != 100 {
		t.Errorf("default page_size: got %d", cfg.PageSize)
	}
	if cfg.Jobs != 4 {
		t.Errorf("default jobs: got %d", cfg.Jobs)
	}
	if cfg.TimeoutSeconds != 180 {
		t.Errorf("default timeout_seconds: got %d", cfg.TimeoutSeconds)
	}
	if cfg.Tenants == nil {
		t.Error("tenants map should be initialized")
	}
	if cfg.Watch.Extensions == nil {
		t.Error("watch extensions should be set by default")
	}
	if cfg.Watch.Extensions[0] != ".stl" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if cfg.Watch.Units != "mm" {
		t.Errorf("default watch units: got %s", cfg.Watch.Units)
	}
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true")
	}
}

func TestApplyDefaults_keepsExplicitValues(t *testing.T) {
	f := false
	cfg := &Config{PageSize: 25, Jobs: 1, Watch: WatchConfig{Recursive: &f}}
	ApplyDefaults(cfg)
	if cfg.PageSize != 25 || cfg.Jobs != 1 {
		t.Errorf("explicit values overwritten: page_size=%d jobs=%d", cfg.PageSize, cfg.Jobs)
	}
	if *cfg.Watch.Recursive {
		t.Error("explicit recursive=false overwritten")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		BaseURL: "https://api.example.com",
		Tenants: map[string]TenantConfig{
			"acme": {ClientID: "abc", ClientSecret: "shh"},
		},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	tenant, err := loaded.Tenant("acme")
	if err != nil {
		t.Fatal(err)
	}
	if tenant.ClientSecret != "shh" {
		t.Errorf("round-trip lost the secret: %+v", tenant)
	}
}
