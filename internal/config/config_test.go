package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultProfile = "work"
	cfg.User.Email = "me@lostfound.io"
	cfg.Sync.PollInterval = Duration(5 * time.Second)
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.Sync.PollInterval.Std() != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", loaded.Sync.PollInterval.Std())
	}
	if loaded.User.Email != "me@lostfound.io" {
		t.Errorf("Email = %q", loaded.User.Email)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[api]\nbase_url = \"https://api.lostfound.io\"\n\n[sync]\npoll_interval = \"1s\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.BaseURL != "https://api.lostfound.io" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Sync.PollInterval.Std() != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.Sync.PollInterval.Std())
	}
	if cfg.API.RequestTimeout.Std() != 15*time.Second || cfg.API.TimestampUnit != "ms" || cfg.Files.Backend != "rest" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestLoadEffectiveLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	envPath := filepath.Join(dir, ".env")

	if err := os.WriteFile(path, []byte("[user]\nemail = \"file@lostfound.io\"\nname = \"File\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(envPath, []byte("LOSTFOUND_USER_NAME=Dotenv\nLOSTFOUND_SYNC_ECHO_WINDOW=45s\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOSTFOUND_USER_EMAIL", "env@lostfound.io")
	t.Setenv("LOSTFOUND_API_TIMESTAMP_UNIT", "s")
	// godotenv sets these for the process; clear them when the test ends.
	t.Setenv("LOSTFOUND_USER_NAME", "")
	os.Unsetenv("LOSTFOUND_USER_NAME")
	t.Setenv("LOSTFOUND_SYNC_ECHO_WINDOW", "")
	os.Unsetenv("LOSTFOUND_SYNC_ECHO_WINDOW")

	cfg, err := LoadEffective(path, envPath)
	if err != nil {
		t.Fatalf("LoadEffective() error = %v", err)
	}
	if cfg.User.Email != "env@lostfound.io" {
		t.Errorf("Email = %q, want env override", cfg.User.Email)
	}
	if cfg.User.Name != "Dotenv" {
		t.Errorf("Name = %q, want value from .env", cfg.User.Name)
	}
	if cfg.Sync.EchoWindow.Std() != 45*time.Second {
		t.Errorf("EchoWindow = %v, want 45s", cfg.Sync.EchoWindow.Std())
	}
	if cfg.API.TimestampUnit != "s" {
		t.Errorf("TimestampUnit = %q, want s", cfg.API.TimestampUnit)
	}
}

func TestLoadEffectiveWithoutFiles(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadEffective(filepath.Join(dir, "missing.toml"), filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("LoadEffective() error = %v", err)
	}
	if cfg.API.BaseURL != Default().API.BaseURL {
		t.Errorf("BaseURL = %q, want default", cfg.API.BaseURL)
	}
}

func TestLoadEffectiveBadDuration(t *testing.T) {
	t.Setenv("LOSTFOUND_SYNC_POLL_INTERVAL", "soon")
	_, err := LoadEffective(filepath.Join(t.TempDir(), "missing.toml"), "")
	if err == nil || !strings.Contains(err.Error(), "LOSTFOUND_SYNC_POLL_INTERVAL") {
		t.Errorf("err = %v, want mention of LOSTFOUND_SYNC_POLL_INTERVAL", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad url", func(c *Config) { c.API.BaseURL = "not a url" }, "api.base_url must be a URL"},
		{"missing url", func(c *Config) { c.API.BaseURL = "" }, "api.base_url is required"},
		{"bad email", func(c *Config) { c.User.Email = "nope" }, "user.email must be an email address"},
		{"bad unit", func(c *Config) { c.API.TimestampUnit = "ns" }, "api.timestamp_unit must be one of: ms, s"},
		{"bad backend", func(c *Config) { c.Files.Backend = "s3" }, "files.backend must be one of: rest, gcs"},
		{"gcs without bucket", func(c *Config) { c.Files.Backend = "gcs" }, "files.gcs_bucket is required"},
		{"gcs with bucket", func(c *Config) { c.Files.Backend = "gcs"; c.Files.GCSBucket = "lf-files" }, ""},
		{"missing credentials file", func(c *Config) { c.Files.GCSCredentials = "/nonexistent/key.json" }, "files.gcs_credentials must name an existing file"},
		{"poll too fast", func(c *Config) { c.Sync.PollInterval = Duration(time.Millisecond) }, "sync.poll_interval must be at least 100ms"},
		{"timeout too short", func(c *Config) { c.API.RequestTimeout = 0 }, "api.request_timeout must be at least 1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
