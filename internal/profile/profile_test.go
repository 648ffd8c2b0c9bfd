package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".lostfound", "profiles", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestHomeOverride(t *testing.T) {
	base := t.TempDir()
	t.Setenv(HomeEnv, base)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"socket", SocketPath("test"), filepath.Join(base, "profiles", "test", "daemon.sock")},
		{"lock", LockPath("test"), filepath.Join(base, "profiles", "test", "LOCK")},
		{"db", DBPath("test"), filepath.Join(base, "profiles", "test", "chatsync.db")},
		{"log", LogPath("test", "chatsyncd"), filepath.Join(base, "profiles", "test", "logs", "chatsyncd.log")},
		{"config", ConfigPath(), filepath.Join(base, "config.toml")},
		{"env", EnvPath(), filepath.Join(base, ".env")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s path = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{Dir("test"), LogDir("test")} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("%s not created: %v", d, err)
		}
		if !info.IsDir() || info.Mode().Perm() != 0700 {
			t.Errorf("%s mode = %v, want 0700 dir", d, info.Mode())
		}
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "my-profile", false},
		{"valid with underscore", "my_profile", false},
		{"valid single char", "a", false},
		{"valid max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my profile", true},
		{"dot", "my.profile", true},
		{"too long", strings.Repeat("a", 65), true},
		{"special chars", "my@profile", true},
		{"slash", "my/profile", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	base := t.TempDir()
	t.Setenv(HomeEnv, base)
	t.Setenv("LOSTFOUND_DEFAULT_PROFILE", "")
	os.Unsetenv("LOSTFOUND_DEFAULT_PROFILE")

	if got, err := Resolve(""); err != nil || got != DefaultName {
		t.Errorf("Resolve(\"\") = %q, %v, want %q", got, err, DefaultName)
	}

	if err := os.WriteFile(ConfigPath(), []byte("default_profile = \"work\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got, _ := Resolve(""); got != "work" {
		t.Errorf("Resolve with config = %q, want work", got)
	}
	if got, _ := Resolve("home"); got != "home" {
		t.Errorf("Resolve(home) = %q, want home", got)
	}
	if _, err := Resolve("Bad Name"); err == nil {
		t.Error("Resolve accepted an invalid name")
	}
}
