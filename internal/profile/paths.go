// Package profile locates the per-profile state under ~/.lostfound.
package profile

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory, mainly for tests and containers.
const HomeEnv = "LOSTFOUND_HOME"

// BaseDir returns ~/.lostfound, or $LOSTFOUND_HOME when set.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lostfound")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// SocketPath returns the daemon's gRPC socket path for a profile.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// LockPath returns the lock file path for a profile.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// DBPath returns the message archive path.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "chatsync.db")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the log file path for the named program.
func LogPath(name, program string) string {
	return filepath.Join(LogDir(name), program+".log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnvPath returns the .env file loaded on top of the config file.
func EnvPath() string {
	return filepath.Join(BaseDir(), ".env")
}

// EnsureDir creates the profile directory tree with owner-only permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
