package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override, e.g. LOSTFOUND_API_BASE_URL.
const EnvPrefix = "LOSTFOUND_"

// Config represents the global ~/.lostfound/config.toml.
type Config struct {
	DefaultProfile string      `toml:"default_profile" validate:"omitempty,max=64"`
	API            APIConfig   `toml:"api"`
	User           UserConfig  `toml:"user"`
	Sync           SyncConfig  `toml:"sync"`
	Files          FilesConfig `toml:"files"`
}

// APIConfig locates the lost-and-found REST backend.
type APIConfig struct {
	BaseURL        string   `toml:"base_url" validate:"required,url"`
	RequestTimeout Duration `toml:"request_timeout" validate:"min_duration=1s"`
	// TimestampUnit is the unit the backend expects in the since/{cursor} path.
	TimestampUnit string `toml:"timestamp_unit" validate:"oneof=ms s"`
}

// UserConfig is the identity messages are sent as.
type UserConfig struct {
	Email    string `toml:"email" validate:"omitempty,email"`
	Name     string `toml:"name"`
	Password string `toml:"password,omitempty"`
}

type SyncConfig struct {
	PollInterval Duration `toml:"poll_interval" validate:"min_duration=100ms"`
	EchoWindow   Duration `toml:"echo_window" validate:"min_duration=1s"`
}

// FilesConfig selects where attachments are uploaded.
type FilesConfig struct {
	Backend        string `toml:"backend" validate:"oneof=rest gcs"`
	Category       string `toml:"category" validate:"required"`
	GCSBucket      string `toml:"gcs_bucket" validate:"required_if=Backend gcs"`
	GCSCredentials string `toml:"gcs_credentials" validate:"omitempty,file"`
}

// Duration is a time.Duration written as a string ("3s") in TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8080",
			RequestTimeout: Duration(15 * time.Second),
			TimestampUnit:  "ms",
		},
		Sync: SyncConfig{
			PollInterval: Duration(3 * time.Second),
			EchoWindow:   Duration(30 * time.Second),
		},
		Files: FilesConfig{
			Backend:  "rest",
			Category: "chat-attachments",
		},
	}
}

// Load reads config from the given path on top of the defaults. Returns an
// error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEffective builds the configuration a process runs with: defaults, then
// the TOML file at path if present, then variables from the .env file at
// envPath if present, then LOSTFOUND_* variables from the environment. The
// result is validated.
func LoadEffective(path, envPath string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	if envPath != "" {
		// godotenv never overrides variables already set in the environment.
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DEFAULT_PROFILE":       &c.DefaultProfile,
		"API_BASE_URL":          &c.API.BaseURL,
		"API_TIMESTAMP_UNIT":    &c.API.TimestampUnit,
		"USER_EMAIL":            &c.User.Email,
		"USER_NAME":             &c.User.Name,
		"USER_PASSWORD":         &c.User.Password,
		"FILES_BACKEND":         &c.Files.Backend,
		"FILES_CATEGORY":        &c.Files.Category,
		"FILES_GCS_BUCKET":      &c.Files.GCSBucket,
		"FILES_GCS_CREDENTIALS": &c.Files.GCSCredentials,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	durations := map[string]*Duration{
		"API_REQUEST_TIMEOUT": &c.API.RequestTimeout,
		"SYNC_POLL_INTERVAL":  &c.Sync.PollInterval,
		"SYNC_ECHO_WINDOW":    &c.Sync.EchoWindow,
	}
	for key, dst := range durations {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("min_duration", func(fl validator.FieldLevel) bool {
		least, err := time.ParseDuration(fl.Param())
		if err != nil {
			return false
		}
		return time.Duration(fl.Field().Int()) >= least
	})
	// Report TOML key names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the configuration and describes every invalid key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		var msg string
		switch fe.Tag() {
		case "required":
			msg = key + " is required"
		case "required_if":
			msg = key + " is required when " + strings.ToLower(strings.Replace(fe.Param(), " ", " = ", 1))
		case "url":
			msg = key + " must be a URL"
		case "email":
			msg = key + " must be an email address"
		case "oneof":
			msg = key + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
		case "min_duration":
			msg = key + " must be at least " + fe.Param()
		case "file":
			msg = key + " must name an existing file"
		default:
			msg = key + " is invalid (" + fe.Tag() + ")"
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
