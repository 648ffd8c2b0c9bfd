package profile

import (
	"fmt"
	"regexp"

	"github.com/lostfound/chatsync/internal/config"
)

const DefaultName = "main"

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name conforms to profile naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid profile name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// Resolve determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. default_profile from the config file or LOSTFOUND_DEFAULT_PROFILE
// 3. "main"
// The result is validated.
func Resolve(flagOverride string) (string, error) {
	name := flagOverride
	if name == "" {
		if cfg, err := config.LoadEffective(ConfigPath(), EnvPath()); err == nil {
			name = cfg.DefaultProfile
		}
	}
	if name == "" {
		name = DefaultName
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}
