package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment names recognised via APP_ENV.
const (
	EnvDevelopment = "dev"
	EnvStaging     = "staging"
	EnvProduction  = "prod"
)

// ResolveConfigPath returns the config file for the current environment.
// An explicit path wins; otherwise config.<APP_ENV>.yaml is used when it
// exists, falling back to config.yaml.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}

	env := CurrentEnvironment()
	candidate := fmt.Sprintf("config.%s.yaml", env)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}

	if _, err := os.Stat("config.yaml"); err != nil {
		return "", fmt.Errorf("no config file found (tried %s and config.yaml)", candidate)
	}
	return "config.yaml", nil
}

// CurrentEnvironment reads APP_ENV, defaulting to dev.
func CurrentEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	switch env {
	case EnvStaging, EnvProduction:
		return env
	case "production":
		return EnvProduction
	case "development", "":
		return EnvDevelopment
	default:
		return env
	}
}

// IsProduction reports whether the process runs with a production config.
func IsProduction() bool {
	return CurrentEnvironment() == EnvProduction
}

// LogDir returns the directory log files should be written to, creating
// it if necessary.
func LogDir(base string) (string, error) {
	if base == "" {
		base = "logs"
	}
	dir := filepath.Join(base, CurrentEnvironment())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log dir: %w", err)
	}
	return dir, nil
}
