package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultPath is the configuration file used when -config is not given.
const DefaultPath = "config/config.yml"

const appEnvVar = "APP_ENV"

// Environment is the deployment stage named by APP_ENV.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

var environmentAliases = map[string]Environment{
	"dev":         Development,
	"local":       Development,
	"stag":        Staging,
	"stage":       Staging,
	"stagging":    Staging,
	"prod":        Production,
	"producation": Production,
}

// ParseEnvironment normalizes an APP_ENV value. Empty means development;
// unknown names are kept as given.
func ParseEnvironment(s string) Environment {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Development
	}
	if env, ok := environmentAliases[s]; ok {
		return env
	}
	return Environment(s)
}

// AppEnvironment returns the environment selected through APP_ENV.
func AppEnvironment() Environment {
	return ParseEnvironment(os.Getenv(appEnvVar))
}

// ProductionLike reports whether e is production or staging. Those
// environments always log JSON.
func (e Environment) ProductionLike() bool {
	return e == Production || e == Staging
}

// configFile is the environment specific variant of base, e.g.
// config/config.production.yml for config/config.yml.
func (e Environment) configFile(base string) string {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "." + string(e) + ext
}

// resolveEnvSpecificPath swaps the default path for the current
// environment's file when exists reports it present. An explicit path is
// returned untouched.
func resolveEnvSpecificPath(path string, env Environment, exists func(string) bool) string {
	if path == "" {
		path = DefaultPath
	}
	if path != DefaultPath {
		return path
	}
	if candidate := env.configFile(DefaultPath); exists(candidate) {
		return candidate
	}
	return path
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ResolvePath returns the configuration file LoadConfig reads for path.
func ResolvePath(path string) string {
	return resolveEnvSpecificPath(path, AppEnvironment(), fileExists)
}
