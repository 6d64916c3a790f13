// Package config loads matcli configuration with Viper.
//
// Sources, lowest to highest precedence: built-in defaults, the user config
// file (~/.materialize/config.toml), a project-local materialize.toml found
// by walking up from the working directory, then MATERIALIZE_* environment
// variables.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/annoframe/materialize-go/errors"
)

// Config holds the matcli configuration
type Config struct {
	Server    ServerConfig `mapstructure:"server"`
	Datastack string       `mapstructure:"datastack_name"`
	Auth      AuthConfig   `mapstructure:"auth"`
}

// ServerConfig holds the materialization service settings
type ServerConfig struct {
	Address        string `mapstructure:"address"`
	APIVersion     string `mapstructure:"api_version"`     // "latest", "v2", "v1"
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // per-request HTTP timeout
	AllowLocal     bool   `mapstructure:"allow_local"`     // permit localhost/private addresses (dev servers)
}

// AuthConfig holds credential sources. Token wins over TokenFile.
type AuthConfig struct {
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token_file"`
}

// Load reads configuration from all sources
func Load() (*Config, error) {
	return LoadWithViper(newViper())
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	return LoadWithViper(v)
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.api_version", "latest")
	v.SetDefault("server.timeout_seconds", 120)
	v.SetDefault("server.allow_local", false)
	v.SetDefault("auth.token_file", DefaultTokenFile())
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to
// environment variables so tokens never need to live in config files
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("auth.token", "MATERIALIZE_AUTH_TOKEN")
}

// bindEnvVars binds the documented configuration keys to their
// MATERIALIZE_* environment variables. AutomaticEnv alone does not
// surface keys through Unmarshal when they carry no default or
// config-file value.
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("server.address")
	v.BindEnv("server.api_version")
	v.BindEnv("server.timeout_seconds")
	v.BindEnv("server.allow_local")
	v.BindEnv("datastack_name")
	v.BindEnv("auth.token_file")
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix("MATERIALIZE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	BindSensitiveEnvVars(v)
	SetDefaults(v)
	mergeConfigFiles(v)

	return v
}

// findProjectConfig searches for materialize.toml by walking up the
// directory tree. Returns the first config file found, or "".
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, "materialize.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// mergeConfigFiles merges configuration files in precedence order:
// user config < project config (env vars override both via AutomaticEnv)
func mergeConfigFiles(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()

	configPaths := []string{
		filepath.Join(homeDir, ".materialize", "config.toml"),
	}
	if projectConfig := findProjectConfig(); projectConfig != "" {
		configPaths = append(configPaths, projectConfig)
	}

	for _, configPath := range configPaths {
		if _, err := os.Stat(configPath); err != nil {
			continue
		}
		tempViper := viper.New()
		tempViper.SetConfigFile(configPath)
		tempViper.SetConfigType("toml")
		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}
		// Merge at config precedence so environment variables still win;
		// Set would pin file values above everything else.
		v.MergeConfigMap(tempViper.AllSettings())
	}
}

// DefaultTokenFile is the conventional token location. The file is
// optional: callers treat a missing file at this path as anonymous
// access, unlike an explicitly configured token file.
func DefaultTokenFile() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".materialize", "token")
}
