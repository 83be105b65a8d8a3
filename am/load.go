package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/jobd/errors"
)

var (
	globalConfig  *Config
	viperInstance *viper.Viper
	loadMu        sync.Mutex

	// ConfigSources records, per flattened key, the file that last set it
	// during the most recent initViper. Keys absent here came from defaults
	// or the environment.
	ConfigSources = map[string]SourceInfo{}
)

// Load reads the jobd configuration using Viper and validates it
func Load() (*Config, error) {
	loadMu.Lock()
	defer loadMu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	config, err := LoadWithViper(initViperLocked())
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	loadMu.Lock()
	defer loadMu.Unlock()
	return initViperLocked()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path on top of the
// defaults, ignoring other files and the environment.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.WithDetail(err, "File: "+configPath)
	}
	return config, nil
}

// Reset clears the cached configuration (useful for testing and reload)
func Reset() {
	loadMu.Lock()
	defer loadMu.Unlock()
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
}

// initViperLocked initializes Viper with configuration sources and defaults.
// Caller must hold loadMu.
func initViperLocked() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindEnvAliases(v)

	SetDefaults(v)

	// system -> user -> project; env vars still win over all files
	ConfigSources = mergeConfigFiles(v, configPaths())

	viperInstance = v
	return v
}

// ProjectConfigPath returns the nearest am.toml walking up from the working
// directory, or "" if there is none.
func ProjectConfigPath() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	return findConfigUpwards(dir)
}

func findConfigUpwards(dir string) string {
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// UserConfigPath returns ~/.jobd/am.toml (which may not exist)
func UserConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, UserConfigDirectoryName, ConfigFileName)
}

type sourcedPath struct {
	source ConfigSource
	path   string
}

// configPaths lists config files in precedence order, lowest first
func configPaths() []sourcedPath {
	paths := []sourcedPath{{SourceSystem, SystemConfigPath}}
	if user := UserConfigPath(); user != "" {
		paths = append(paths, sourcedPath{SourceUser, user})
	}
	if project := ProjectConfigPath(); project != "" {
		paths = append(paths, sourcedPath{SourceProject, project})
	}
	return paths
}

// mergeConfigFiles merges each existing file into v in order and returns the
// file that supplied each key.
func mergeConfigFiles(v *viper.Viper, paths []sourcedPath) map[string]SourceInfo {
	sources := make(map[string]SourceInfo)
	for _, p := range paths {
		if _, err := os.Stat(p.path); err != nil {
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(p.path)
		tempViper.SetConfigType("toml")
		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}

		// MergeConfigMap keeps file values below env vars in precedence
		if err := v.MergeConfigMap(tempViper.AllSettings()); err != nil {
			continue
		}
		for _, key := range tempViper.AllKeys() {
			sources[key] = SourceInfo{Source: p.source, Path: p.path}
		}
	}
	return sources
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	return GetViper().Get(key)
}

// GetString returns a configuration value as string using dot notation
func GetString(key string) string {
	return GetViper().GetString(key)
}
