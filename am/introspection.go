package am

import (
	"os"
	"sort"
	"strings"

	"github.com/teranos/jobd/errors"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/jobd/am.toml
	SourceUser        ConfigSource = "user"        // ~/.jobd/am.toml
	SourceProject     ConfigSource = "project"     // nearest am.toml
	SourceEnvironment ConfigSource = "environment" // JOBD_* env vars
)

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string // File path or environment variable name
}

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"`
}

// GetConfigIntrospection returns every effective setting with its origin,
// sorted by key.
func GetConfigIntrospection() ([]SettingInfo, error) {
	if _, err := Load(); err != nil {
		return nil, errors.Wrap(err, "failed to load config for introspection")
	}

	v := GetViper()
	loadMu.Lock()
	sources := make(map[string]SourceInfo, len(ConfigSources))
	for k, s := range ConfigSources {
		sources[k] = s
	}
	loadMu.Unlock()

	keys := v.AllKeys()
	sort.Strings(keys)

	settings := make([]SettingInfo, 0, len(keys))
	for _, key := range keys {
		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sources[key]; ok {
			info = si
		}
		if envKey, ok := envOverride(key); ok {
			info = SourceInfo{Source: SourceEnvironment, Path: envKey}
		}

		settings = append(settings, SettingInfo{
			Key:        key,
			Value:      v.Get(key),
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
	return settings, nil
}

// envOverride reports the environment variable that overrides key, if set
func envOverride(key string) (string, bool) {
	envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if _, ok := os.LookupEnv(envKey); ok {
		return envKey, true
	}
	return "", false
}
