package am

import (
	"github.com/spf13/viper"
)

// Default values, mirrored by SetDefaults
const (
	DefaultServerHost       = "0.0.0.0"
	DefaultServerPort       = 8000
	DefaultRateLimit        = 5.0
	DefaultRateLimitBurst   = 10
	DefaultShutdownTimeout  = 30
	DefaultJobsTTLSeconds   = 1800
	DefaultJobsMaxItems     = 200
	DefaultRunTimeoutSecs   = 8.0
	DefaultListLimit        = 20
	DefaultMinScore         = 0.35
	DefaultEdgeThreshold    = 40
	DefaultModelVersion     = "backend-mvp-edge-heuristic-0.5.0"
	DefaultLogLevel         = "info"
	EnvPrefix               = "JOBD"
	ConfigFileName          = "am.toml"
	SystemConfigPath        = "/etc/jobd/am.toml"
	UserConfigDirectoryName = ".jobd"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_per_second", DefaultRateLimit)
	v.SetDefault("server.rate_limit_burst", DefaultRateLimitBurst)
	v.SetDefault("server.shutdown_timeout_seconds", DefaultShutdownTimeout)

	// Jobs
	v.SetDefault("jobs.ttl_seconds", DefaultJobsTTLSeconds)
	v.SetDefault("jobs.max_items", DefaultJobsMaxItems)
	v.SetDefault("jobs.run_timeout_seconds", DefaultRunTimeoutSecs)
	v.SetDefault("jobs.max_concurrent", 0)
	v.SetDefault("jobs.default_list_limit", DefaultListLimit)

	// Detect
	v.SetDefault("detect.min_score", DefaultMinScore)
	v.SetDefault("detect.edge_threshold", DefaultEdgeThreshold)
	v.SetDefault("detect.model_version", DefaultModelVersion)

	// Log
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", DefaultLogLevel)
}

// BindEnvAliases binds conventional unprefixed variables used by container
// platforms, in addition to the JOBD_* names AutomaticEnv resolves.
func BindEnvAliases(v *viper.Viper) {
	v.BindEnv("server.host", "JOBD_SERVER_HOST", "HOST")
	v.BindEnv("server.port", "JOBD_SERVER_PORT", "PORT")
}

// Defaults returns a Config holding only the built-in defaults
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		// defaults always decode
		panic(err)
	}
	return cfg
}
