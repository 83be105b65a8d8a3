// Package am loads jobd configuration ("am" = the settings jobd "is" running
// with) from defaults, TOML files and JOBD_* environment variables.
package am

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config represents the jobd configuration
type Config struct {
	Server ServerConfig `mapstructure:"server" toml:"server" json:"server" yaml:"server"`
	Jobs   JobsConfig   `mapstructure:"jobs" toml:"jobs" json:"jobs" yaml:"jobs"`
	Detect DetectConfig `mapstructure:"detect" toml:"detect" json:"detect" yaml:"detect"`
	Log    LogConfig    `mapstructure:"log" toml:"log" json:"log" yaml:"log"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host                   string   `mapstructure:"host" toml:"host" json:"host" yaml:"host"`
	Port                   int      `mapstructure:"port" toml:"port" json:"port" yaml:"port"`
	AllowedOrigins         []string `mapstructure:"allowed_origins" toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
	RateLimitPerSecond     float64  `mapstructure:"rate_limit_per_second" toml:"rate_limit_per_second" json:"rate_limit_per_second" yaml:"rate_limit_per_second"` // per client; 0 disables
	RateLimitBurst         int      `mapstructure:"rate_limit_burst" toml:"rate_limit_burst" json:"rate_limit_burst" yaml:"rate_limit_burst"`
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds" toml:"shutdown_timeout_seconds" json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// JobsConfig configures the in-memory job queue
type JobsConfig struct {
	TTLSeconds        int     `mapstructure:"ttl_seconds" toml:"ttl_seconds" json:"ttl_seconds" yaml:"ttl_seconds"` // 0 keeps finished jobs until capacity eviction
	MaxItems          int     `mapstructure:"max_items" toml:"max_items" json:"max_items" yaml:"max_items"`         // 0 = no cap
	RunTimeoutSeconds float64 `mapstructure:"run_timeout_seconds" toml:"run_timeout_seconds" json:"run_timeout_seconds" yaml:"run_timeout_seconds"`
	MaxConcurrent     int     `mapstructure:"max_concurrent" toml:"max_concurrent" json:"max_concurrent" yaml:"max_concurrent"` // 0 = unlimited
	DefaultListLimit  int     `mapstructure:"default_list_limit" toml:"default_list_limit" json:"default_list_limit" yaml:"default_list_limit"`
}

// DetectConfig configures the detect-objects heuristic
type DetectConfig struct {
	MinScore      float64 `mapstructure:"min_score" toml:"min_score" json:"min_score" yaml:"min_score"`
	EdgeThreshold int     `mapstructure:"edge_threshold" toml:"edge_threshold" json:"edge_threshold" yaml:"edge_threshold"`
	ModelVersion  string  `mapstructure:"model_version" toml:"model_version" json:"model_version" yaml:"model_version"`
}

// LogConfig configures the process logger
type LogConfig struct {
	JSON  bool   `mapstructure:"json" toml:"json" json:"json" yaml:"json"`
	Level string `mapstructure:"level" toml:"level" json:"level" yaml:"level"`
}

// Addr returns host:port for the listener
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ShutdownTimeout returns the graceful shutdown budget
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// TTL returns the retention window for finished jobs
func (j JobsConfig) TTL() time.Duration {
	return time.Duration(j.TTLSeconds) * time.Second
}

// RunTimeout returns the per-job execution budget
func (j JobsConfig) RunTimeout() time.Duration {
	return time.Duration(j.RunTimeoutSeconds * float64(time.Second))
}

// String returns a short summary of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Server: %s, Jobs: {TTL: %ds, MaxItems: %d, RunTimeout: %.1fs}}",
		c.Server.Addr(), c.Jobs.TTLSeconds, c.Jobs.MaxItems, c.Jobs.RunTimeoutSeconds)
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
