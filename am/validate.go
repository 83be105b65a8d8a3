package am

import (
	"strings"

	"github.com/teranos/jobd/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitPerSecond < 0 {
		return errors.Newf("server.rate_limit_per_second must be >= 0, got %f", c.Server.RateLimitPerSecond)
	}
	if c.Server.RateLimitPerSecond > 0 && c.Server.RateLimitBurst < 1 {
		return errors.Newf("server.rate_limit_burst must be >= 1 when rate limiting is enabled, got %d", c.Server.RateLimitBurst)
	}
	if c.Server.ShutdownTimeoutSeconds < 0 {
		return errors.Newf("server.shutdown_timeout_seconds must be >= 0, got %d", c.Server.ShutdownTimeoutSeconds)
	}

	// Jobs: 0 disables the corresponding limit, negative is invalid
	if c.Jobs.TTLSeconds < 0 {
		return errors.Newf("jobs.ttl_seconds must be >= 0, got %d", c.Jobs.TTLSeconds)
	}
	if c.Jobs.MaxItems < 0 {
		return errors.Newf("jobs.max_items must be >= 0, got %d", c.Jobs.MaxItems)
	}
	if c.Jobs.RunTimeoutSeconds < 0 {
		return errors.Newf("jobs.run_timeout_seconds must be >= 0, got %f", c.Jobs.RunTimeoutSeconds)
	}
	if c.Jobs.MaxConcurrent < 0 {
		return errors.Newf("jobs.max_concurrent must be >= 0, got %d", c.Jobs.MaxConcurrent)
	}
	if c.Jobs.DefaultListLimit < 1 || c.Jobs.DefaultListLimit > 100 {
		return errors.Newf("jobs.default_list_limit must be between 1 and 100, got %d", c.Jobs.DefaultListLimit)
	}

	if c.Detect.MinScore < 0 || c.Detect.MinScore > 1 {
		return errors.Newf("detect.min_score must be between 0 and 1, got %f", c.Detect.MinScore)
	}
	if c.Detect.EdgeThreshold < 1 || c.Detect.EdgeThreshold > 255 {
		return errors.Newf("detect.edge_threshold must be between 1 and 255, got %d", c.Detect.EdgeThreshold)
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.Newf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}

	return nil
}
