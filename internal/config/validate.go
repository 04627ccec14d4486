package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateSegmentation(); err != nil {
		return err
	}
	if err := c.validateLookup(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPI() error {
	parsed, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https, got %q", c.API.BaseURL)
	}
	return nil
}

func (c *Config) validateEngine() error {
	if err := ensurePositiveMap(map[string]int{
		"engine.caption_poll_ms":        c.Engine.CaptionPollMS,
		"engine.double_activation_ms":   c.Engine.DoubleActivationMS,
		"engine.player_wait_seconds":    c.Engine.PlayerWaitSeconds,
		"engine.player_poll_ms":         c.Engine.PlayerPollMS,
		"engine.navigation_poll_ms":     c.Engine.NavigationPollMS,
		"engine.submit_timeout_seconds": c.Engine.SubmitTimeoutSeconds,
		"storage.poll_interval_ms":      c.Storage.PollIntervalMS,
	}); err != nil {
		return err
	}
	if c.Engine.NavigationSettleMS < 0 {
		return errors.New("engine.navigation_settle_ms must be >= 0")
	}
	if !strings.HasPrefix(c.Engine.WatchPathPrefix, "/") {
		return fmt.Errorf("engine.watch_path_prefix must start with '/', got %q", c.Engine.WatchPathPrefix)
	}
	if c.Queue.SyncIntervalSeconds < 0 {
		return errors.New("queue.sync_interval_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateSegmentation() error {
	switch c.Segmentation.Engine {
	case "gse", "none":
		return nil
	default:
		return fmt.Errorf("segmentation.engine: unsupported value %q (want gse or none)", c.Segmentation.Engine)
	}
}

func (c *Config) validateLookup() error {
	if c.Lookup.CacheSize < 0 {
		return errors.New("lookup.cache_size must be >= 0")
	}
	if c.Lookup.CacheSize > 0 && c.Lookup.CacheTTLSeconds <= 0 {
		return errors.New("lookup.cache_ttl_seconds must be positive when lookup.cache_size is set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
