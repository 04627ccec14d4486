package config

import (
	"fmt"
	"os"
	"strings"

	"captionminer/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeTranslation()
	c.normalizeBridge()
	c.normalizeEngine()
	if err := c.normalizeSegmentation(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.DictionaryPath, err = expandPath(strings.TrimSpace(c.Paths.DictionaryPath)); err != nil {
		return fmt.Errorf("paths.dictionary_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	if value, ok := os.LookupEnv("CAPTIONMINER_API_URL"); ok && strings.TrimSpace(value) != "" {
		c.API.BaseURL = value
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultAPIBaseURL
	}
	if value, ok := os.LookupEnv("CAPTIONMINER_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.API.Token = value
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = defaultAPITimeoutSeconds
	}
}

func (c *Config) normalizeTranslation() {
	c.Translation.SourceLang = normalizeLang(c.Translation.SourceLang, defaultSourceLang)
	c.Translation.TargetLang = normalizeLang(c.Translation.TargetLang, defaultTargetLang)
}

// normalizeLang reduces names and tags such as "Chinese" or "zh-Hans" to a
// base code. Unrecognized values are kept lower-cased for the backend to judge.
func normalizeLang(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	if code := language.ToISO2(value); code != "" {
		return code
	}
	return value
}

func (c *Config) normalizeBridge() {
	c.Bridge.Listen = strings.TrimSpace(c.Bridge.Listen)
	if c.Bridge.Listen == "" {
		c.Bridge.Listen = defaultBridgeListen
	}
	c.Bridge.Path = strings.TrimSpace(c.Bridge.Path)
	if c.Bridge.Path == "" {
		c.Bridge.Path = defaultBridgePath
	}
	if !strings.HasPrefix(c.Bridge.Path, "/") {
		c.Bridge.Path = "/" + c.Bridge.Path
	}
	origins := make([]string, 0, len(c.Bridge.AllowedOrigins))
	for _, origin := range c.Bridge.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	c.Bridge.AllowedOrigins = origins
}

func (c *Config) normalizeEngine() {
	c.Engine.WatchPathPrefix = strings.TrimSpace(c.Engine.WatchPathPrefix)
	if c.Engine.WatchPathPrefix == "" {
		c.Engine.WatchPathPrefix = defaultWatchPathPrefix
	}
	c.Engine.Provider = strings.ToLower(strings.TrimSpace(c.Engine.Provider))
	if c.Engine.Provider == "" {
		c.Engine.Provider = defaultProvider
	}
}

func (c *Config) normalizeSegmentation() error {
	c.Segmentation.Engine = strings.ToLower(strings.TrimSpace(c.Segmentation.Engine))
	if c.Segmentation.Engine == "" {
		c.Segmentation.Engine = defaultSegmentationEngine
	}
	var err error
	if c.Segmentation.DictionaryPath, err = expandPath(strings.TrimSpace(c.Segmentation.DictionaryPath)); err != nil {
		return fmt.Errorf("segmentation.dictionary_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	if value, ok := os.LookupEnv("CAPTIONMINER_NTFY_TOPIC"); ok && strings.TrimSpace(value) != "" {
		c.Notifications.NtfyTopic = value
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
