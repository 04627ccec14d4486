package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir        string `toml:"data_dir"`
	LogDir         string `toml:"log_dir"`
	DictionaryPath string `toml:"dictionary_path"`
}

// API contains connection settings for the card backend, which also hosts
// the translation endpoint.
type API struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Translation contains language pair settings for the translation provider.
type Translation struct {
	SourceLang string `toml:"source_lang"`
	TargetLang string `toml:"target_lang"`
}

// Bridge contains settings for the WebSocket bridge the in-page script
// connects to.
type Bridge struct {
	Listen         string   `toml:"listen"`
	Path           string   `toml:"path"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Engine contains timing knobs for the caption engine and lifecycle.
type Engine struct {
	CaptionPollMS        int    `toml:"caption_poll_ms"`
	DoubleActivationMS   int    `toml:"double_activation_ms"`
	PlayerWaitSeconds    int    `toml:"player_wait_seconds"`
	PlayerPollMS         int    `toml:"player_poll_ms"`
	NavigationPollMS     int    `toml:"navigation_poll_ms"`
	NavigationSettleMS   int    `toml:"navigation_settle_ms"`
	WatchPathPrefix      string `toml:"watch_path_prefix"`
	Provider             string `toml:"provider"`
	SubmitTimeoutSeconds int    `toml:"submit_timeout_seconds"`
}

// Lookup contains tooltip lookup cache settings.
type Lookup struct {
	CacheSize       int `toml:"cache_size"`
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`
}

// Segmentation selects the statistical segmentation engine.
type Segmentation struct {
	Engine         string `toml:"engine"`
	DictionaryPath string `toml:"dictionary_path"`
}

// Storage contains key-value storage settings.
type Storage struct {
	PollIntervalMS int `toml:"poll_interval_ms"`
}

// Queue contains offline card queue settings.
type Queue struct {
	SyncIntervalSeconds int `toml:"sync_interval_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	CardCreated    bool   `toml:"card_created"`
	CardQueued     bool   `toml:"card_queued"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for captionminer.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and dictionary locations
//   - API: card backend URL, token, and timeout
//   - Translation: source/target language pair
//   - Bridge: WebSocket endpoint for the in-page script
//   - Engine: caption polling, debounce, and lifecycle timing
//   - Lookup: tooltip lookup cache
//   - Segmentation: statistical segmenter selection
//   - Storage: key-value change polling
//   - Queue: offline card sync cadence
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Translation   Translation   `toml:"translation"`
	Bridge        Bridge        `toml:"bridge"`
	Engine        Engine        `toml:"engine"`
	Lookup        Lookup        `toml:"lookup"`
	Segmentation  Segmentation  `toml:"segmentation"`
	Storage       Storage       `toml:"storage"`
	Queue         Queue         `toml:"queue"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("captionminer.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StoragePath returns the key-value storage database location.
func (c *Config) StoragePath() string {
	return filepath.Join(c.Paths.DataDir, "storage.db")
}

// QueuePath returns the offline card queue database location.
func (c *Config) QueuePath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "captionminer.sock")
}

// LockPath returns the daemon single-instance lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "captionminerd.lock")
}

// CaptionPollInterval returns the caption safety-net polling interval.
func (c *Config) CaptionPollInterval() time.Duration {
	return millis(c.Engine.CaptionPollMS)
}

// DoubleActivationWindow returns how long a single activation waits for a
// second one before committing.
func (c *Config) DoubleActivationWindow() time.Duration {
	return millis(c.Engine.DoubleActivationMS)
}

// PlayerWaitTimeout returns the bounded wait for the host player element.
func (c *Config) PlayerWaitTimeout() time.Duration {
	return time.Duration(c.Engine.PlayerWaitSeconds) * time.Second
}

// PlayerPollInterval returns how often the player wait re-checks the host.
func (c *Config) PlayerPollInterval() time.Duration {
	return millis(c.Engine.PlayerPollMS)
}

// NavigationPollInterval returns how often the host location is polled.
func (c *Config) NavigationPollInterval() time.Duration {
	return millis(c.Engine.NavigationPollMS)
}

// NavigationSettleDelay returns the pause between a navigation and re-initialization.
func (c *Config) NavigationSettleDelay() time.Duration {
	return millis(c.Engine.NavigationSettleMS)
}

// SubmitTimeout bounds a single card submission including enrichment.
func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Engine.SubmitTimeoutSeconds) * time.Second
}

// APITimeout returns the HTTP timeout for backend calls.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// StoragePollInterval returns the fallback polling interval for storage changes.
func (c *Config) StoragePollInterval() time.Duration {
	return millis(c.Storage.PollIntervalMS)
}

// QueueSyncInterval returns the offline queue sync cadence; zero disables it.
func (c *Config) QueueSyncInterval() time.Duration {
	return time.Duration(c.Queue.SyncIntervalSeconds) * time.Second
}

// LookupCacheTTL returns the lifetime of cached tooltip lookups.
func (c *Config) LookupCacheTTL() time.Duration {
	return time.Duration(c.Lookup.CacheTTLSeconds) * time.Second
}

func millis(value int) time.Duration {
	return time.Duration(value) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
