package testsupport

import (
	"path/filepath"
	"testing"

	"captionminer/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.DictionaryPath = ""
	cfgVal.API.BaseURL = "http://127.0.0.1:1"
	cfgVal.API.Token = "test-token"
	cfgVal.Bridge.Listen = "127.0.0.1:0"
	cfgVal.Segmentation.Engine = "none"
	cfgVal.Engine.CaptionPollMS = 10
	cfgVal.Engine.DoubleActivationMS = 20
	cfgVal.Engine.PlayerWaitSeconds = 1
	cfgVal.Engine.PlayerPollMS = 10
	cfgVal.Engine.NavigationPollMS = 20
	cfgVal.Engine.NavigationSettleMS = 0
	cfgVal.Storage.PollIntervalMS = 20
	cfgVal.Queue.SyncIntervalSeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIBaseURL points the card and translation clients at url.
func WithAPIBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.BaseURL = url
	}
}

// WithDictionary sets the dictionary path.
func WithDictionary(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.DictionaryPath = path
	}
}

// WithQueueSync enables periodic offline queue sync.
func WithQueueSync(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.SyncIntervalSeconds = seconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
