package config

const (
	defaultConfigPath           = "~/.config/captionminer/config.toml"
	defaultDataDir              = "~/.local/share/captionminer"
	defaultLogDir               = "~/.local/share/captionminer/logs"
	defaultDictionaryPath       = "~/.local/share/captionminer/cedict.json"
	defaultAPIBaseURL           = "http://localhost:3000"
	defaultAPITimeoutSeconds    = 10
	defaultSourceLang           = "zh"
	defaultTargetLang           = "en"
	defaultBridgeListen         = "127.0.0.1:7489"
	defaultBridgePath           = "/bridge"
	defaultCaptionPollMS        = 100
	defaultDoubleActivationMS   = 250
	defaultPlayerWaitSeconds    = 10
	defaultPlayerPollMS         = 100
	defaultNavigationPollMS     = 500
	defaultNavigationSettleMS   = 500
	defaultWatchPathPrefix      = "/watch"
	defaultProvider             = "youtube"
	defaultSubmitTimeoutSeconds = 30
	defaultLookupCacheSize      = 256
	defaultLookupCacheTTL       = 300
	defaultSegmentationEngine   = "gse"
	defaultStoragePollMS        = 500
	defaultQueueSyncSeconds     = 300
	defaultNotifyTimeout        = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:        defaultDataDir,
			LogDir:         defaultLogDir,
			DictionaryPath: defaultDictionaryPath,
		},
		API: API{
			BaseURL:        defaultAPIBaseURL,
			TimeoutSeconds: defaultAPITimeoutSeconds,
		},
		Translation: Translation{
			SourceLang: defaultSourceLang,
			TargetLang: defaultTargetLang,
		},
		Bridge: Bridge{
			Listen: defaultBridgeListen,
			Path:   defaultBridgePath,
		},
		Engine: Engine{
			CaptionPollMS:        defaultCaptionPollMS,
			DoubleActivationMS:   defaultDoubleActivationMS,
			PlayerWaitSeconds:    defaultPlayerWaitSeconds,
			PlayerPollMS:         defaultPlayerPollMS,
			NavigationPollMS:     defaultNavigationPollMS,
			NavigationSettleMS:   defaultNavigationSettleMS,
			WatchPathPrefix:      defaultWatchPathPrefix,
			Provider:             defaultProvider,
			SubmitTimeoutSeconds: defaultSubmitTimeoutSeconds,
		},
		Lookup: Lookup{
			CacheSize:       defaultLookupCacheSize,
			CacheTTLSeconds: defaultLookupCacheTTL,
		},
		Segmentation: Segmentation{
			Engine: defaultSegmentationEngine,
		},
		Storage: Storage{
			PollIntervalMS: defaultStoragePollMS,
		},
		Queue: Queue{
			SyncIntervalSeconds: defaultQueueSyncSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			CardCreated:    false,
			CardQueued:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
