package config

import "time"

// Default values for configuration.
const (
	// Server defaults
	DefaultServerHost      = "0.0.0.0"
	DefaultServerPort      = 8080
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultCycleTTL        = 1 * time.Hour
	DefaultCleanupInterval = 10 * time.Minute

	// Telegram defaults
	DefaultParseMode      = "Markdown"
	DefaultSendRate       = 25.0
	DefaultSendBurst      = 5
	DefaultUpdatesTimeout = 60

	// Source defaults
	DefaultSourceKind  = SourceKindHTTP
	DefaultHTTPTimeout = 15 * time.Second
	DefaultMaxRetries  = 3

	// Refresh defaults
	DefaultRefreshInterval = 1000 * time.Second
	DefaultRetainDays      = 1
	DefaultStateFile       = "timetable_state.json"

	// Dispatch defaults
	DefaultDispatchWorkers = 4
	DefaultRenderCacheSize = 512

	// Antispam defaults
	DefaultAntispamMaxUpdates      = 5
	DefaultAntispamWindow          = 10 * time.Second
	DefaultAntispamBanDuration     = 2 * time.Minute
	DefaultAntispamCleanupInterval = 10 * time.Second

	// Storage defaults
	DefaultDataDir = "data"

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// Daemon defaults
	DefaultPIDFile = "timetable.pid"
	DefaultLogFile = "timetable.log"
	DefaultWorkDir = "./"
)

// Default возвращает конфигурацию со значениями по умолчанию.
func Default() *Config {
	return &Config{
		Server: Server{
			Host:            DefaultServerHost,
			Port:            DefaultServerPort,
			ShutdownTimeout: DefaultShutdownTimeout,
			CycleTTL:        DefaultCycleTTL,
		},
		Telegram: Telegram{
			ParseMode:      DefaultParseMode,
			SendRate:       DefaultSendRate,
			SendBurst:      DefaultSendBurst,
			UpdatesTimeout: DefaultUpdatesTimeout,
		},
		Source: Source{
			Kind:        DefaultSourceKind,
			HTTPTimeout: DefaultHTTPTimeout,
			MaxRetries:  DefaultMaxRetries,
		},
		Refresh: Refresh{
			Interval:   DefaultRefreshInterval,
			RunOnStart: true,
			RetainDays: DefaultRetainDays,
			StateFile:  DefaultStateFile,
		},
		Dispatch: Dispatch{
			Workers:         DefaultDispatchWorkers,
			RenderCacheSize: DefaultRenderCacheSize,
		},
		Antispam: Antispam{
			MaxUpdates:      DefaultAntispamMaxUpdates,
			Window:          DefaultAntispamWindow,
			BanDuration:     DefaultAntispamBanDuration,
			CleanupInterval: DefaultAntispamCleanupInterval,
		},
		Storage: Storage{
			DataDir: DefaultDataDir,
		},
		Logging: Logging{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Daemon: Daemon{
			PIDFile: DefaultPIDFile,
			LogFile: DefaultLogFile,
			WorkDir: DefaultWorkDir,
		},
	}
}
