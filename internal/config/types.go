package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("30s", "5m"). Environment variables
// override a subset of fields after the file is decoded, see ApplyEnv.
type Config struct {
	Target   TargetConfig   `json:"target"`
	Telegram TelegramConfig `json:"telegram"`

	// CheckIntervalSeconds is the period between checks (default 300).
	// Ignored when Schedule is set.
	CheckIntervalSeconds int `json:"check_interval_seconds,omitempty"`
	// Schedule is an optional cron expression, Go duration or HH:MM interval.
	Schedule string `json:"schedule,omitempty"`
	// Timezone is an IANA name used for cron schedules and message timestamps.
	Timezone string `json:"timezone,omitempty"`

	Fetch   FetchConfig    `json:"fetch"`
	Logging LoggingConfig  `json:"logging"`
	Storage *StorageConfig `json:"storage,omitempty"`
}

type TargetConfig struct {
	URL          string `json:"url"`
	SearchString string `json:"search_string"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ChannelID is a numeric chat id ("-100123...") or a public "@username".
	ChannelID string `json:"channel_id"`
	ThreadID  int    `json:"thread_id,omitempty"`
	// RatePerSec caps outgoing Bot API calls (default 1).
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// APIURL overrides the Bot API endpoint (local bot API server).
	APIURL  string `json:"api_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// FetchConfig selects how the page is retrieved.
//
// Defaults (when fields are omitted/zero):
//   - strategy: "http"
//   - timeout: "30s"
//   - max_body_bytes: 8 MiB
//   - browser.settle_delay: "5s"
//   - browser.headless: true
type FetchConfig struct {
	Strategy     string        `json:"strategy,omitempty"`
	Timeout      string        `json:"timeout,omitempty"`
	UserAgent    string        `json:"user_agent,omitempty"`
	MaxBodyBytes int64         `json:"max_body_bytes,omitempty"`
	TextOnly     bool          `json:"text_only,omitempty"`
	Browser      BrowserConfig `json:"browser"`
}

type BrowserConfig struct {
	SettleDelay string `json:"settle_delay,omitempty"`
	ChromePath  string `json:"chrome_path,omitempty"`
	Headless    *bool  `json:"headless,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the optional check history.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./pagewatch.db", "retention": "720h" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Retention   string `json:"retention,omitempty"`
}

// DefaultCheckIntervalSeconds is used when check_interval_seconds is omitted.
const DefaultCheckIntervalSeconds = 300

// Default returns the configuration used as the decode base, so omitted
// keys keep these values.
func Default() *Config {
	return &Config{
		CheckIntervalSeconds: DefaultCheckIntervalSeconds,
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// IsHeadless reports the effective browser headless flag.
func (b BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}
