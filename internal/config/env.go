package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvWebsiteURL    = "WEBSITE_URL"
	EnvSearchString  = "SEARCH_STRING"
	EnvBotToken      = "TELEGRAM_BOT_TOKEN"
	EnvChannelID     = "TELEGRAM_CHANNEL_ID"
	EnvCheckInterval = "CHECK_INTERVAL_SECONDS"
	EnvFetchStrategy = "FETCH_STRATEGY"
	EnvLogLevel      = "LOG_LEVEL"

	// EnvConfigPath names the config file; it is not a config value itself.
	EnvConfigPath = "PAGEWATCH_CONFIG"
)

// DefaultPath is read when PAGEWATCH_CONFIG is unset.
const DefaultPath = "./config.yaml"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set win over the file. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &Error{Field: path, Reason: err.Error()}
	}
	return nil
}

// ConfigPath resolves the config file location from PAGEWATCH_CONFIG.
// explicit is false when the default was used; only then may the file be
// missing, since the environment alone can carry every setting.
func ConfigPath(lookup LookupFunc) (path string, explicit bool) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvConfigPath); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), true
	}
	return DefaultPath, false
}

// ApplyEnv overlays environment overrides on cfg. Empty values are ignored.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if cfg == nil {
		return nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvWebsiteURL); ok {
		cfg.Target.URL = v
	}
	// The needle is matched verbatim; only surrounding newlines are dropped.
	if v, ok := lookup(EnvSearchString); ok && strings.TrimSpace(v) != "" {
		cfg.Target.SearchString = strings.Trim(v, "\r\n")
	}
	if v, ok := get(EnvBotToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvChannelID); ok {
		cfg.Telegram.ChannelID = v
	}
	if v, ok := get(EnvFetchStrategy); ok {
		cfg.Fetch.Strategy = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	if v, ok := get(EnvCheckInterval); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Field: EnvCheckInterval, Reason: "must be an integer number of seconds, got " + strconv.Quote(v)}
		}
		cfg.CheckIntervalSeconds = n
	}
	return nil
}
