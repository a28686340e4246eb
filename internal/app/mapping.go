package app

import (
	"strings"
	"time"

	"pagewatch/internal/config"
	"pagewatch/internal/fetch"
	"pagewatch/internal/notify"
	"pagewatch/internal/storage"
	kit "pagewatch/internal/transport"
	logx "pagewatch/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapFetchConfig(cfg *config.Config) (fetch.Config, error) {
	fc := cfg.Fetch
	timeout, err := config.ParseDurationField("fetch.timeout", fc.Timeout)
	if err != nil {
		return fetch.Config{}, err
	}
	settle, err := config.ParseDurationField("fetch.browser.settle_delay", fc.Browser.SettleDelay)
	if err != nil {
		return fetch.Config{}, err
	}
	return fetch.Config{
		Strategy:     fc.Strategy,
		Timeout:      timeout,
		UserAgent:    strings.TrimSpace(fc.UserAgent),
		MaxBodyBytes: fc.MaxBodyBytes,
		TextOnly:     fc.TextOnly,
		Browser: fetch.BrowserConfig{
			SettleDelay: settle,
			ChromePath:  strings.TrimSpace(fc.Browser.ChromePath),
			Headless:    fc.Browser.IsHeadless(),
		},
	}, nil
}

func mapTelegramConfig(cfg *config.Config) (notify.TelegramConfig, error) {
	timeout, err := config.ParseDurationOrDefault("telegram.timeout", cfg.Telegram.Timeout, 15*time.Second)
	if err != nil {
		return notify.TelegramConfig{}, err
	}
	return notify.TelegramConfig{
		Token:      cfg.Telegram.Token,
		APIURL:     cfg.Telegram.APIURL,
		Timeout:    timeout,
		RatePerSec: cfg.Telegram.RatePerSec,
	}, nil
}

// mapChannel returns the zero target when no channel is configured (diagnostic mode).
func mapChannel(cfg *config.Config) (kit.ChatTarget, error) {
	if strings.TrimSpace(cfg.Telegram.ChannelID) == "" {
		return kit.ChatTarget{}, nil
	}
	t, err := kit.ParseChatTarget(cfg.Telegram.ChannelID)
	if err != nil {
		return kit.ChatTarget{}, &config.Error{Field: "telegram.channel_id", Reason: err.Error()}
	}
	t.ThreadID = cfg.Telegram.ThreadID
	return t, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	retention, err := config.ParseDurationField("storage.retention", sc.Retention)
	if err != nil {
		return storage.Config{}, false, err
	}
	out := storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), Retention: retention}
	if driver == "sqlite" || driver == "sqlite3" {
		if out.Path == "" {
			return storage.Config{}, false, &config.Error{Field: "storage.path", Reason: "required when storage.driver=sqlite"}
		}
		out.BusyTimeout, err = config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
	}
	return out, true, nil
}

func mapLocation(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, &config.Error{Field: "timezone", Reason: err.Error()}
	}
	return loc, nil
}
