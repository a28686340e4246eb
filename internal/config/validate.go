package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"pagewatch/internal/fetch"
	"pagewatch/internal/storage"
	"pagewatch/internal/task/scheduler"
	kit "pagewatch/internal/transport"
	logx "pagewatch/pkg/logx"
)

// ValidateOptions tunes Validate for the run mode.
type ValidateOptions struct {
	// RequireTelegram is false for the one-shot diagnostic, which never notifies.
	RequireTelegram bool
}

// Validate reports every invalid field at once. The result unwraps (errors.Join)
// into *Error values.
func Validate(cfg *Config, opts ValidateOptions) error {
	if cfg == nil {
		return &Error{Reason: "config is nil"}
	}
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &Error{Field: field, Reason: fmt.Sprintf(format, args...)})
	}
	dur := func(field, raw string) {
		if _, err := ParseDurationField(field, raw); err != nil {
			errs = append(errs, err)
		}
	}

	// target
	if u := strings.TrimSpace(cfg.Target.URL); u == "" {
		add("target.url", "required (or set %s)", EnvWebsiteURL)
	} else if pu, err := url.Parse(u); err != nil || (pu.Scheme != "http" && pu.Scheme != "https") || pu.Host == "" {
		add("target.url", "must be an absolute http(s) URL, got %q", u)
	}
	if cfg.Target.SearchString == "" {
		add("target.search_string", "required (or set %s)", EnvSearchString)
	}

	// telegram
	if opts.RequireTelegram {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			add("telegram.token", "required (or set %s)", EnvBotToken)
		}
		if strings.TrimSpace(cfg.Telegram.ChannelID) == "" {
			add("telegram.channel_id", "required (or set %s)", EnvChannelID)
		}
	}
	if strings.TrimSpace(cfg.Telegram.ChannelID) != "" {
		if _, err := kit.ParseChatTarget(cfg.Telegram.ChannelID); err != nil {
			add("telegram.channel_id", "%v", err)
		}
	}
	if cfg.Telegram.ThreadID < 0 {
		add("telegram.thread_id", "must be >= 0")
	}
	if cfg.Telegram.RatePerSec < 0 {
		add("telegram.rate_per_sec", "must be >= 0")
	}
	if raw := strings.TrimSpace(cfg.Telegram.APIURL); raw != "" {
		if pu, err := url.Parse(raw); err != nil || pu.Host == "" {
			add("telegram.api_url", "must be an absolute URL, got %q", raw)
		}
	}
	dur("telegram.timeout", cfg.Telegram.Timeout)

	// schedule
	if strings.TrimSpace(cfg.Schedule) != "" {
		if _, err := scheduler.ParseSchedule(cfg.Schedule); err != nil {
			add("schedule", "%v", err)
		}
	} else if cfg.CheckIntervalSeconds < 1 {
		add("check_interval_seconds", "must be >= 1, got %d", cfg.CheckIntervalSeconds)
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("timezone", "unknown location %q", tz)
		}
	}

	// fetch
	if !fetch.ValidStrategy(cfg.Fetch.Strategy) {
		add("fetch.strategy", "unknown strategy %q (use %q or %q)", cfg.Fetch.Strategy, fetch.StrategyHTTP, fetch.StrategyBrowser)
	}
	if cfg.Fetch.MaxBodyBytes < 0 {
		add("fetch.max_body_bytes", "must be >= 0")
	}
	dur("fetch.timeout", cfg.Fetch.Timeout)
	dur("fetch.browser.settle_delay", cfg.Fetch.Browser.SettleDelay)

	// logging
	if !logx.ValidLevel(cfg.Logging.Level) {
		add("logging.level", "unknown level %q", cfg.Logging.Level)
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add("logging.file.path", "required when logging.file.enabled=true")
	}

	// storage
	if sc := cfg.Storage; sc != nil {
		if !storage.ValidDriver(sc.Driver) {
			add("storage.driver", "unknown driver %q (use none, file or sqlite)", sc.Driver)
		}
		d := strings.ToLower(strings.TrimSpace(sc.Driver))
		if (d == "sqlite" || d == "sqlite3") && strings.TrimSpace(sc.Path) == "" {
			add("storage.path", "required when storage.driver=sqlite")
		}
		dur("storage.busy_timeout", sc.BusyTimeout)
		dur("storage.retention", sc.Retention)
	}

	return errors.Join(errs...)
}

// EffectiveSchedule returns the schedule string the scheduler should use.
func (c *Config) EffectiveSchedule() string {
	if s := strings.TrimSpace(c.Schedule); s != "" {
		return s
	}
	n := c.CheckIntervalSeconds
	if n <= 0 {
		n = DefaultCheckIntervalSeconds
	}
	return scheduler.EverySeconds(n)
}
