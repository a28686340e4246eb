package config

import (
	"reflect"
	"sort"
	"strings"

	logx "pagewatch/pkg/logx"
)

// Change summarizes a reload.
type Change struct {
	// Sections lists changed top-level sections, sorted.
	Sections []string
	// Attrs are safe to log (never the bot token).
	Attrs []logx.Field
	// RestartRequired is set when a section other than logging changed;
	// only logging is applied at runtime.
	RestartRequired bool
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// Summarize compares two configs section by section.
func Summarize(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	if oldCfg.Target != newCfg.Target {
		ch.Sections = append(ch.Sections, "target")
		ch.Attrs = append(ch.Attrs,
			logx.String("target.url", newCfg.Target.URL),
			logx.Int("target.search_len", len(newCfg.Target.SearchString)),
		)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	tokenChanged := strings.TrimSpace(ot.Token) != strings.TrimSpace(nt.Token)
	ot.Token, nt.Token = "", ""
	if tokenChanged || ot != nt {
		ch.Sections = append(ch.Sections, "telegram")
		ch.Attrs = append(ch.Attrs,
			logx.String("telegram.channel_id", nt.ChannelID),
			logx.Bool("telegram.token_changed", tokenChanged),
		)
	}

	if oldCfg.EffectiveSchedule() != newCfg.EffectiveSchedule() ||
		strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		ch.Sections = append(ch.Sections, "schedule")
		ch.Attrs = append(ch.Attrs,
			logx.String("schedule", newCfg.EffectiveSchedule()),
			logx.String("timezone", newCfg.Timezone),
		)
	}

	if !reflect.DeepEqual(oldCfg.Fetch, newCfg.Fetch) {
		ch.Sections = append(ch.Sections, "fetch")
		ch.Attrs = append(ch.Attrs, logx.String("fetch.strategy", newCfg.Fetch.Strategy))
	}

	if oldCfg.Logging != newCfg.Logging {
		ch.Sections = append(ch.Sections, "logging")
		ch.Attrs = append(ch.Attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		ch.Sections = append(ch.Sections, "storage")
		driver := ""
		if newCfg.Storage != nil {
			driver = newCfg.Storage.Driver
		}
		ch.Attrs = append(ch.Attrs, logx.String("storage.driver", driver))
	}

	sort.Strings(ch.Sections)
	for _, s := range ch.Sections {
		if s != "logging" {
			ch.RestartRequired = true
			break
		}
	}
	return ch
}
