package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(kv map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func validConfig() *Config {
	cfg := Default()
	cfg.Target = TargetConfig{URL: "https://example.com/status", SearchString: "All systems operational"}
	cfg.Telegram = TelegramConfig{Token: "123:abc", ChannelID: "-100123"}
	return cfg
}

func TestParseYAMLAndJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "config.yaml",
			content: `
target:
  url: https://example.com
  search_string: "ok"
telegram:
  token: "t"
  channel_id: "@status"
check_interval_seconds: 60
fetch:
  strategy: browser
  browser:
    settle_delay: 2s
`,
		},
		{
			name:    "json",
			file:    "config.json",
			content: `{"target":{"url":"https://example.com","search_string":"ok"},"telegram":{"token":"t","channel_id":"@status"},"check_interval_seconds":60,"fetch":{"strategy":"browser","browser":{"settle_delay":"2s"}}}`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewConfigManager(writeFile(t, tt.file, tt.content))
			m.SetLookup(envMap(nil))
			cfg, err := m.Parse()
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if cfg.Target.URL != "https://example.com" || cfg.Target.SearchString != "ok" {
				t.Fatalf("target = %+v", cfg.Target)
			}
			if cfg.CheckIntervalSeconds != 60 || cfg.Fetch.Strategy != "browser" || cfg.Fetch.Browser.SettleDelay != "2s" {
				t.Fatalf("cfg = %+v", cfg)
			}
			// omitted keys keep defaults
			if !cfg.Logging.Console || cfg.Logging.Level != "info" || !cfg.Fetch.Browser.IsHeadless() {
				t.Fatalf("defaults lost: %+v", cfg.Logging)
			}
			if err := Validate(cfg, ValidateOptions{RequireTelegram: true}); err != nil {
				t.Fatalf("Validate: %v", err)
			}
		})
	}
}

func TestParseRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	t.Parallel()
	for name, content := range map[string]string{
		"unknown.json":  `{"target":{"url":"https://x","search":"ok"}}`,
		"unknown.yaml":  "target:\n  url: https://x\nwebsite_url: https://y\n",
		"trailing.json": `{"target":{}} {"target":{}}`,
	} {
		m := NewConfigManager(writeFile(t, name, content))
		m.SetLookup(envMap(nil))
		if _, err := m.Parse(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	env := envMap(map[string]string{
		EnvWebsiteURL:    "https://example.com",
		EnvSearchString:  "ok",
		EnvBotToken:      "t",
		EnvChannelID:     "-100",
		EnvCheckInterval: "120",
	})

	m := NewConfigManager(path)
	m.SetLookup(env)
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for missing file when not allowed")
	}

	m.SetAllowMissing(true)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Target.URL != "https://example.com" || cfg.CheckIntervalSeconds != 120 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if err := Validate(cfg, ValidateOptions{RequireTelegram: true}); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	err := ApplyEnv(cfg, envMap(map[string]string{
		EnvWebsiteURL:    " https://other.example ",
		EnvSearchString:  " spaced needle \n",
		EnvChannelID:     "@other",
		EnvFetchStrategy: "browser",
		EnvLogLevel:      "debug",
		EnvBotToken:      "",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Target.URL != "https://other.example" {
		t.Fatalf("url = %q", cfg.Target.URL)
	}
	if cfg.Target.SearchString != " spaced needle " {
		t.Fatalf("search = %q", cfg.Target.SearchString)
	}
	if cfg.Telegram.ChannelID != "@other" || cfg.Fetch.Strategy != "browser" || cfg.Logging.Level != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("empty env value must not override, token = %q", cfg.Telegram.Token)
	}
}

func TestApplyEnvBadInterval(t *testing.T) {
	t.Parallel()
	err := ApplyEnv(validConfig(), envMap(map[string]string{EnvCheckInterval: "five"}))
	var ce *Error
	if !errors.As(err, &ce) || ce.Field != EnvCheckInterval {
		t.Fatalf("err = %v, want *Error for %s", err, EnvCheckInterval)
	}
}

func TestConfigPath(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name         string
		env          map[string]string
		wantPath     string
		wantExplicit bool
	}{
		{"unset", nil, DefaultPath, false},
		{"blank", map[string]string{EnvConfigPath: "  "}, DefaultPath, false},
		{"set", map[string]string{EnvConfigPath: " /etc/pagewatch/config.json "}, "/etc/pagewatch/config.json", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path, explicit := ConfigPath(envMap(tc.env))
			if path != tc.wantPath || explicit != tc.wantExplicit {
				t.Fatalf("ConfigPath() = %q, %v; want %q, %v", path, explicit, tc.wantPath, tc.wantExplicit)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}

	const key = "PAGEWATCH_TEST_DOTENV"
	path := writeFile(t, ".env", key+"=from-file\n")
	t.Setenv(key, "")
	os.Unsetenv(key)
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Fatalf("%s = %q", key, got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(c *Config)
		opts    ValidateOptions
		fields  []string
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, opts: ValidateOptions{RequireTelegram: true}},
		{
			name:    "missing required",
			mutate:  func(c *Config) { c.Target = TargetConfig{}; c.Telegram = TelegramConfig{} },
			opts:    ValidateOptions{RequireTelegram: true},
			fields:  []string{"target.url", "target.search_string", "telegram.token", "telegram.channel_id"},
			wantErr: true,
		},
		{
			name:   "telegram optional for diagnostics",
			mutate: func(c *Config) { c.Telegram = TelegramConfig{} },
		},
		{
			name:    "bad url scheme",
			mutate:  func(c *Config) { c.Target.URL = "ftp://example.com" },
			fields:  []string{"target.url"},
			wantErr: true,
		},
		{
			name:    "bad channel",
			mutate:  func(c *Config) { c.Telegram.ChannelID = "status" },
			fields:  []string{"telegram.channel_id"},
			wantErr: true,
		},
		{
			name:    "bad interval",
			mutate:  func(c *Config) { c.CheckIntervalSeconds = 0 },
			fields:  []string{"check_interval_seconds"},
			wantErr: true,
		},
		{
			name:   "schedule wins over interval",
			mutate: func(c *Config) { c.CheckIntervalSeconds = 0; c.Schedule = "*/5 * * * *" },
		},
		{
			name: "bad values",
			mutate: func(c *Config) {
				c.Schedule = "sometimes"
				c.Timezone = "Nowhere/City"
				c.Fetch.Strategy = "carrier-pigeon"
				c.Fetch.Timeout = "soon"
				c.Logging.Level = "loud"
				c.Storage = &StorageConfig{Driver: "sqlite"}
			},
			fields:  []string{"schedule", "timezone", "fetch.strategy", "fetch.timeout", "logging.level", "storage.path"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg, tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
			for _, f := range tt.fields {
				if !strings.Contains(err.Error(), f+":") {
					t.Fatalf("error %q does not mention %s", err, f)
				}
			}
			if err != nil {
				var ce *Error
				if !errors.As(err, &ce) {
					t.Fatalf("error %v does not unwrap to *Error", err)
				}
			}
		})
	}
}

func TestEffectiveSchedule(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	if got := cfg.EffectiveSchedule(); got != "300s" {
		t.Fatalf("default schedule = %q", got)
	}
	cfg.CheckIntervalSeconds = 45
	if got := cfg.EffectiveSchedule(); got != "45s" {
		t.Fatalf("schedule = %q", got)
	}
	cfg.Schedule = "@hourly"
	if got := cfg.EffectiveSchedule(); got != "@hourly" {
		t.Fatalf("schedule = %q", got)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	oldCfg := validConfig()
	newCfg := validConfig()
	if ch := Summarize(oldCfg, newCfg); !ch.Empty() {
		t.Fatalf("identical configs changed: %v", ch.Sections)
	}

	newCfg.Logging.Level = "debug"
	ch := Summarize(oldCfg, newCfg)
	if len(ch.Sections) != 1 || ch.Sections[0] != "logging" || ch.RestartRequired {
		t.Fatalf("logging change = %+v", ch)
	}

	newCfg.Telegram.Token = "other"
	newCfg.CheckIntervalSeconds = 10
	ch = Summarize(oldCfg, newCfg)
	want := []string{"logging", "schedule", "telegram"}
	if strings.Join(ch.Sections, ",") != strings.Join(want, ",") || !ch.RestartRequired {
		t.Fatalf("sections = %v, restart = %v", ch.Sections, ch.RestartRequired)
	}
}

func TestLoadRunsValidator(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "config.json", `{"target":{"url":"https://example.com","search_string":"ok"}}`))
	m.SetLookup(envMap(nil))
	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		return Validate(cfg, ValidateOptions{RequireTelegram: true})
	})
	if _, err := m.Load(context.Background()); err == nil {
		t.Fatal("expected validation error")
	}
	if m.Get() != nil {
		t.Fatal("rejected config must not be committed")
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"target":{"url":"https://example.com","search_string":"ok"},"logging":{"level":"info","console":true}}`)
	m := NewConfigManager(path)
	m.SetLookup(envMap(nil))
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// give the watcher time to register the directory
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"target":{"url":"https://example.com","search_string":"ok"},"logging":{"level":"debug","console":true}}`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level = %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
	cancel()
	<-done
}
