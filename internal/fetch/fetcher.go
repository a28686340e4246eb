// Package fetch retrieves the current content of the watched page.
//
// Two strategies are available:
//   - "http": a plain GET returning the raw response body
//   - "browser": a headless Chrome render returning the settled DOM
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "pagewatch/pkg/logx"
)

const (
	StrategyHTTP    = "http"
	StrategyBrowser = "browser"
)

// Fetcher produces the textual content of a resource or fails.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Config selects and tunes the fetch strategy.
//
// Defaults (when fields are omitted/zero):
//   - strategy: "http"
//   - timeout: 30s
//   - max_body_bytes: 8 MiB
//   - browser.settle_delay: 5s
type Config struct {
	Strategy     string
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	// TextOnly compares against the visible document text instead of raw HTML.
	TextOnly bool
	Browser  BrowserConfig
}

type BrowserConfig struct {
	SettleDelay time.Duration
	ChromePath  string
	Headless    bool
}

func (c Config) withDefaults() Config {
	c.Strategy = strings.ToLower(strings.TrimSpace(c.Strategy))
	if c.Strategy == "" {
		c.Strategy = StrategyHTTP
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 8 << 20
	}
	if c.Browser.SettleDelay <= 0 {
		c.Browser.SettleDelay = 5 * time.Second
	}
	return c
}

// New builds the fetcher selected by cfg.Strategy.
// Browser fetchers hold a Chrome process; callers should Close them.
func New(cfg Config, log logx.Logger) (Fetcher, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	switch cfg.Strategy {
	case StrategyHTTP:
		return NewHTTP(cfg, log), nil
	case StrategyBrowser:
		return NewBrowser(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown fetch strategy %q (use %q or %q)", cfg.Strategy, StrategyHTTP, StrategyBrowser)
	}
}

// ValidStrategy reports whether s selects a known strategy. Empty means default.
func ValidStrategy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", StrategyHTTP, StrategyBrowser:
		return true
	}
	return false
}

// ErrBodyTooLarge is wrapped in *Error when a response exceeds MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body exceeds max_body_bytes")

// Error is returned when the resource could not be retrieved.
// StatusCode is set for non-2xx responses, Err for transport/navigation failures.
type Error struct {
	URL        string
	StatusCode int
	Status     string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		status := strings.TrimSpace(e.Status)
		if status == "" {
			status = fmt.Sprintf("%d", e.StatusCode)
		}
		return fmt.Sprintf("fetch %s: unexpected status %s", e.URL, status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: failed", e.URL)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err was caused by a deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func statusOK(code int) bool { return code >= 200 && code < 300 }
