package fetch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	logx "pagewatch/pkg/logx"
)

// BrowserFetcher renders the page in a shared headless Chrome process and
// returns the DOM once the configured settle delay has elapsed.
//
// Each Fetch opens a fresh tab; the Chrome process is started lazily and
// recreated if it died. Close terminates it.
type BrowserFetcher struct {
	cfg Config
	log logx.Logger

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

func NewBrowser(cfg Config, log logx.Logger) *BrowserFetcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &BrowserFetcher{cfg: cfg.withDefaults(), log: log}
}

// ensureAllocator lazily starts Chrome. Must be called with f.mu held.
func (f *BrowserFetcher) ensureAllocator() context.Context {
	if f.allocCtx != nil && f.allocCtx.Err() == nil {
		return f.allocCtx
	}
	if f.allocCancel != nil {
		f.allocCancel()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.cfg.Browser.Headless),
		chromedp.Flag("disable-gpu", f.cfg.Browser.Headless),
	)
	if path := strings.TrimSpace(f.cfg.Browser.ChromePath); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	if ua := strings.TrimSpace(f.cfg.UserAgent); ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	f.allocCtx, f.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	f.log.Debug("chrome allocator started", logx.Bool("headless", f.cfg.Browser.Headless))
	return f.allocCtx
}

// resetAllocator tears down Chrome so the next fetch starts a fresh one.
// Must be called with f.mu held.
func (f *BrowserFetcher) resetAllocator() {
	if f.allocCancel != nil {
		f.allocCancel()
	}
	f.allocCtx = nil
	f.allocCancel = nil
}

func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	tabCtx, cancelTab := chromedp.NewContext(f.ensureAllocator())
	defer cancelTab()

	// Bound the whole render by the fetch timeout and the caller's context.
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, f.cfg.Timeout+f.cfg.Browser.SettleDelay)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(url))
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
			// Chrome may have crashed; start over next time.
			f.resetAllocator()
		}
		return "", &Error{URL: url, Err: err}
	}
	if resp != nil && !statusOK(int(resp.Status)) {
		return "", &Error{URL: url, StatusCode: int(resp.Status), Status: strings.TrimSpace(resp.StatusText)}
	}

	var content string
	read := chromedp.OuterHTML("html", &content, chromedp.ByQuery)
	if f.cfg.TextOnly {
		read = chromedp.Text("body", &content, chromedp.ByQuery)
	}
	err = chromedp.Run(tabCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.cfg.Browser.SettleDelay),
		read,
	)
	if err != nil {
		return "", &Error{URL: url, Err: err}
	}

	f.log.Debug("rendered",
		logx.String("url", url),
		logx.Int("bytes", len(content)),
		logx.Duration("took", time.Since(start)),
	)
	return content, nil
}

func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetAllocator()
	return nil
}
