package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "pagewatch/pkg/logx"
)

// HTTPFetcher retrieves a resource with a single GET request.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	textOnly  bool
	log       logx.Logger
}

func NewHTTP(cfg Config, log logx.Logger) *HTTPFetcher {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: strings.TrimSpace(cfg.UserAgent),
		maxBody:   cfg.MaxBodyBytes,
		textOnly:  cfg.TextOnly,
		log:       log,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", &Error{URL: url, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &Error{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if !statusOK(resp.StatusCode) {
		// drain a little so keep-alive connections can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return "", &Error{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return "", &Error{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(b)) > f.maxBody {
		// A cut body could hide the needle and report a false absence.
		return "", &Error{URL: url, Err: fmt.Errorf("%w (max %d bytes)", ErrBodyTooLarge, f.maxBody)}
	}

	f.log.Debug("fetched",
		logx.String("url", url),
		logx.Int("status", resp.StatusCode),
		logx.Int("bytes", len(b)),
		logx.Duration("took", time.Since(start)),
	)

	if f.textOnly {
		text, err := DocumentText(bytes.NewReader(b))
		if err != nil {
			return "", &Error{URL: url, Err: fmt.Errorf("parse html: %w", err)}
		}
		return text, nil
	}
	return string(b), nil
}
