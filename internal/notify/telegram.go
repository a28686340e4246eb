package notify

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	kit "pagewatch/internal/transport"
	logx "pagewatch/pkg/logx"
)

// telegramTextLimit stays under the Bot API limit of 4096 characters.
const telegramTextLimit = 4000

type TelegramConfig struct {
	Token string
	// APIURL overrides the Bot API endpoint (local bot API server, tests).
	APIURL     string
	Timeout    time.Duration
	RatePerSec int
	ParseMode  string
}

// Telegram implements Notifier on top of telebot.
//
// The bot is created offline (no getMe round-trip) since it only sends and
// edits; an invalid token surfaces on the first call.
type Telegram struct {
	bot     *tele.Bot
	limiter *rate.Limiter
	opts    kit.SendOptions
	log     logx.Logger
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   strings.TrimSpace(cfg.Token),
		URL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Client:  &http.Client{Timeout: cfg.Timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot: b,
		// Token bucket: burst = rate per sec.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		opts:    kit.SendOptions{ParseMode: cfg.ParseMode, DisablePreview: true},
		log:     log,
	}, nil
}

type recipient string

func (r recipient) Recipient() string { return string(r) }

type editable kit.MessageRef

func (e editable) MessageSig() (string, int64) {
	return strconv.Itoa(e.MessageID), e.ChatID
}

func (t *Telegram) sendOptions(threadID int) *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             t.opts.ParseMode,
		DisableWebPagePreview: t.opts.DisablePreview,
		ThreadID:              threadID,
	}
}

func (t *Telegram) Send(ctx context.Context, to kit.ChatTarget, text string) (kit.MessageRef, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return kit.MessageRef{}, &Error{Op: "send", Err: err}
	}
	msg, err := t.bot.Send(recipient(to.Recipient()), truncate(text, telegramTextLimit), t.sendOptions(to.ThreadID))
	if err != nil {
		return kit.MessageRef{}, classify("send", err)
	}
	if msg == nil || msg.ID == 0 {
		return kit.MessageRef{}, &Error{Op: "send", Err: errors.New("telegram returned no message id")}
	}

	ref := kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
	if msg.Chat != nil && msg.Chat.ID != 0 {
		ref.ChatID = msg.Chat.ID
	}
	t.log.Debug("message sent", logx.String("to", to.Recipient()), logx.Int("message_id", ref.MessageID))
	return ref, nil
}

func (t *Telegram) Edit(ctx context.Context, ref kit.MessageRef, text string) error {
	if ref.IsZero() || ref.ChatID == 0 {
		return &Error{Op: "edit", NotEditable: true, Err: errors.New("no message to edit")}
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return &Error{Op: "edit", Err: err}
	}
	_, err := t.bot.Edit(editable(ref), truncate(text, telegramTextLimit), t.sendOptions(0))
	if err != nil {
		if isNotModified(err) {
			// Same content as before: the message is still there and current.
			return nil
		}
		return classify("edit", err)
	}
	t.log.Debug("message edited", logx.Int64("chat_id", ref.ChatID), logx.Int("message_id", ref.MessageID))
	return nil
}

var reRetryAfter = regexp.MustCompile(`retry after (\d+)`)

// classify maps Bot API failures onto *Error.
//
// telebot's typed errors are checked first. Descriptions telebot does not map
// (e.g. "message to edit not found") fall back to text matching.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	e := &Error{Op: op, Err: err}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return e
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		e.RetryAfter = time.Duration(flood.RetryAfter) * time.Second
		if e.RetryAfter <= 0 {
			e.RetryAfter = time.Second
		}
		return e
	}
	if op == "edit" && errors.Is(err, tele.ErrCantEditMessage) {
		e.NotEditable = true
		return e
	}

	low := strings.ToLower(err.Error())
	if op == "edit" && isNotEditableText(low) {
		e.NotEditable = true
	}
	if m := reRetryAfter.FindStringSubmatch(low); len(m) == 2 {
		if n, convErr := strconv.Atoi(m[1]); convErr == nil && n > 0 {
			e.RetryAfter = time.Duration(n) * time.Second
		}
	} else if strings.Contains(low, "too many requests") {
		e.RetryAfter = time.Second
	}
	return e
}

func isNotEditableText(low string) bool {
	for _, s := range []string{
		"message to edit not found",
		"message can't be edited",
		"message_id_invalid",
		"message not found",
	} {
		if strings.Contains(low, s) {
			return true
		}
	}
	return false
}

func isNotModified(err error) bool {
	if errors.Is(err, tele.ErrSameMessageContent) || errors.Is(err, tele.ErrMessageNotModified) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}

func truncate(s string, maxN int) string {
	rs := []rune(s)
	if maxN <= 0 || len(rs) <= maxN {
		return s
	}
	return string(rs[:maxN-3]) + "..."
}
