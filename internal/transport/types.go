package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// ChatTarget addresses a chat (optionally a forum topic).
//
// Telegram channels can be addressed either by numeric id ("-1001234567890")
// or by public username ("@mychannel"); exactly one of ChatID/Username is set.
type ChatTarget struct {
	ChatID   int64
	Username string
	ThreadID int
}

// ParseChatTarget parses a configured channel identifier.
func ParseChatTarget(raw string) (ChatTarget, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ChatTarget{}, fmt.Errorf("chat id required")
	}
	if strings.HasPrefix(s, "@") {
		if len(s) < 2 {
			return ChatTarget{}, fmt.Errorf("invalid chat username %q", raw)
		}
		return ChatTarget{Username: s}, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return ChatTarget{}, fmt.Errorf("invalid chat id %q (use a numeric id or @username)", raw)
	}
	return ChatTarget{ChatID: id}, nil
}

// Recipient returns the chat identifier in the form the Bot API accepts.
func (t ChatTarget) Recipient() string {
	if t.Username != "" {
		return t.Username
	}
	return strconv.FormatInt(t.ChatID, 10)
}

func (t ChatTarget) String() string { return t.Recipient() }

// MessageRef identifies a message previously sent by the bot.
//
// ChatID is always the numeric id reported back by the platform, even when the
// message was sent to a username target (edits require the numeric id).
type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

func (r MessageRef) IsZero() bool { return r.MessageID == 0 }

func (r MessageRef) String() string {
	return strconv.FormatInt(r.ChatID, 10) + "/" + strconv.Itoa(r.MessageID)
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}
