// Package notify delivers check results to the notification channel.
//
// The core only needs two calls: Send (returns the new message ref) and Edit
// (updates a message in place). Edit failures carry a NotEditable flag so the
// caller can tell "that message is gone or too old" from transient errors,
// although the reconciliation fallback treats both the same way.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	kit "pagewatch/internal/transport"
)

// Notifier is a channel-based messaging client.
type Notifier interface {
	Send(ctx context.Context, to kit.ChatTarget, text string) (kit.MessageRef, error)
	Edit(ctx context.Context, ref kit.MessageRef, text string) error
}

var (
	// ErrNotEditable matches (errors.Is) edit failures caused by the target
	// message being missing or no longer editable.
	ErrNotEditable = errors.New("message not editable")
	ErrRateLimited = errors.New("rate limited")
)

// Error is returned by Notifier implementations.
type Error struct {
	Op          string // "send" | "edit"
	NotEditable bool
	RetryAfter  time.Duration
	Err         error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("notify %s: %v", e.Op, e.Err)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotEditable:
		return e.NotEditable
	case ErrRateLimited:
		return e.RetryAfter > 0
	}
	return false
}
