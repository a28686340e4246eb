package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Retention drops entries older than this. 0 keeps everything.
	Retention time.Duration
}

// CheckEntry records one check cycle.
// Keep it compact and schema-stable.
type CheckEntry struct {
	At        time.Time `json:"at"`
	Result    string    `json:"result"`
	Detail    string    `json:"detail,omitempty"`
	Action    string    `json:"action"`
	FellBack  bool      `json:"fell_back,omitempty"`
	MessageID int       `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	TookMS    int64     `json:"took_ms"`
}
