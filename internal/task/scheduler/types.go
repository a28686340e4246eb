package scheduler

import (
	"context"
	"time"
)

// Config controls the scheduler.
type Config struct {
	// Schedule is parsed by ParseSchedule.
	Schedule string
	// Timezone is an IANA name for cron expressions ("" = local).
	Timezone string
}

// Job is one unit of scheduled work. Returned errors are logged only.
type Job func(ctx context.Context) error

// Snapshot is a point-in-time view for diagnostics.
type Snapshot struct {
	Schedule     string
	Timezone     string
	Running      bool
	Pending      bool
	Runs         uint64
	Failures     uint64
	Coalesced    uint64
	LastStart    time.Time
	LastDuration time.Duration
	LastError    string
	Next         time.Time
}
