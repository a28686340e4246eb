package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	rtsup "pagewatch/internal/runtime/supervisor"
	logx "pagewatch/pkg/logx"
)

type Service struct {
	mu sync.Mutex

	log  logx.Logger
	cfg  Config
	spec ParsedSpec
	loc  *time.Location
	name string
	job  Job

	c       *cron.Cron
	entryID cron.EntryID
	sup     *rtsup.Supervisor

	// trigger is the single-slot run queue.
	trigger chan struct{}

	running      bool
	runs         uint64
	failures     uint64
	coalesced    atomic.Uint64
	lastStart    time.Time
	lastDuration time.Duration
	lastErr      string
}

// New validates cfg and returns a stopped scheduler for job.
func New(cfg Config, name string, job Job, log logx.Logger) (*Service, error) {
	if job == nil {
		return nil, errors.New("job required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("name required")
	}
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
		loc = l
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log,
		cfg:     cfg,
		spec:    spec,
		loc:     loc,
		name:    name,
		job:     job,
		trigger: make(chan struct{}, 1),
	}, nil
}

// Start queues an immediate run, starts the worker and the cron trigger.
// Calling Start on a started scheduler is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}

	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	s.sup.Go0(s.name+".worker", s.workerLoop)

	s.enqueue("startup")

	s.c = cron.New(cron.WithLocation(s.loc), cron.WithLogger(cronLogger{log: s.log}))
	s.entryID = s.c.Schedule(s.spec.Schedule, cron.FuncJob(func() { s.enqueue("tick") }))
	s.c.Start()

	fields := []logx.Field{
		logx.String("name", s.name),
		logx.String("schedule", s.cfg.Schedule),
		logx.String("tz", s.loc.String()),
	}
	if next := s.c.Entry(s.entryID).Next; !next.IsZero() {
		fields = append(fields, logx.Time("next", next))
	}
	s.log.Info("scheduler started", fields...)
}

// Trigger requests an extra run outside the schedule. It never blocks; if a
// run is already pending the request is coalesced and false is returned.
func (s *Service) Trigger() bool {
	return s.enqueue("manual")
}

func (s *Service) enqueue(reason string) bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		n := s.coalesced.Add(1)
		s.log.Debug("run already pending; trigger coalesced", logx.String("reason", reason), logx.Uint64("coalesced", n))
		return false
	}
}

func (s *Service) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
			s.runOne(ctx)
		}
	}
}

func (s *Service) runOne(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	s.running = true
	s.lastStart = start
	s.mu.Unlock()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("scheduled run panicked",
					logx.String("name", s.name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return s.job(ctx)
	}()

	took := time.Since(start)
	s.mu.Lock()
	s.running = false
	s.runs++
	s.lastDuration = took
	s.lastErr = ""
	if err != nil {
		s.failures++
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("scheduled run failed", logx.String("name", s.name), logx.Duration("took", took), logx.Err(err))
	}
}

// Stop stops triggering and waits (bounded by ctx) for an in-flight run.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, sup := s.c, s.sup
	s.c, s.sup = nil, nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	if sup == nil {
		return nil
	}
	err := sup.Stop(ctx)
	s.log.Info("scheduler stopped", logx.String("name", s.name))
	return err
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Schedule:     s.cfg.Schedule,
		Timezone:     s.loc.String(),
		Running:      s.running,
		Pending:      len(s.trigger) > 0,
		Runs:         s.runs,
		Failures:     s.failures,
		Coalesced:    s.coalesced.Load(),
		LastStart:    s.lastStart,
		LastDuration: s.lastDuration,
		LastError:    s.lastErr,
	}
	if s.c != nil {
		snap.Next = s.c.Entry(s.entryID).Next
	}
	return snap
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
