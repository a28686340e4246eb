// Package monitor runs one check cycle: fetch, evaluate, reconcile, notify.
//
// Monitor owns the notification state. Cycles are serialized by an internal
// mutex, on top of the scheduler's single worker.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"pagewatch/internal/check"
	"pagewatch/internal/fetch"
	"pagewatch/internal/notify"
	"pagewatch/internal/reconcile"
	"pagewatch/internal/storage"
	kit "pagewatch/internal/transport"
	logx "pagewatch/pkg/logx"
)

type Config struct {
	TargetURL    string
	SearchString string
	Channel      kit.ChatTarget
	Location     *time.Location
}

type Monitor struct {
	cfg      Config
	fetcher  fetch.Fetcher
	notifier notify.Notifier
	store    storage.Store
	engine   *reconcile.Engine
	log      logx.Logger
	now      func() time.Time

	mu    sync.Mutex
	state reconcile.State
}

type Option func(*Monitor)

// WithStore records every cycle in st (best-effort).
func WithStore(st storage.Store) Option { return func(m *Monitor) { m.store = st } }

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

func New(cfg Config, f fetch.Fetcher, n notify.Notifier, log logx.Logger, opts ...Option) *Monitor {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Monitor{
		cfg:      cfg,
		fetcher:  f,
		notifier: n,
		engine: reconcile.New(reconcile.Formatter{
			URL:          cfg.TargetURL,
			SearchString: cfg.SearchString,
			Location:     cfg.Location,
		}),
		log: log,
		now: time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Report describes what one cycle did.
type Report struct {
	At     time.Time
	Result check.Result
	Action reconcile.Action
	// FellBack is set when an edit failed and the status was re-sent.
	FellBack bool
	// Sent is the ref of the message created this cycle (zero if none).
	Sent  kit.MessageRef
	State reconcile.State
	// NotifyErr is the last notifier failure (already logged).
	NotifyErr error
	// Cancelled is set when ctx ended during the fetch. Nothing was sent or
	// recorded and State is unchanged.
	Cancelled bool
	Took      time.Duration
}

// State returns the currently tracked notification state.
func (m *Monitor) State() reconcile.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Check fetches and evaluates the target without notifying or touching state.
func (m *Monitor) Check(ctx context.Context) check.Result {
	res, _ := m.check(ctx)
	return res
}

// check also returns the raw fetch error for logging.
func (m *Monitor) check(ctx context.Context) (check.Result, error) {
	content, err := m.fetcher.Fetch(ctx, m.cfg.TargetURL)
	if err != nil {
		return check.NewFetchError(err.Error()), err
	}
	return check.Evaluate(content, m.cfg.SearchString), nil
}

// Preview runs a check and returns the action a live cycle would take from
// the current state. Nothing is sent.
func (m *Monitor) Preview(ctx context.Context) Report {
	start := m.now()
	res := m.Check(ctx)
	m.mu.Lock()
	st := m.state
	m.mu.Unlock()
	a, next := m.engine.Reconcile(res, st, m.now())
	return Report{At: start, Result: res, Action: a, State: next, Took: m.now().Sub(start)}
}

// RunCycle performs one full cycle and returns its report.
// It never returns an error: failures are folded into the report and logs.
func (m *Monitor) RunCycle(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.now()
	res, fetchErr := m.check(ctx)
	if ctx.Err() != nil {
		// Shutdown interrupted the cycle: its result says nothing about the page.
		m.log.Info("check cycle cancelled", logx.String("state", m.state.String()), logx.Err(ctx.Err()))
		return Report{At: start, Result: res, State: m.state, Cancelled: true, Took: m.now().Sub(start)}
	}
	if fetchErr != nil {
		m.log.Warn("fetch failed",
			logx.String("url", m.cfg.TargetURL),
			logx.Bool("timeout", fetch.IsTimeout(fetchErr)),
			logx.Err(fetchErr),
		)
	}

	a, provisional := m.engine.Reconcile(res, m.state, m.now())
	rep := Report{At: start, Result: res, Action: a}

	sent, err := m.execute(ctx, a)
	next := reconcile.Resolve(a, provisional, sent, err)
	if err != nil {
		rep.NotifyErr = err
		if fb, ok := a.Fallback(); ok {
			m.log.Info("status edit failed; sending a new status message",
				logx.String("message", a.Target.String()),
				logx.Bool("not_editable", errors.Is(err, notify.ErrNotEditable)),
				logx.Err(err),
			)
			rep.FellBack = true
			sent, err = m.execute(ctx, fb)
			next = reconcile.Resolve(fb, next, sent, err)
			rep.NotifyErr = err
			if err != nil {
				m.log.Error("fallback status send failed", logx.String("action", fb.Kind.String()), logx.Err(err))
			}
		} else {
			m.log.Error("notification failed", logx.String("action", a.Kind.String()), logx.Err(err))
		}
	}

	m.state = next
	rep.Sent = sent
	rep.State = next
	rep.Took = m.now().Sub(start)

	m.log.Info("check cycle done",
		logx.String("result", res.Kind.String()),
		logx.String("action", a.Kind.String()),
		logx.Bool("fallback", rep.FellBack),
		logx.String("state", next.String()),
		logx.Duration("took", rep.Took),
	)
	m.record(ctx, rep)
	return rep
}

func (m *Monitor) execute(ctx context.Context, a reconcile.Action) (kit.MessageRef, error) {
	if a.Kind == reconcile.EditStatus {
		return kit.MessageRef{}, m.notifier.Edit(ctx, a.Target, a.Text)
	}
	return m.notifier.Send(ctx, m.cfg.Channel, a.Text)
}

func (m *Monitor) record(ctx context.Context, rep Report) {
	if m.store == nil {
		return
	}
	e := storage.CheckEntry{
		At:       rep.At,
		Result:   rep.Result.Kind.String(),
		Detail:   rep.Result.Detail,
		Action:   rep.Action.Kind.String(),
		FellBack: rep.FellBack,
		TookMS:   rep.Took.Milliseconds(),
	}
	if ref, ok := rep.State.Tracked(); ok {
		e.MessageID = ref.MessageID
	} else if !rep.Sent.IsZero() {
		e.MessageID = rep.Sent.MessageID
	}
	if rep.NotifyErr != nil {
		e.Error = rep.NotifyErr.Error()
	}
	// Bounded so a slow disk cannot stall the cycle.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := m.store.AppendCheck(rctx, e); err != nil {
		m.log.Warn("check history append failed", logx.Err(err))
	}
}
