package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pagewatch/internal/check"
	"pagewatch/internal/fetch"
	"pagewatch/internal/notify"
	"pagewatch/internal/reconcile"
	"pagewatch/internal/storage"
	kit "pagewatch/internal/transport"
	logx "pagewatch/pkg/logx"
)

type fakeFetcher struct {
	mu      sync.Mutex
	content string
	err     error
	delay   time.Duration
}

func (f *fakeFetcher) set(content string, err error) {
	f.mu.Lock()
	f.content, f.err = content, err
	f.mu.Unlock()
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	content, err, delay := f.content, f.err, f.delay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return content, err
}

type call struct {
	op   string // "send" | "edit"
	ref  kit.MessageRef
	text string
}

type fakeNotifier struct {
	mu      sync.Mutex
	nextID  int
	calls   []call
	sendErr error
	editErr error
}

func (n *fakeNotifier) Send(ctx context.Context, to kit.ChatTarget, text string) (kit.MessageRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, call{op: "send", text: text})
	if n.sendErr != nil {
		return kit.MessageRef{}, n.sendErr
	}
	n.nextID++
	return kit.MessageRef{ChatID: to.ChatID, MessageID: n.nextID}, nil
}

func (n *fakeNotifier) Edit(ctx context.Context, ref kit.MessageRef, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, call{op: "edit", ref: ref, text: text})
	return n.editErr
}

func (n *fakeNotifier) snapshot() []call {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]call(nil), n.calls...)
}

const channel = int64(-1001)

func newTestMonitor(f fetch.Fetcher, n notify.Notifier, opts ...Option) *Monitor {
	return newLoggedMonitor(f, n, logx.Nop(), opts...)
}

func newLoggedMonitor(f fetch.Fetcher, n notify.Notifier, log logx.Logger, opts ...Option) *Monitor {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return clock })}, opts...)
	return New(Config{
		TargetURL:    "https://example.com/tickets",
		SearchString: "Tickets available",
		Channel:      kit.ChatTarget{ChatID: channel},
		Location:     time.UTC,
	}, f, n, log, opts...)
}

func tracked(t *testing.T, st reconcile.State) int {
	t.Helper()
	ref, ok := st.Tracked()
	if !ok {
		return 0
	}
	return ref.MessageID
}

func TestScenarioStatusEditAlertFreshStatus(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{content: "<p>Tickets available</p>"}
	n := &fakeNotifier{nextID: 100}
	m := newTestMonitor(f, n)
	ctx := context.Background()

	// 1: found, nothing tracked -> new status message 101
	rep := m.RunCycle(ctx)
	if rep.Action.Kind != reconcile.SendStatus || tracked(t, rep.State) != 101 {
		t.Fatalf("cycle 1: action=%v state=%v", rep.Action.Kind, rep.State)
	}

	// 2: still found -> edit 101
	rep = m.RunCycle(ctx)
	if rep.Action.Kind != reconcile.EditStatus || rep.Action.Target.MessageID != 101 {
		t.Fatalf("cycle 2: action=%+v", rep.Action)
	}
	if tracked(t, rep.State) != 101 {
		t.Fatalf("cycle 2: state=%v, want 101", rep.State)
	}

	// 3: absent -> alert, state cleared
	f.set("<p>Sold out</p>", nil)
	rep = m.RunCycle(ctx)
	if rep.Action.Kind != reconcile.SendAlert || tracked(t, rep.State) != 0 {
		t.Fatalf("cycle 3: action=%v state=%v", rep.Action.Kind, rep.State)
	}

	// 4: present again -> brand-new status, not an edit
	f.set("<p>Tickets available</p>", nil)
	rep = m.RunCycle(ctx)
	if rep.Action.Kind != reconcile.SendStatus || tracked(t, rep.State) != 103 {
		t.Fatalf("cycle 4: action=%v state=%v", rep.Action.Kind, rep.State)
	}

	got := n.snapshot()
	want := []string{"send", "edit", "send", "send"}
	if len(got) != len(want) {
		t.Fatalf("calls = %+v", got)
	}
	for i := range want {
		if got[i].op != want[i] {
			t.Fatalf("call %d = %s, want %s", i, got[i].op, want[i])
		}
	}
	if got[1].ref.MessageID != 101 {
		t.Fatalf("edit targeted %v, want 101", got[1].ref)
	}
}

func TestEditFailureFallsBackToSend(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{content: "Tickets available"}
	n := &fakeNotifier{nextID: 41}
	m := newTestMonitor(f, n)
	ctx := context.Background()

	m.RunCycle(ctx) // tracks 42
	n.mu.Lock()
	n.editErr = &notify.Error{Op: "edit", NotEditable: true, Err: errors.New("message to edit not found")}
	n.mu.Unlock()

	rep := m.RunCycle(ctx)
	if !rep.FellBack {
		t.Fatal("expected fallback")
	}
	if rep.NotifyErr != nil {
		t.Fatalf("NotifyErr = %v, want nil after successful fallback", rep.NotifyErr)
	}
	if id := tracked(t, m.State()); id != 43 {
		t.Fatalf("state = %d, want 43 (new id != 42)", id)
	}
	calls := n.snapshot()
	if last := calls[len(calls)-1]; last.op != "send" || last.text != calls[len(calls)-2].text {
		t.Fatalf("fallback call = %+v", last)
	}
}

func TestEditAndFallbackBothFail(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{content: "Tickets available"}
	n := &fakeNotifier{}
	m := newTestMonitor(f, n)
	ctx := context.Background()

	m.RunCycle(ctx)
	n.mu.Lock()
	n.editErr = errors.New("edit boom")
	n.sendErr = errors.New("send boom")
	n.mu.Unlock()

	rep := m.RunCycle(ctx)
	if !rep.FellBack || rep.NotifyErr == nil {
		t.Fatalf("report = %+v", rep)
	}
	if id := tracked(t, m.State()); id != 0 {
		t.Fatalf("state = %d, want unset", id)
	}

	// Next cycle recovers with a fresh send (no edit of a dead ref).
	n.mu.Lock()
	n.editErr, n.sendErr = nil, nil
	n.mu.Unlock()
	rep = m.RunCycle(ctx)
	if rep.Action.Kind != reconcile.SendStatus {
		t.Fatalf("recovery action = %v, want send_status", rep.Action.Kind)
	}
}

func TestFetchTimeoutSendsErrorAndClearsState(t *testing.T) {
	t.Parallel()
	timeout := &fetch.Error{URL: "https://example.com/tickets", Err: context.DeadlineExceeded}

	t.Run("previously unset", func(t *testing.T) {
		f := &fakeFetcher{err: timeout}
		n := &fakeNotifier{}
		m := newTestMonitor(f, n)
		rep := m.RunCycle(context.Background())
		if rep.Result.Kind != check.FetchError || rep.Action.Kind != reconcile.SendError {
			t.Fatalf("report = %+v", rep)
		}
		if tracked(t, rep.State) != 0 {
			t.Fatalf("state = %v, want unset", rep.State)
		}
	})

	t.Run("previously tracked", func(t *testing.T) {
		f := &fakeFetcher{content: "Tickets available"}
		n := &fakeNotifier{nextID: 7}
		m := newTestMonitor(f, n)
		m.RunCycle(context.Background())
		if tracked(t, m.State()) != 8 {
			t.Fatalf("setup state = %v", m.State())
		}
		f.set("", timeout)
		rep := m.RunCycle(context.Background())
		if rep.Action.Kind != reconcile.SendError || tracked(t, rep.State) != 0 {
			t.Fatalf("report = %+v", rep)
		}
	})
}

func TestAlertSendFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{content: "nope"}
	n := &fakeNotifier{sendErr: errors.New("network down")}
	m := newTestMonitor(f, n)
	rep := m.RunCycle(context.Background())
	if rep.NotifyErr == nil || rep.FellBack {
		t.Fatalf("report = %+v", rep)
	}
	if len(n.snapshot()) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", len(n.snapshot()))
	}
}

func TestConcurrentRunCyclesDoNotInterleave(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{content: "Tickets available", delay: 20 * time.Millisecond}
	n := &fakeNotifier{}
	m := newTestMonitor(f, n)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RunCycle(context.Background())
		}()
	}
	wg.Wait()

	// Serialized cycles yield exactly one send followed by edits of it.
	calls := n.snapshot()
	if len(calls) != 4 {
		t.Fatalf("calls = %d, want 4", len(calls))
	}
	if calls[0].op != "send" {
		t.Fatalf("first call = %s, want send", calls[0].op)
	}
	for i, c := range calls[1:] {
		if c.op != "edit" || c.ref.MessageID != 1 {
			t.Fatalf("call %d = %+v, want edit of 1", i+1, c)
		}
	}
}

func TestPreviewDoesNotNotify(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{content: "Tickets available"}
	n := &fakeNotifier{}
	m := newTestMonitor(f, n)
	rep := m.Preview(context.Background())
	if rep.Action.Kind != reconcile.SendStatus {
		t.Fatalf("preview action = %v", rep.Action.Kind)
	}
	if len(n.snapshot()) != 0 {
		t.Fatal("preview must not call the notifier")
	}
	if _, ok := m.State().Tracked(); ok {
		t.Fatal("preview must not change state")
	}
}

func TestCyclesAreRecorded(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "h")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open error: %v", err)
	}
	defer st.Close()

	f := &fakeFetcher{content: "Tickets available"}
	n := &fakeNotifier{nextID: 100}
	m := newTestMonitor(f, n, WithStore(st))
	m.RunCycle(context.Background())
	f.set("", fmt.Errorf("dial: refused"))
	m.RunCycle(context.Background())

	got, err := st.RecentChecks(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentChecks error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %+v", got)
	}
	if got[0].Result != "fetch_error" || got[0].Action != "send_error" || got[0].MessageID != 102 {
		t.Fatalf("newest entry = %+v", got[0])
	}
	if got[1].Result != "found" || got[1].MessageID != 101 {
		t.Fatalf("oldest entry = %+v", got[1])
	}
}

func TestCancelledCycleLeavesStateAlone(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "h")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open error: %v", err)
	}
	defer st.Close()

	var buf bytes.Buffer
	f := &fakeFetcher{content: "Tickets available"}
	n := &fakeNotifier{nextID: 100}
	m := newLoggedMonitor(f, n, logx.NewWriter(&buf, "debug"), WithStore(st))
	m.RunCycle(context.Background())
	if tracked(t, m.State()) != 101 {
		t.Fatalf("setup state = %v", m.State())
	}

	// Shutdown arrives while a slow fetch is in flight.
	f.mu.Lock()
	f.delay = 2 * time.Second
	f.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	rep := m.RunCycle(ctx)

	if !rep.Cancelled {
		t.Fatalf("report = %+v, want cancelled", rep)
	}
	if calls := n.snapshot(); len(calls) != 1 {
		t.Fatalf("calls = %+v, want only the setup send", calls)
	}
	if tracked(t, m.State()) != 101 || tracked(t, rep.State) != 101 {
		t.Fatalf("state = %v, want tracked 101", m.State())
	}
	got, err := st.RecentChecks(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentChecks error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("entries = %+v, want only the setup cycle", got)
	}
	if !strings.Contains(buf.String(), `"message":"check cycle cancelled"`) {
		t.Fatalf("missing cancel log in %s", buf.String())
	}

	// The next uncancelled cycle edits the tracked message as usual.
	f.mu.Lock()
	f.delay = 0
	f.mu.Unlock()
	rep = m.RunCycle(context.Background())
	if rep.Action.Kind != reconcile.EditStatus || tracked(t, rep.State) != 101 {
		t.Fatalf("follow-up report = %+v", rep)
	}
}

func TestFetchFailureLogMarksTimeouts(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", &fetch.Error{URL: "u", Err: context.DeadlineExceeded}, `"timeout":true`},
		{"refused", &fetch.Error{URL: "u", Err: errors.New("connection refused")}, `"timeout":false`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			m := newLoggedMonitor(&fakeFetcher{err: tc.err}, &fakeNotifier{}, logx.NewWriter(&buf, "debug"))
			m.RunCycle(context.Background())
			var line string
			for _, l := range strings.Split(buf.String(), "\n") {
				if strings.Contains(l, `"message":"fetch failed"`) {
					line = l
				}
			}
			if !strings.Contains(line, tc.want) {
				t.Fatalf("fetch failed log = %q, want %s", line, tc.want)
			}
		})
	}
}
