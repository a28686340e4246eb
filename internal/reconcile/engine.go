package reconcile

import (
	"time"

	"pagewatch/internal/check"
	kit "pagewatch/internal/transport"
)

// State is the notification state carried between cycles.
// The zero value is "no status message tracked".
type State struct {
	ref kit.MessageRef
	set bool
}

// Tracking returns a state tracking ref. A zero ref yields the unset state.
func Tracking(ref kit.MessageRef) State {
	if ref.IsZero() {
		return State{}
	}
	return State{ref: ref, set: true}
}

// Tracked returns the tracked status message, if any.
func (s State) Tracked() (kit.MessageRef, bool) { return s.ref, s.set }

func (s State) String() string {
	if !s.set {
		return "unset"
	}
	return s.ref.String()
}

type ActionKind int

const (
	SendAlert ActionKind = iota + 1
	SendStatus
	EditStatus
	SendError
)

func (k ActionKind) String() string {
	switch k {
	case SendAlert:
		return "send_alert"
	case SendStatus:
		return "send_status"
	case EditStatus:
		return "edit_status"
	case SendError:
		return "send_error"
	default:
		return "unknown"
	}
}

// Action is a single notifier call. Target is set only for EditStatus.
type Action struct {
	Kind   ActionKind
	Text   string
	Target kit.MessageRef
}

// Fallback returns the action to run when an EditStatus fails.
// For any other kind it reports false.
func (a Action) Fallback() (Action, bool) {
	if a.Kind != EditStatus {
		return Action{}, false
	}
	return Action{Kind: SendStatus, Text: a.Text}, true
}

// Engine maps a check result and prior state to an action.
type Engine struct {
	Format Formatter
}

func New(f Formatter) *Engine { return &Engine{Format: f} }

// Reconcile returns the action for res and the provisional state to keep if
// the action is not (or cannot be) executed. Callers settle the final state
// with Resolve once the notifier call returns.
func (e *Engine) Reconcile(res check.Result, st State, at time.Time) (Action, State) {
	switch res.Kind {
	case check.NotFound:
		return Action{Kind: SendAlert, Text: e.Format.Alert(at)}, State{}
	case check.Found:
		text := e.Format.Status(at)
		if ref, ok := st.Tracked(); ok {
			return Action{Kind: EditStatus, Text: text, Target: ref}, st
		}
		return Action{Kind: SendStatus, Text: text}, State{}
	default:
		return Action{Kind: SendError, Text: e.Format.Error(res.Detail, at)}, State{}
	}
}

// Resolve returns the state to keep after executing a.
//
// sent is the ref returned by a successful send (ignored for edits) and err
// the notifier error, if any.
func Resolve(a Action, provisional State, sent kit.MessageRef, err error) State {
	switch a.Kind {
	case SendStatus:
		if err != nil {
			return State{}
		}
		return Tracking(sent)
	case EditStatus:
		if err != nil {
			return State{}
		}
		return Tracking(a.Target)
	default:
		return State{}
	}
}
