package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"pagewatch/internal/check"
	"pagewatch/internal/reconcile"
)

// historyLines is how many recorded checks RunOnce prints.
const historyLines = 5

// RunOnce performs a single check and writes the result and the message a
// live cycle would send to w. It never notifies.
func (a *App) RunOnce(ctx context.Context, w io.Writer) error {
	defer a.closeResources()

	rep := a.mon.Preview(ctx)

	var b strings.Builder
	fmt.Fprintf(&b, "url:      %s\n", a.cfg.Target.URL)
	fmt.Fprintf(&b, "search:   %q\n", a.cfg.Target.SearchString)
	fmt.Fprintf(&b, "strategy: %s\n", fetchStrategy(a.cfg))
	fmt.Fprintf(&b, "result:   %s\n", rep.Result.Kind)
	if rep.Result.Kind == check.FetchError {
		fmt.Fprintf(&b, "error:    %s\n", rep.Result.Detail)
	}
	fmt.Fprintf(&b, "took:     %s\n", rep.Took.Round(time.Millisecond))
	fmt.Fprintf(&b, "action:   %s\n", actionLabel(rep.Action))
	b.WriteString("message:\n")
	for _, line := range strings.Split(rep.Action.Text, "\n") {
		b.WriteString("  " + line + "\n")
	}

	if a.store != nil {
		entries, err := a.store.RecentChecks(ctx, historyLines)
		if err != nil {
			fmt.Fprintf(&b, "history:  unavailable (%v)\n", err)
		} else if len(entries) > 0 {
			b.WriteString("history:\n")
			for _, e := range entries {
				line := fmt.Sprintf("  %s  %-11s %-12s", e.At.In(time.Local).Format(time.DateTime), e.Result, e.Action)
				if e.FellBack {
					line += " fallback"
				}
				if e.Error != "" {
					line += " err=" + e.Error
				}
				b.WriteString(strings.TrimRight(line, " ") + "\n")
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func actionLabel(a reconcile.Action) string {
	if a.Kind == reconcile.EditStatus {
		return a.Kind.String() + " " + a.Target.String()
	}
	return a.Kind.String()
}
