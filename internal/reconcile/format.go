package reconcile

import (
	"fmt"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// Formatter renders the notification texts for one target.
type Formatter struct {
	URL          string
	SearchString string
	// Location is used for timestamps; nil means time.Local.
	Location *time.Location
}

func (f Formatter) stamp(at time.Time) string {
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	return at.In(loc).Format(timestampLayout)
}

func (f Formatter) Status(at time.Time) string {
	return fmt.Sprintf("✅ Status Update: The string '%s' was found on %s\n\nLast check: %s",
		f.SearchString, f.URL, f.stamp(at))
}

func (f Formatter) Alert(at time.Time) string {
	return fmt.Sprintf("🚨 Alert: The string '%s' was not found on %s\n\nCheck performed at: %s",
		f.SearchString, f.URL, f.stamp(at))
}

func (f Formatter) Error(detail string, at time.Time) string {
	return fmt.Sprintf("❌ Error: Failed to fetch the website %s\n\nError details: %s\n\nCheck attempted at: %s",
		f.URL, detail, f.stamp(at))
}
