package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SpecKind describes the normalized kind of a schedule string.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a validated schedule.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "0 */5 * * * *" (with seconds), "@hourly", "@every 5m"
//   - Interval duration: "300s", "5m", "1h30m"
//   - Interval HH:MM: "00:05" (5 minutes), "01:30" (90 minutes)
type ParsedSpec struct {
	Kind     SpecKind
	Every    time.Duration // SpecInterval only
	Source   string        // "cron" | "duration" | "hhmm"
	Schedule cron.Schedule
}

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)

// ParseSchedule parses raw into a cron schedule or a fixed interval.
// Intervals below one second are rejected (cron resolution).
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return ParsedSpec{}, fmt.Errorf("invalid minutes in %q", raw)
		}
		return intervalSpec(time.Duration(hh)*time.Hour+time.Duration(mm)*time.Minute, "hhmm", raw)
	}

	if !strings.ContainsAny(s, " \t") && !strings.HasPrefix(s, "@") {
		d, err := time.ParseDuration(s)
		if err != nil {
			return ParsedSpec{}, fmt.Errorf(
				"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '00:05', or duration like '5m')", raw)
		}
		return intervalSpec(d, "duration", raw)
	}

	sched, err := specParser.Parse(s)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid cron schedule %q: %w", raw, err)
	}
	ps := ParsedSpec{Kind: SpecCron, Source: "cron", Schedule: sched}
	if cd, ok := sched.(cron.ConstantDelaySchedule); ok {
		ps.Every = cd.Delay
	}
	return ps, nil
}

func intervalSpec(d time.Duration, source, raw string) (ParsedSpec, error) {
	if d < time.Second {
		return ParsedSpec{}, fmt.Errorf("interval %q must be at least 1s", raw)
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: source, Schedule: cron.Every(d)}, nil
}

// EverySeconds returns the schedule string for a fixed interval in seconds.
func EverySeconds(n int) string {
	return strconv.Itoa(n) + "s"
}
