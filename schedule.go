package pester

import (
	"time"

	"github.com/pkg/errors"
)

// Schedule gates when poll-driven notifications are allowed to act. The
// drain loop is not gated: messages already enqueued are delivered whenever
// they are ready.
type Schedule struct {
	WorkDays  []int  `yaml:"work_days"` // time.Weekday numbering, Sunday = 0
	StartHour int    `yaml:"start_hour"`
	EndHour   int    `yaml:"end_hour"`
	Timezone  string `yaml:"timezone"` // IANA name, e.g. "Europe/Berlin"
}

// Validate checks the schedule at startup. A zero schedule is valid and
// means "always active".
func (s Schedule) Validate() error {
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return errors.Wrapf(err, "loading timezone %s", s.Timezone)
		}
	}
	for _, d := range s.WorkDays {
		if d < 0 || d > 6 {
			return errors.Errorf("work day %d out of range 0..6", d)
		}
	}
	if s.StartHour < 0 || s.StartHour > 23 || s.EndHour < 0 || s.EndHour > 24 {
		return errors.Errorf("hours %d..%d out of range", s.StartHour, s.EndHour)
	}
	return nil
}

// Active reports whether t falls on a work day within [StartHour, EndHour)
// in the configured timezone. A zero schedule is always active.
func (s Schedule) Active(t time.Time) bool {
	if len(s.WorkDays) == 0 {
		return true
	}
	if s.Timezone != "" {
		if loc, err := time.LoadLocation(s.Timezone); err == nil {
			t = t.In(loc)
		}
	}
	workday := false
	for _, d := range s.WorkDays {
		if time.Weekday(d) == t.Weekday() {
			workday = true
			break
		}
	}
	if !workday {
		return false
	}
	return t.Hour() >= s.StartHour && t.Hour() < s.EndHour
}
