package core

import "time"

const (
	StatusPending   Status = "Pending"
	StatusOngoing   Status = "Ongoing"
	StatusCompleted Status = "Completed"
)

// Status is derived on demand and never stored.
type Status string

func (s Status) String() string {
	return string(s)
}

// Classify returns the status of a project running from start to end as
// seen at now. Days are compared at local midnight in now's location.
// A zero start counts as already started and a zero end as open-ended, so
// exactly one status always holds.
func Classify(start, end Date, now time.Time) Status {
	today := StartOfDay(now)
	loc := now.Location()
	if !start.IsZero() && start.Midnight(loc).After(today) {
		return StatusPending
	}
	if !end.IsZero() && end.Midnight(loc).Before(today) {
		return StatusCompleted
	}
	return StatusOngoing
}

// Status classifies the project at now.
func (p Project) Status(now time.Time) Status {
	return Classify(p.StartDate, p.EndDate, now)
}
