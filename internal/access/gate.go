// Package access decides whether an enrolled user may join a live class
// right now. The decision is a pure function of the session window and the
// clock; nothing fires when a session "becomes live", so callers evaluate on
// every read.
package access

import (
	"time"

	"github.com/summitsafety/academy/internal/capacity"
)

// Decision is the outcome of a live-access check.
type Decision struct {
	Live bool
	// NextWindow describes the next join opportunity when not live; empty
	// when the run is over or the session is cancelled.
	NextWindow string
}

// Evaluate computes the decision for a session at the given instant.
//
// A session runs over a multi-day span with a constant daily meeting time
// taken from the start and end instants' local times in the session's zone.
// The user may join when now falls inside the overall span AND inside the
// daily time-of-day window.
func Evaluate(sess capacity.Session, now time.Time) Decision {
	if sess.Cancelled {
		return Decision{}
	}

	loc := sessionLocation(sess)
	localNow := now.In(loc)
	start := sess.StartAt.In(loc)
	end := sess.EndAt.In(loc)

	withinDateRange := !localNow.Before(start) && !localNow.After(end)

	nowMin := minutesOfDay(localNow)
	startMin := minutesOfDay(start)
	endMin := minutesOfDay(end)
	withinTimeOfDay := nowMin >= startMin && nowMin <= endMin

	if withinDateRange && withinTimeOfDay {
		return Decision{Live: true}
	}

	switch {
	case localNow.Before(start):
		return Decision{NextWindow: start.Format("1/2/2006 03:04 PM")}
	case withinDateRange:
		return Decision{NextWindow: "Tomorrow " + start.Format("03:04 PM")}
	default:
		// Run has ended.
		return Decision{}
	}
}

func sessionLocation(sess capacity.Session) *time.Location {
	if sess.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(sess.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
