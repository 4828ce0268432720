package sla

import (
	"fmt"
	"time"

	"github.com/jafarshop/fulfillment/internal/domain"
)

// Deadline is the computed SLA deadline pair for one assignment. It is
// cached on the assignment record at creation time so later profile changes
// never move an already-agreed deadline.
type Deadline struct {
	Dispatch    time.Time
	Fulfillment time.Time
}

// Compute derives the SLA deadline for an assignment created at assignedAt
// under the given profile. The dispatch clock starts when the assignment time
// is rolled forward into the dealer's next dispatch-hours window; windows may
// wrap across midnight (e.g. 18:00-06:00). All arithmetic happens in the
// deployment time zone. Pure function.
func Compute(assignedAt time.Time, profile *domain.SLAProfile, loc *time.Location) (Deadline, error) {
	start, err := parseClock(profile.DispatchWindowStart)
	if err != nil {
		return Deadline{}, fmt.Errorf("dispatch window start: %w", err)
	}
	end, err := parseClock(profile.DispatchWindowEnd)
	if err != nil {
		return Deadline{}, fmt.Errorf("dispatch window end: %w", err)
	}

	local := assignedAt.In(loc)
	dispatchStart := rollIntoWindow(local, start, end)

	expectedDispatch := dispatchStart.Add(profile.MaxDispatchTime)
	expectedFulfillment := expectedDispatch.Add(profile.ShippingTime).Add(profile.DeliveryTime)

	return Deadline{Dispatch: expectedDispatch, Fulfillment: expectedFulfillment}, nil
}

// rollIntoWindow returns t unchanged when it already falls inside the daily
// window, otherwise the next window opening at or after t.
func rollIntoWindow(t time.Time, startMin, endMin int) time.Time {
	if startMin == endMin {
		// degenerate window, always open
		return t
	}

	minuteOfDay := t.Hour()*60 + t.Minute()

	var inside bool
	if startMin < endMin {
		inside = minuteOfDay >= startMin && minuteOfDay < endMin
	} else {
		// wraps midnight
		inside = minuteOfDay >= startMin || minuteOfDay < endMin
	}
	if inside {
		return t
	}

	opening := time.Date(t.Year(), t.Month(), t.Day(), startMin/60, startMin%60, 0, 0, t.Location())
	if minuteOfDay >= startMin {
		opening = opening.AddDate(0, 0, 1)
	}
	return opening
}

func parseClock(s string) (int, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}
