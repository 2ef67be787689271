package runner

import (
	"fmt"
	"math"
	"time"

	"github.com/rmarins/sitesentry/internal/core"
)

// evaluateExpiry runs the threshold state machine for one (target, metric)
// pair and returns the events this pass must emit.
//
// notAfter is the metric's current expiry date (nil when unknown this
// pass); expired additionally forces an Expired event regardless of the
// threshold set — a cert reported valid=false is expired even if clock
// math says otherwise.
//
// Every boundary between the previous days_left and the current one fires,
// so a pass skipped while the process was down cannot swallow an alert.
// Each boundary still fires at most once per armed expiry date.
func evaluateExpiry(t *core.Target, metric core.Metric, notAfter *time.Time, expired bool, thresholds []int, now time.Time) []core.Event {
	var events []core.Event

	if notAfter != nil {
		if armed := t.ArmedFor(metric); armed == nil || !armed.Equal(*notAfter) {
			// New expiry date (first sight or renewal): re-arm.
			t.Arm(metric, *notAfter)
		}

		daysLeft := daysUntil(now, *notAfter)
		if daysLeft < 0 {
			expired = true
		}

		for _, boundary := range thresholds {
			if boundary >= daysLeft && !t.HasNotified(metric, boundary) {
				events = append(events, core.NewEvent(t.URL, metric, core.EventThresholdCrossed, boundary,
					fmt.Sprintf("expires %s (%d days left)", notAfter.Format("2006-01-02"), daysLeft)))
				t.MarkNotified(metric, boundary)
			}
		}

		if expired {
			events = append(events, core.NewEvent(t.URL, metric, core.EventExpired, daysLeft,
				fmt.Sprintf("expired %s", notAfter.Format("2006-01-02"))))
		}
		return events
	}

	if expired {
		events = append(events, core.NewEvent(t.URL, metric, core.EventExpired, 0, "certificate invalid"))
	}
	return events
}

func daysUntil(now, notAfter time.Time) int {
	return int(math.Ceil(notAfter.Sub(now).Hours() / 24))
}
