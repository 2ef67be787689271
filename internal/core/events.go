package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind classifies a notification event.
type EventKind string

const (
	// EventThresholdCrossed fires when days-to-expiry drops to or below a
	// configured boundary for the first time since the expiry date changed.
	EventThresholdCrossed EventKind = "threshold_crossed"
	// EventExpired fires on every pass while a certificate is invalid or a
	// domain registration is past its expiry date. Not deduplicated.
	EventExpired EventKind = "expired"
	// EventDown fires once when an endpoint's HTTP status or TLS validity
	// flips from healthy to unhealthy.
	EventDown EventKind = "down"
	// EventRecovered fires once when it flips back.
	EventRecovered EventKind = "recovered"
)

// Event is what the core hands to the notification emitter.
type Event struct {
	ID        string    `json:"id"`
	TargetURL string    `json:"target_url"`
	Metric    Metric    `json:"metric"`
	Kind      EventKind `json:"kind"`
	// Days is the crossed boundary for threshold events and the remaining
	// days for expiry events (negative once past the date).
	Days    int       `json:"days,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

func NewEvent(targetURL string, metric Metric, kind EventKind, days int, msg string) Event {
	return Event{
		ID:        uuid.New().String(),
		TargetURL: targetURL,
		Metric:    metric,
		Kind:      kind,
		Days:      days,
		Message:   msg,
		At:        time.Now().UTC(),
	}
}

func (e Event) String() string {
	switch e.Kind {
	case EventThresholdCrossed:
		return fmt.Sprintf("%s %s expires in %d days", e.TargetURL, e.Metric, e.Days)
	case EventExpired:
		return fmt.Sprintf("%s %s expired", e.TargetURL, e.Metric)
	case EventDown:
		return fmt.Sprintf("%s %s issue: %s", e.TargetURL, e.Metric, e.Message)
	case EventRecovered:
		return fmt.Sprintf("%s %s recovered", e.TargetURL, e.Metric)
	}
	return fmt.Sprintf("%s %s %s", e.TargetURL, e.Metric, e.Kind)
}
