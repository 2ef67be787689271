// Package notify delivers notification events to whatever sink the
// deployment wires in. The chat transport itself lives outside this
// process; a webhook into it (or into Slack, or a log) is enough here.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/rmarins/sitesentry/internal/core"
)

// Notifier consumes the core's notification events.
type Notifier interface {
	Send(ctx context.Context, event core.Event) error
}

// Multi fans an event out to every configured notifier. One sink failing
// does not stop the others; the first error is reported.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, event core.Event) error {
	var firstErr error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LogNotifier writes events to the structured log. Always wired in so an
// operator can reconstruct what was sent even when the webhook is down.
type LogNotifier struct {
	Logger *zap.Logger
}

func (l *LogNotifier) Send(_ context.Context, event core.Event) error {
	l.Logger.Info("notification",
		zap.String("event_id", event.ID),
		zap.String("target", event.TargetURL),
		zap.String("metric", string(event.Metric)),
		zap.String("kind", string(event.Kind)),
		zap.Int("days", event.Days),
		zap.String("message", event.Message),
	)
	return nil
}
