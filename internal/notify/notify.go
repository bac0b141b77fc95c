// Package notify delivers booking events to the sinks enabled by NOTIFY_SINKS.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/GearGrab/service-booking/internal/application"
	"github.com/GearGrab/service-booking/internal/platform/metrics"
	"go.uber.org/zap"
)

// Source is the CloudEvents source of every event this service emits.
const Source = "service-booking"

// Sink is a named notifier.
type Sink struct {
	Name     string
	Notifier application.Notifier
}

// Multi fans an event out to every sink. A failing sink does not stop the
// others; failures are counted per sink and returned joined.
type Multi struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewMulti creates a Multi over sinks.
func NewMulti(logger *zap.Logger, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }

// Notify sends evt to every sink and joins their errors.
func (m *Multi) Notify(ctx context.Context, evt application.Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Notifier.Notify(ctx, evt); err != nil {
			metrics.NotificationFailures.WithLabelValues(s.Name).Inc()
			m.logger.Warn("notification sink failed",
				zap.String("sink", s.Name),
				zap.String("event_type", string(evt.Type)),
				zap.String("booking_id", evt.BookingID.String()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes events to the service log. It is the fallback sink when
// no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier writing to logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs evt at info level. It never fails.
func (n *LogNotifier) Notify(_ context.Context, evt application.Event) error {
	n.logger.Info("booking event",
		zap.String("event_type", string(evt.Type)),
		zap.String("booking_id", evt.BookingID.String()),
		zap.Time("occurred_at", evt.OccurredAt),
		zap.Any("data", evt.Data),
	)
	return nil
}
