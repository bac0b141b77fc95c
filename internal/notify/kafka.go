package notify

import (
	"context"

	"github.com/GearGrab/service-booking/internal/application"
	"github.com/GearGrab/service-booking/internal/platform/kafka"
)

// TopicBookingEvents carries every booking event.
const TopicBookingEvents = "booking.events"

// EventPublisher is implemented by *kafka.Producer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, ce kafka.CloudEvent) error
}

// KafkaNotifier publishes events as CloudEvents keyed by booking id.
type KafkaNotifier struct {
	publisher EventPublisher
	topic     string
}

// NewKafkaNotifier creates a notifier that publishes through publisher.
func NewKafkaNotifier(publisher EventPublisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher, topic: TopicBookingEvents}
}

// Notify publishes evt as a CloudEvent keyed by booking id.
func (n *KafkaNotifier) Notify(ctx context.Context, evt application.Event) error {
	ce, err := toCloudEvent(evt)
	if err != nil {
		return err
	}
	return n.publisher.PublishEvent(ctx, n.topic, ce)
}

func toCloudEvent(evt application.Event) (kafka.CloudEvent, error) {
	ce, err := kafka.NewCloudEvent(Source, string(evt.Type), evt.BookingID.String(), evt.Data)
	if err != nil {
		return kafka.CloudEvent{}, err
	}
	if !evt.OccurredAt.IsZero() {
		ce.Time = evt.OccurredAt.UTC()
	}
	return ce, nil
}
