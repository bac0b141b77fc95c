// Package events consumes rental handoff events from other services.
package events

import (
	"context"
	"errors"

	"github.com/GearGrab/service-booking/internal/application"
	bookingDomain "github.com/GearGrab/service-booking/internal/domain/booking"
	"github.com/GearGrab/service-booking/internal/platform/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Rental topic and event types published by the handoff service.
const (
	TopicRentalEvents = "rental.events"

	RentalPickedUp = "rental.picked_up"
	RentalReturned = "rental.returned"
)

// RentalEvent is the payload of rental.picked_up and rental.returned.
type RentalEvent struct {
	BookingID uuid.UUID `json:"bookingId"`
}

// RentalLifecycle is implemented by *application.BookingService.
type RentalLifecycle interface {
	ActivateRental(ctx context.Context, bookingID uuid.UUID, actor application.Actor) (*application.BookingDTO, error)
	CompleteRental(ctx context.Context, bookingID uuid.UUID, actor application.Actor) (*application.BookingDTO, error)
}

// RentalEventConsumer moves bookings to ACTIVE and COMPLETED as gear is
// handed over and returned.
type RentalEventConsumer struct {
	consumer *kafka.Consumer
	service  RentalLifecycle
	logger   *zap.Logger
}

// NewRentalEventConsumer creates a new RentalEventConsumer.
func NewRentalEventConsumer(
	brokers []string,
	groupID string,
	service RentalLifecycle,
	logger *zap.Logger,
) *RentalEventConsumer {
	return &RentalEventConsumer{
		consumer: kafka.NewConsumer(brokers, groupID, TopicRentalEvents, logger),
		service:  service,
		logger:   logger,
	}
}

// Start begins consuming rental events. This blocks until the context is cancelled.
func (c *RentalEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *RentalEventConsumer) Close() error {
	return c.consumer.Close()
}

func (c *RentalEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from rental topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}

	var apply func(ctx context.Context, bookingID uuid.UUID, actor application.Actor) (*application.BookingDTO, error)
	switch cloudEvent.Type {
	case RentalPickedUp:
		apply = c.service.ActivateRental
	case RentalReturned:
		apply = c.service.CompleteRental
	default:
		c.logger.Debug("ignoring unhandled rental event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}

	var evt RentalEvent
	if err := cloudEvent.ParseData(&evt); err != nil || evt.BookingID == uuid.Nil {
		c.logger.Error("invalid rental event data",
			zap.String("type", cloudEvent.Type),
			zap.Error(err),
		)
		return nil
	}

	log := c.logger.With(
		zap.String("type", cloudEvent.Type),
		zap.String("booking_id", evt.BookingID.String()),
	)

	result, err := apply(ctx, evt.BookingID, application.SystemActor)
	switch {
	case err == nil:
		log.Info("booking updated from rental event", zap.String("status", result.Status))
		return nil
	case errors.Is(err, bookingDomain.ErrNotFound), errors.Is(err, bookingDomain.ErrInvalidTransition):
		// Redelivered or out-of-order events cannot succeed later either.
		log.Warn("skipping rental event", zap.Error(err))
		return nil
	default:
		log.Error("failed to apply rental event", zap.Error(err))
		return err
	}
}
