package application

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType names a booking event on every notification sink.
type EventType string

const (
	EventBookingRequested EventType = "booking.requested"
	EventBookingApproved  EventType = "booking.approved"
	EventBookingDenied    EventType = "booking.denied"
	EventBookingActivated EventType = "booking.activated"
	EventBookingCompleted EventType = "booking.completed"
	EventBookingDisputed  EventType = "booking.disputed"
	EventBookingCancelled EventType = "booking.cancelled"
)

// Event is what the booking service tells the outside world after a
// successful write. Data is one of the payload types below.
type Event struct {
	Type       EventType
	BookingID  uuid.UUID
	OccurredAt time.Time
	Data       any
}

// BookingApprovedEvent is sent once the remainder was charged and the booking confirmed.
type BookingApprovedEvent struct {
	BookingID uuid.UUID `json:"bookingId"`
	OwnerID   uuid.UUID `json:"ownerId"`
	RenterID  uuid.UUID `json:"renterId"`
	ChargeID  string    `json:"chargeId,omitempty"`
}

// BookingDeniedEvent is sent once the hold was refunded and the booking denied.
type BookingDeniedEvent struct {
	BookingID uuid.UUID `json:"bookingId"`
	OwnerID   uuid.UUID `json:"ownerId"`
	RenterID  uuid.UUID `json:"renterId"`
	RefundID  string    `json:"refundId,omitempty"`
	Reason    string    `json:"reason"`
}

// BookingRequestedEvent tells the owner a renter is waiting for a decision.
type BookingRequestedEvent struct {
	BookingID     uuid.UUID `json:"bookingId"`
	ListingID     uuid.UUID `json:"listingId"`
	OwnerID       uuid.UUID `json:"ownerId"`
	RenterID      uuid.UUID `json:"renterId"`
	UpfrontAmount int64     `json:"upfrontAmount"`
	LaterAmount   int64     `json:"laterAmount"`
	Currency      string    `json:"currency"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
}

// BookingLifecycleEvent covers the post-approval transitions.
type BookingLifecycleEvent struct {
	BookingID uuid.UUID  `json:"bookingId"`
	OwnerID   uuid.UUID  `json:"ownerId"`
	RenterID  uuid.UUID  `json:"renterId"`
	Status    string     `json:"status"`
	ActorID   *uuid.UUID `json:"actorId,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	RefundIDs []string   `json:"refundIds,omitempty"`
}

// Notifier delivers booking events. Delivery is best effort: callers log a
// returned error and never roll back the write that produced the event.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, evt Event) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, evt Event) error { return f(ctx, evt) }

// NopNotifier drops every event.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(context.Context, Event) error { return nil }

// DefaultNotifyTimeout bounds one event's delivery across all sinks.
const DefaultNotifyTimeout = 10 * time.Second

// dispatcher delivers events off the request path. Deliveries run one at a
// time in dispatch order, each detached from the request context and bounded
// by its own deadline, so a slow sink never holds up a response.
type dispatcher struct {
	notifier Notifier
	logger   *zap.Logger
	timeout  time.Duration

	mu       sync.Mutex
	last     chan struct{}
	inflight sync.WaitGroup
}

func newDispatcher(n Notifier, logger *zap.Logger) *dispatcher {
	if n == nil {
		n = NopNotifier{}
	}
	return &dispatcher{notifier: n, logger: logger, timeout: DefaultNotifyTimeout}
}

func (d *dispatcher) dispatch(ctx context.Context, evt Event) {
	base := context.WithoutCancel(ctx)
	done := make(chan struct{})

	d.mu.Lock()
	prev := d.last
	d.last = done
	timeout := d.timeout
	d.mu.Unlock()

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}

		ctx, cancel := context.WithTimeout(base, timeout)
		defer cancel()
		if err := d.notifier.Notify(ctx, evt); err != nil {
			d.logger.Error("failed to deliver booking notification",
				zap.String("event_type", string(evt.Type)),
				zap.String("booking_id", evt.BookingID.String()),
				zap.Error(err),
			)
		}
	}()
}

func (d *dispatcher) setTimeout(timeout time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeout = timeout
}

// flush blocks until every dispatched event was delivered or gave up.
func (d *dispatcher) flush() {
	d.inflight.Wait()
}
