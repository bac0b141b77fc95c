package application

import (
	"context"
	"sync"
	"testing"
	"time"

	bookingDomain "github.com/GearGrab/service-booking/internal/domain/booking"
	"github.com/GearGrab/service-booking/internal/payment"
	"github.com/GearGrab/service-booking/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Notify(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.err
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type fixture struct {
	repo        *repository.MemoryBookingRepository
	gateway     *payment.FakeGateway
	coordinator *payment.Coordinator
	notifier    *recorder
	logs        *observer.ObservedLogs
	resolutions *ResolutionService
	bookings    *BookingService
	owner       uuid.UUID
	renter      uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	f := &fixture{
		repo:     repository.NewMemoryBookingRepository(),
		gateway:  payment.NewFakeGateway(),
		notifier: &recorder{},
		logs:     logs,
		owner:    uuid.New(),
		renter:   uuid.New(),
	}
	f.coordinator = payment.NewCoordinator(f.gateway, logger)
	f.resolutions = NewResolutionService(f.repo, f.coordinator, f.notifier, logger)
	f.bookings = NewBookingService(f.repo, bookingDomain.NewDepositPricingStrategy(), f.coordinator, f.notifier, logger)
	return f
}

// seed stores a pending booking whose upfront hold was taken through the
// fake gateway, so it is hold_1 for the first booking of a fixture.
func (f *fixture) seed(t *testing.T, upfront, later int64) *bookingDomain.Booking {
	t.Helper()
	bk := f.newPending(t, upfront, later)
	hold, err := f.coordinator.PlaceUpfrontHold(context.Background(), bk, "pm_card_visa")
	require.NoError(t, err)
	require.NoError(t, bk.AttachHold(hold.ID, hold.Currency))
	require.NoError(t, f.repo.Save(context.Background(), bk))
	return bk
}

func (f *fixture) newPending(t *testing.T, upfront, later int64) *bookingDomain.Booking {
	t.Helper()
	start := time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC)
	bk, err := bookingDomain.NewBooking(uuid.New(), f.owner, f.renter, start, start.Add(48*time.Hour),
		bookingDomain.PriceBreakdown{UpfrontAmount: upfront, LaterAmount: later, Currency: "usd"})
	require.NoError(t, err)
	return bk
}

// events waits for in-flight deliveries and returns what the notifier received.
func (f *fixture) events() []Event {
	f.resolutions.Flush()
	f.bookings.Flush()
	return f.notifier.Events()
}

func (f *fixture) load(t *testing.T, id uuid.UUID) *bookingDomain.Booking {
	t.Helper()
	bk, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return bk
}
