//go:build integration

package main_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GearGrab/service-booking/internal/application"
	bookingDomain "github.com/GearGrab/service-booking/internal/domain/booking"
	bookingEvents "github.com/GearGrab/service-booking/internal/events"
	"github.com/GearGrab/service-booking/internal/notify"
	"github.com/GearGrab/service-booking/internal/payment"
	"github.com/GearGrab/service-booking/internal/platform/kafka"
	"github.com/GearGrab/service-booking/internal/repository"
)

// TestApproveCapturesRemainderAndPublishes approves a pending booking against
// PostgreSQL and checks that booking.approved reaches booking.events.
func TestApproveCapturesRemainderAndPublishes(t *testing.T) {
	db := setupPostgres(t)
	brokers := setupKafka(t)

	logger, _ := zap.NewDevelopment()
	producer := kafka.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	stack := setupBookingStack(t, repository.NewGormBookingRepository(db), notify.NewKafkaNotifier(producer), nil)

	ownerID, renterID := uuid.New(), uuid.New()
	requested := requestBooking(t, stack, ownerID, renterID)

	result, err := stack.Resolutions.ResolveBooking(context.Background(), application.ResolveCommand{
		BookingID: requested.ID,
		ActorID:   ownerID,
		Action:    application.ActionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, string(bookingDomain.StatusConfirmed), result.Status)
	require.NotEmpty(t, result.ChargeID)

	model := waitForBookingStatus(t, db, requested.ID, bookingDomain.StatusConfirmed, 5*time.Second)
	assert.Equal(t, result.ChargeID, model.RentalPaymentID)
	assert.Equal(t, int64(2000), model.UpfrontAmount)
	assert.Equal(t, int64(3000), model.LaterAmount)
	require.NotNil(t, model.ApprovedBy)
	assert.Equal(t, ownerID, *model.ApprovedBy)

	charges := stack.Gateway.Charges()
	require.Len(t, charges, 2)
	assert.Equal(t, int64(3000), charges[1].Amount)
	assert.Equal(t, payment.IdempotencyKey(requested.ID, payment.StageRemainder), charges[1].IdempotencyKey)

	ce := consumeOneEvent(t, brokers, notify.TopicBookingEvents,
		string(application.EventBookingApproved), requested.ID.String(), 15*time.Second)

	var approved application.BookingApprovedEvent
	require.NoError(t, ce.ParseData(&approved))
	assert.Equal(t, requested.ID, approved.BookingID)
	assert.Equal(t, ownerID, approved.OwnerID)
	assert.Equal(t, renterID, approved.RenterID)
	assert.Equal(t, result.ChargeID, approved.ChargeID)
}

// TestRentalEventsDriveLifecycle verifies that rental.picked_up and
// rental.returned move a confirmed booking through ACTIVE to COMPLETED.
func TestRentalEventsDriveLifecycle(t *testing.T) {
	db := setupPostgres(t)
	brokers := setupKafka(t)

	stack := setupBookingStack(t, repository.NewGormBookingRepository(db), application.NopNotifier{}, brokers)

	ownerID, renterID := uuid.New(), uuid.New()
	requested := requestBooking(t, stack, ownerID, renterID)
	_, err := stack.Resolutions.ResolveBooking(context.Background(), application.ResolveCommand{
		BookingID: requested.ID,
		ActorID:   ownerID,
		Action:    application.ActionApprove,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = stack.Consumer.Start(ctx) }()
	time.Sleep(3 * time.Second) // Wait for consumer group join.

	publishTestEvent(t, brokers, bookingEvents.TopicRentalEvents, "service-handoff",
		bookingEvents.RentalPickedUp, bookingEvents.RentalEvent{BookingID: requested.ID})
	model := waitForBookingStatus(t, db, requested.ID, bookingDomain.StatusActive, 15*time.Second)
	assert.NotNil(t, model.ActivatedAt)

	publishTestEvent(t, brokers, bookingEvents.TopicRentalEvents, "service-handoff",
		bookingEvents.RentalReturned, bookingEvents.RentalEvent{BookingID: requested.ID})
	model = waitForBookingStatus(t, db, requested.ID, bookingDomain.StatusCompleted, 15*time.Second)
	assert.NotNil(t, model.CompletedAt)
}

// TestPostgresConditionalUpdateRejectsStaleWrite loads the same booking twice
// and checks that only the first resolution is persisted.
func TestPostgresConditionalUpdateRejectsStaleWrite(t *testing.T) {
	db := setupPostgres(t)
	repo := repository.NewGormBookingRepository(db)
	stack := setupBookingStack(t, repo, nil, nil)

	ownerID := uuid.New()
	requested := requestBooking(t, stack, ownerID, uuid.New())
	ctx := context.Background()

	first, err := repo.FindByID(ctx, requested.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, requested.ID)
	require.NoError(t, err)

	now := time.Now().UTC()

	pre := bookingDomain.ExpectCurrent(first)
	require.NoError(t, first.Approve(ownerID, "ch_first", now))
	first.IncrementVersion()
	require.NoError(t, repo.Update(ctx, first, pre))

	pre = bookingDomain.ExpectCurrent(second)
	require.NoError(t, second.Deny(ownerID, "", "changed my mind", now))
	second.IncrementVersion()
	err = repo.Update(ctx, second, pre)
	require.ErrorIs(t, err, bookingDomain.ErrPreconditionFailed)

	stored := waitForBookingStatus(t, db, requested.ID, bookingDomain.StatusConfirmed, time.Second)
	assert.Equal(t, "ch_first", stored.RentalPaymentID)
	assert.Empty(t, stored.DenialReason)
}

// TestAuditNotifierRecordsHistory checks that the audit sink writes one row
// per booking event.
func TestAuditNotifierRecordsHistory(t *testing.T) {
	db := setupPostgres(t)
	audit := notify.NewAuditNotifier(db)
	stack := setupBookingStack(t, repository.NewGormBookingRepository(db), audit, nil)

	ownerID := uuid.New()
	requested := requestBooking(t, stack, ownerID, uuid.New())

	result, err := stack.Resolutions.ResolveBooking(context.Background(), application.ResolveCommand{
		BookingID: requested.ID,
		ActorID:   ownerID,
		Action:    application.ActionDeny,
		Reason:    "gear is being repaired",
	})
	require.NoError(t, err)
	assert.Equal(t, string(bookingDomain.StatusDenied), result.Status)
	assert.NotEmpty(t, result.RefundID)

	var history []notify.AuditLogModel
	require.Eventually(t, func() bool {
		history, err = audit.History(context.Background(), requested.ID)
		return err == nil && len(history) == 2
	}, 5*time.Second, 100*time.Millisecond)

	assert.Equal(t, string(application.EventBookingRequested), history[0].EventType)
	assert.Equal(t, string(application.EventBookingDenied), history[1].EventType)
	assert.Contains(t, string(history[1].Payload), "gear is being repaired")
}

// TestMongoRepositoryResolution runs a full approval against the MongoDB store.
func TestMongoRepositoryResolution(t *testing.T) {
	mdb := setupMongo(t)
	repo := repository.NewMongoBookingRepository(mdb)
	require.NoError(t, repo.EnsureIndexes(context.Background()))

	stack := setupBookingStack(t, repo, nil, nil)

	ownerID, renterID := uuid.New(), uuid.New()
	requested := requestBooking(t, stack, ownerID, renterID)

	result, err := stack.Resolutions.ResolveBooking(context.Background(), application.ResolveCommand{
		BookingID: requested.ID,
		ActorID:   ownerID,
		Action:    application.ActionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, string(bookingDomain.StatusConfirmed), result.Status)

	again, err := stack.Resolutions.ResolveBooking(context.Background(), application.ResolveCommand{
		BookingID: requested.ID,
		ActorID:   ownerID,
		Action:    application.ActionDeny,
		Reason:    "too late",
	})
	require.ErrorIs(t, err, bookingDomain.ErrAlreadyResolved)
	assert.Equal(t, string(bookingDomain.StatusConfirmed), again.Status)

	page, err := stack.Bookings.ListBookings(context.Background(), renterID, "CONFIRMED", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, result.ChargeID, page.Items[0].RentalPaymentID)
}
