package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	bookingDomain "github.com/GearGrab/service-booking/internal/domain/booking"
	"github.com/GearGrab/service-booking/internal/platform/auth"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateBookingRequest holds the data a renter sends to request gear.
// Either TotalAmount or both UpfrontAmount and LaterAmount must be set.
type CreateBookingRequest struct {
	ListingID     uuid.UUID `json:"listing_id" binding:"required"`
	OwnerID       uuid.UUID `json:"owner_id" binding:"required"`
	StartDate     time.Time `json:"start_date" binding:"required"`
	EndDate       time.Time `json:"end_date" binding:"required"`
	TotalAmount   int64     `json:"total_amount" binding:"omitempty,gt=0"`
	UpfrontAmount *int64    `json:"upfront_amount" binding:"omitempty,gte=0"`
	LaterAmount   *int64    `json:"later_amount" binding:"omitempty,gte=0"`
	Currency      string    `json:"currency" binding:"required,len=3,alpha"`
	PaymentMethod string    `json:"payment_method" binding:"required"`
}

// BookingDTO is the response representation of a booking.
type BookingDTO struct {
	ID               uuid.UUID  `json:"id"`
	ListingID        uuid.UUID  `json:"listing_id"`
	OwnerID          uuid.UUID  `json:"owner_id"`
	RenterID         uuid.UUID  `json:"renter_id"`
	Status           string     `json:"status"`
	StartDate        time.Time  `json:"start_date"`
	EndDate          time.Time  `json:"end_date"`
	UpfrontAmount    int64      `json:"upfront_amount"`
	LaterAmount      int64      `json:"later_amount"`
	Currency         string     `json:"currency"`
	UpfrontPaymentID string     `json:"upfront_payment_id,omitempty"`
	RentalPaymentID  string     `json:"rental_payment_id,omitempty"`
	RefundID         string     `json:"refund_id,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	DeniedAt         *time.Time `json:"denied_at,omitempty"`
	DenialReason     string     `json:"denial_reason,omitempty"`
	ActivatedAt      *time.Time `json:"activated_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	DisputedAt       *time.Time `json:"disputed_at,omitempty"`
	DisputeReason    string     `json:"dispute_reason,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	CancelReason     string     `json:"cancel_reason,omitempty"`
	CancelRefundIDs  []string   `json:"cancel_refund_ids,omitempty"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// PaginatedResult is one page of a list query.
type PaginatedResult[T any] struct {
	Items []T
	Total int64
	Page  int
	Limit int
}

// Actor is the caller of a lifecycle operation.
type Actor struct {
	ID   uuid.UUID
	Role auth.Role
}

// SystemActor is used by event consumers acting on behalf of the platform.
var SystemActor = Actor{Role: "system"}

func (a Actor) isPrivileged() bool {
	return a.Role == auth.RoleAdmin || a.Role == SystemActor.Role
}

// BookingService is the application service orchestrating the booking lifecycle
// around the owner decision: requests, handoff, return, disputes and cancellation.
type BookingService struct {
	repo     bookingDomain.Repository
	pricing  bookingDomain.PricingStrategy
	payments PaymentCoordinator
	events   *dispatcher
	logger   *zap.Logger
	now      func() time.Time
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	repo bookingDomain.Repository,
	pricing bookingDomain.PricingStrategy,
	payments PaymentCoordinator,
	notifier Notifier,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		repo:     repo,
		pricing:  pricing,
		payments: payments,
		events:   newDispatcher(notifier, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// Flush waits for notifications that are still being delivered.
func (s *BookingService) Flush() {
	s.events.flush()
}

// SetNotifyTimeout changes the per-event delivery deadline.
func (s *BookingService) SetNotifyTimeout(d time.Duration) {
	s.events.setTimeout(d)
}

// RequestBooking places the upfront hold and stores the new booking. If the
// booking cannot be stored the hold is refunded again.
func (s *BookingService) RequestBooking(ctx context.Context, renterID uuid.UUID, req CreateBookingRequest) (*BookingDTO, error) {
	price, err := s.priceFor(req)
	if err != nil {
		return nil, err
	}

	bk, err := bookingDomain.NewBooking(req.ListingID, req.OwnerID, renterID, req.StartDate, req.EndDate, price)
	if err != nil {
		return nil, err
	}

	hold, err := s.payments.PlaceUpfrontHold(ctx, bk, req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if err := bk.AttachHold(hold.ID, hold.Currency); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, bk); err != nil {
		s.logger.Error("failed to save booking, refunding hold",
			zap.String("booking_id", bk.ID().String()),
			zap.String("hold_id", hold.ID),
			zap.Error(err),
		)
		if _, refundErr := s.payments.RefundUpfront(context.WithoutCancel(ctx), bk, "booking could not be stored"); refundErr != nil {
			s.logger.Error("compensating refund failed",
				zap.String("booking_id", bk.ID().String()),
				zap.String("hold_id", hold.ID),
				zap.Error(refundErr),
			)
		}
		return nil, fmt.Errorf("failed to save booking: %w", err)
	}

	s.events.dispatch(ctx, Event{
		Type:       EventBookingRequested,
		BookingID:  bk.ID(),
		OccurredAt: bk.CreatedAt(),
		Data: BookingRequestedEvent{
			BookingID:     bk.ID(),
			ListingID:     bk.ListingID(),
			OwnerID:       bk.OwnerID(),
			RenterID:      bk.RenterID(),
			UpfrontAmount: bk.Price().UpfrontAmount,
			LaterAmount:   bk.Price().LaterAmount,
			Currency:      bk.Price().Currency,
			StartDate:     bk.StartDate(),
			EndDate:       bk.EndDate(),
		},
	})

	result := toBookingDTO(bk)
	return &result, nil
}

func (s *BookingService) priceFor(req CreateBookingRequest) (bookingDomain.PriceBreakdown, error) {
	if req.UpfrontAmount != nil && req.LaterAmount != nil {
		price := bookingDomain.PriceBreakdown{
			UpfrontAmount: *req.UpfrontAmount,
			LaterAmount:   *req.LaterAmount,
			Currency:      req.Currency,
		}
		if req.TotalAmount != 0 && req.TotalAmount != price.Total() {
			return bookingDomain.PriceBreakdown{}, bookingDomain.NewValidationError("total_amount does not match upfront_amount + later_amount")
		}
		return price.Normalize()
	}
	if req.UpfrontAmount != nil || req.LaterAmount != nil {
		return bookingDomain.PriceBreakdown{}, bookingDomain.NewValidationError("upfront_amount and later_amount must be given together")
	}
	if req.TotalAmount <= 0 {
		return bookingDomain.PriceBreakdown{}, bookingDomain.NewValidationError("total_amount is required")
	}
	return s.pricing.Split(req.TotalAmount, req.Currency)
}

// GetBooking retrieves a single booking visible to the actor.
func (s *BookingService) GetBooking(ctx context.Context, bookingID uuid.UUID, actor Actor) (*BookingDTO, error) {
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.isPrivileged() && !bk.IsParticipant(actor.ID) {
		return nil, bookingDomain.ErrForbidden.WithMessage("booking does not belong to this user")
	}
	result := toBookingDTO(bk)
	return &result, nil
}

// ListBookings returns the bookings where the user is owner or renter.
func (s *BookingService) ListBookings(ctx context.Context, userID uuid.UUID, status string, page, limit int) (*PaginatedResult[BookingDTO], error) {
	filter := bookingDomain.ListFilter{ParticipantID: userID}
	if status != "" {
		st, err := bookingDomain.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = st
	}
	return s.list(ctx, filter, page, limit)
}

// ActivateRental records the handoff of the gear to the renter.
func (s *BookingService) ActivateRental(ctx context.Context, bookingID uuid.UUID, actor Actor) (*BookingDTO, error) {
	return s.transition(ctx, bookingID, actor, ownerOnly, EventBookingActivated, "", func(bk *bookingDomain.Booking, now time.Time) error {
		return bk.Activate(now)
	})
}

// CompleteRental records the return of the gear.
func (s *BookingService) CompleteRental(ctx context.Context, bookingID uuid.UUID, actor Actor) (*BookingDTO, error) {
	return s.transition(ctx, bookingID, actor, ownerOnly, EventBookingCompleted, "", func(bk *bookingDomain.Booking, now time.Time) error {
		return bk.Complete(now)
	})
}

// OpenDispute opens a damage or loss claim on an active rental.
func (s *BookingService) OpenDispute(ctx context.Context, bookingID uuid.UUID, actor Actor, reason string) (*BookingDTO, error) {
	return s.transition(ctx, bookingID, actor, participants, EventBookingDisputed, reason, func(bk *bookingDomain.Booking, now time.Time) error {
		return bk.Dispute(reason, now)
	})
}

// CancelBooking cancels a confirmed booking and refunds what was paid.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID uuid.UUID, actor Actor, reason string) (*BookingDTO, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, bookingDomain.NewValidationError("a reason is required to cancel a booking")
	}

	var lost lostWrite
	dto, err := s.transition(ctx, bookingID, actor, participants, EventBookingCancelled, reason, func(bk *bookingDomain.Booking, now time.Time) error {
		if !bk.Status().CanBeCancelled() {
			return bookingDomain.NewInvalidTransitionError(bk.Status(), bookingDomain.StatusCancelled)
		}
		// Partial refunds are kept so a failure below can still be reconciled.
		ids, err := s.payments.RefundCancellation(ctx, bk, reason)
		lost = lostWrite{booking: bk, refundIDs: ids}
		if err != nil {
			return err
		}
		return bk.Cancel(actor.ID, ids, reason, now)
	})
	if err != nil {
		reconcileLostWrite(ctx, s.repo, s.payments, s.logger, lost)
		return nil, err
	}
	return dto, nil
}

type permission int

const (
	ownerOnly permission = iota
	participants
)

func (s *BookingService) transition(
	ctx context.Context,
	bookingID uuid.UUID,
	actor Actor,
	perm permission,
	eventType EventType,
	reason string,
	apply func(bk *bookingDomain.Booking, now time.Time) error,
) (*BookingDTO, error) {
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.isPrivileged() {
		allowed := bk.OwnerID() == actor.ID
		if perm == participants {
			allowed = bk.IsParticipant(actor.ID)
		}
		if !allowed {
			return nil, bookingDomain.ErrForbidden.WithMessage("not allowed to change this booking")
		}
	}

	pre := bookingDomain.ExpectCurrent(bk)
	now := s.now().UTC()
	if err := apply(bk, now); err != nil {
		return nil, err
	}

	bk.IncrementVersion()
	if err := s.repo.Update(ctx, bk, pre); err != nil {
		return nil, err
	}

	s.logger.Info("booking status changed",
		zap.String("booking_id", bk.ID().String()),
		zap.String("from", string(pre.Status)),
		zap.String("to", string(bk.Status())),
	)

	evt := BookingLifecycleEvent{
		BookingID: bk.ID(),
		OwnerID:   bk.OwnerID(),
		RenterID:  bk.RenterID(),
		Status:    string(bk.Status()),
		Reason:    reason,
		RefundIDs: bk.CancelRefunds(),
	}
	if actor.ID != uuid.Nil {
		id := actor.ID
		evt.ActorID = &id
	}
	s.events.dispatch(ctx, Event{Type: eventType, BookingID: bk.ID(), OccurredAt: now, Data: evt})

	result := toBookingDTO(bk)
	return &result, nil
}

// --- Admin methods ---

// BookingStatsDTO holds booking statistics for the admin dashboard.
type BookingStatsDTO struct {
	TotalBookings int64            `json:"total_bookings"`
	ByStatus      map[string]int64 `json:"by_status"`
}

// ListAllBookings returns a paginated list of all bookings, optionally by status (admin).
func (s *BookingService) ListAllBookings(ctx context.Context, status string, page, limit int) (*PaginatedResult[BookingDTO], error) {
	var filter bookingDomain.ListFilter
	if status != "" {
		st, err := bookingDomain.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = st
	}
	return s.list(ctx, filter, page, limit)
}

// GetBookingStats returns aggregate booking statistics (admin).
func (s *BookingService) GetBookingStats(ctx context.Context) (*BookingStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking stats: %w", err)
	}

	var total int64
	for _, c := range counts {
		total += c
	}

	return &BookingStatsDTO{
		TotalBookings: total,
		ByStatus:      counts,
	}, nil
}

// --- Helpers ---

func (s *BookingService) list(ctx context.Context, filter bookingDomain.ListFilter, page, limit int) (*PaginatedResult[BookingDTO], error) {
	bookings, total, err := s.repo.List(ctx, filter, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	dtos := make([]BookingDTO, len(bookings))
	for i, bk := range bookings {
		dtos[i] = toBookingDTO(bk)
	}
	return &PaginatedResult[BookingDTO]{Items: dtos, Total: total, Page: page, Limit: limit}, nil
}

func toBookingDTO(bk *bookingDomain.Booking) BookingDTO {
	price := bk.Price()
	return BookingDTO{
		ID:               bk.ID(),
		ListingID:        bk.ListingID(),
		OwnerID:          bk.OwnerID(),
		RenterID:         bk.RenterID(),
		Status:           string(bk.Status()),
		StartDate:        bk.StartDate(),
		EndDate:          bk.EndDate(),
		UpfrontAmount:    price.UpfrontAmount,
		LaterAmount:      price.LaterAmount,
		Currency:         price.Currency,
		UpfrontPaymentID: bk.UpfrontPaymentID(),
		RentalPaymentID:  bk.RentalPaymentID(),
		RefundID:         bk.RefundID(),
		ApprovedAt:       bk.ApprovedAt(),
		DeniedAt:         bk.DeniedAt(),
		DenialReason:     bk.DenialReason(),
		ActivatedAt:      bk.ActivatedAt(),
		CompletedAt:      bk.CompletedAt(),
		DisputedAt:       bk.DisputedAt(),
		DisputeReason:    bk.DisputeReason(),
		CancelledAt:      bk.CancelledAt(),
		CancelReason:     bk.CancelReason(),
		CancelRefundIDs:  bk.CancelRefunds(),
		Version:          bk.Version(),
		CreatedAt:        bk.CreatedAt(),
		UpdatedAt:        bk.UpdatedAt(),
	}
}
