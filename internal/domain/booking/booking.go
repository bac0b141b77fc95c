package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Booking is the aggregate root for a gear rental request.
type Booking struct {
	id        uuid.UUID
	listingID uuid.UUID
	ownerID   uuid.UUID
	renterID  uuid.UUID
	status    Status
	startDate time.Time
	endDate   time.Time
	price     PriceBreakdown

	upfrontPaymentID string
	holdCurrency     string
	rentalPaymentID  string
	refundID         string

	approvedAt   *time.Time
	approvedBy   *uuid.UUID
	deniedAt     *time.Time
	deniedBy     *uuid.UUID
	denialReason string

	activatedAt   *time.Time
	completedAt   *time.Time
	disputedAt    *time.Time
	disputeReason string
	cancelledAt   *time.Time
	cancelledBy   *uuid.UUID
	cancelReason  string
	cancelRefunds []string

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// NewBooking creates a new Booking aggregate awaiting the owner's decision.
func NewBooking(
	listingID uuid.UUID,
	ownerID uuid.UUID,
	renterID uuid.UUID,
	startDate time.Time,
	endDate time.Time,
	price PriceBreakdown,
) (*Booking, error) {
	if listingID == uuid.Nil {
		return nil, NewValidationError("listing ID is required")
	}
	if ownerID == uuid.Nil {
		return nil, NewValidationError("owner ID is required")
	}
	if renterID == uuid.Nil {
		return nil, NewValidationError("renter ID is required")
	}
	if ownerID == renterID {
		return nil, NewValidationError("owners cannot rent their own gear")
	}
	if startDate.IsZero() || endDate.IsZero() {
		return nil, NewValidationError("start and end dates are required")
	}
	if !endDate.After(startDate) {
		return nil, NewValidationError("end date must be after start date")
	}
	price, err := price.Normalize()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Booking{
		id:        uuid.New(),
		listingID: listingID,
		ownerID:   ownerID,
		renterID:  renterID,
		status:    StatusPendingOwnerApproval,
		startDate: startDate.UTC(),
		endDate:   endDate.UTC(),
		price:     price,
		version:   1,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Snapshot is the flat persistence view of a Booking.
type Snapshot struct {
	ID               uuid.UUID
	ListingID        uuid.UUID
	OwnerID          uuid.UUID
	RenterID         uuid.UUID
	Status           Status
	StartDate        time.Time
	EndDate          time.Time
	Price            PriceBreakdown
	UpfrontPaymentID string
	HoldCurrency     string
	RentalPaymentID  string
	RefundID         string
	ApprovedAt       *time.Time
	ApprovedBy       *uuid.UUID
	DeniedAt         *time.Time
	DeniedBy         *uuid.UUID
	DenialReason     string
	ActivatedAt      *time.Time
	CompletedAt      *time.Time
	DisputedAt       *time.Time
	DisputeReason    string
	CancelledAt      *time.Time
	CancelledBy      *uuid.UUID
	CancelReason     string
	CancelRefunds    []string
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ReconstructBooking rebuilds a Booking from persistence data (no validation).
func ReconstructBooking(s Snapshot) *Booking {
	return &Booking{
		id:               s.ID,
		listingID:        s.ListingID,
		ownerID:          s.OwnerID,
		renterID:         s.RenterID,
		status:           s.Status,
		startDate:        s.StartDate,
		endDate:          s.EndDate,
		price:            s.Price,
		upfrontPaymentID: s.UpfrontPaymentID,
		holdCurrency:     s.HoldCurrency,
		rentalPaymentID:  s.RentalPaymentID,
		refundID:         s.RefundID,
		approvedAt:       s.ApprovedAt,
		approvedBy:       s.ApprovedBy,
		deniedAt:         s.DeniedAt,
		deniedBy:         s.DeniedBy,
		denialReason:     s.DenialReason,
		activatedAt:      s.ActivatedAt,
		completedAt:      s.CompletedAt,
		disputedAt:       s.DisputedAt,
		disputeReason:    s.DisputeReason,
		cancelledAt:      s.CancelledAt,
		cancelledBy:      s.CancelledBy,
		cancelReason:     s.CancelReason,
		cancelRefunds:    s.CancelRefunds,
		version:          s.Version,
		createdAt:        s.CreatedAt,
		updatedAt:        s.UpdatedAt,
	}
}

// Snapshot returns the persistence view of the booking.
func (b *Booking) Snapshot() Snapshot {
	return Snapshot{
		ID:               b.id,
		ListingID:        b.listingID,
		OwnerID:          b.ownerID,
		RenterID:         b.renterID,
		Status:           b.status,
		StartDate:        b.startDate,
		EndDate:          b.endDate,
		Price:            b.price,
		UpfrontPaymentID: b.upfrontPaymentID,
		HoldCurrency:     b.holdCurrency,
		RentalPaymentID:  b.rentalPaymentID,
		RefundID:         b.refundID,
		ApprovedAt:       b.approvedAt,
		ApprovedBy:       b.approvedBy,
		DeniedAt:         b.deniedAt,
		DeniedBy:         b.deniedBy,
		DenialReason:     b.denialReason,
		ActivatedAt:      b.activatedAt,
		CompletedAt:      b.completedAt,
		DisputedAt:       b.disputedAt,
		DisputeReason:    b.disputeReason,
		CancelledAt:      b.cancelledAt,
		CancelledBy:      b.cancelledBy,
		CancelReason:     b.cancelReason,
		CancelRefunds:    b.cancelRefunds,
		Version:          b.version,
		CreatedAt:        b.createdAt,
		UpdatedAt:        b.updatedAt,
	}
}

// --- Getters ---

func (b *Booking) ID() uuid.UUID { return b.id }
func (b *Booking) ListingID() uuid.UUID { return b.listingID }
func (b *Booking) OwnerID() uuid.UUID { return b.ownerID }
func (b *Booking) RenterID() uuid.UUID { return b.renterID }
func (b *Booking) Status() Status { return b.status }
func (b *Booking) StartDate() time.Time { return b.startDate }
func (b *Booking) EndDate() time.Time { return b.endDate }
func (b *Booking) Price() PriceBreakdown { return b.price }
func (b *Booking) UpfrontPaymentID() string { return b.upfrontPaymentID }
func (b *Booking) RentalPaymentID() string { return b.rentalPaymentID }
func (b *Booking) RefundID() string { return b.refundID }
func (b *Booking) ApprovedAt() *time.Time { return b.approvedAt }
func (b *Booking) ApprovedBy() *uuid.UUID { return b.approvedBy }
func (b *Booking) DeniedAt() *time.Time { return b.deniedAt }
func (b *Booking) DeniedBy() *uuid.UUID { return b.deniedBy }
func (b *Booking) DenialReason() string { return b.denialReason }
func (b *Booking) ActivatedAt() *time.Time { return b.activatedAt }
func (b *Booking) CompletedAt() *time.Time { return b.completedAt }
func (b *Booking) DisputedAt() *time.Time { return b.disputedAt }
func (b *Booking) DisputeReason() string { return b.disputeReason }
func (b *Booking) CancelledAt() *time.Time { return b.cancelledAt }
func (b *Booking) CancelledBy() *uuid.UUID { return b.cancelledBy }
func (b *Booking) CancelReason() string { return b.cancelReason }
func (b *Booking) CancelRefunds() []string { return b.cancelRefunds }
func (b *Booking) Version() int64 { return b.version }
func (b *Booking) CreatedAt() time.Time { return b.createdAt }
func (b *Booking) UpdatedAt() time.Time { return b.updatedAt }

// HoldCurrency returns the currency the upfront hold was taken in. Records
// written before the hold currency was tracked fall back to the price currency.
func (b *Booking) HoldCurrency() string {
	if b.holdCurrency == "" {
		return b.price.Currency
	}
	return b.holdCurrency
}

// HasHold reports whether the upfront hold was taken.
func (b *Booking) HasHold() bool { return b.upfrontPaymentID != "" }

// IsResolved reports whether the owner already approved or denied the booking.
func (b *Booking) IsResolved() bool { return b.approvedAt != nil || b.deniedAt != nil }

// IsParticipant reports whether the user is the booking's owner or renter.
func (b *Booking) IsParticipant(userID uuid.UUID) bool {
	return userID == b.ownerID || userID == b.renterID
}

// --- Behavior ---

// AttachHold records the upfront hold taken at request time. It can be set once.
func (b *Booking) AttachHold(paymentID, currency string) error {
	if b.status != StatusPendingOwnerApproval {
		return NewInvalidTransitionError(b.status, StatusPendingOwnerApproval)
	}
	if paymentID == "" {
		return NewValidationError("hold payment ID is required")
	}
	if b.upfrontPaymentID != "" {
		return NewValidationError("upfront hold already attached")
	}
	b.upfrontPaymentID = paymentID
	b.holdCurrency = strings.ToLower(currency)
	b.updatedAt = time.Now().UTC()
	return nil
}

// Approve moves a pending booking to CONFIRMED. chargeID is empty when there
// was no remainder to charge.
func (b *Booking) Approve(actorID uuid.UUID, chargeID string, now time.Time) error {
	if err := b.checkResolution(StatusConfirmed); err != nil {
		return err
	}
	if !b.HasHold() {
		return ErrHoldRequired
	}
	b.status = StatusConfirmed
	b.rentalPaymentID = chargeID
	b.approvedAt = &now
	b.approvedBy = &actorID
	b.updatedAt = now
	return nil
}

// Deny moves a pending booking to DENIED. refundID is empty when no hold was taken.
func (b *Booking) Deny(actorID uuid.UUID, refundID, reason string, now time.Time) error {
	if err := b.checkResolution(StatusDenied); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return NewValidationError("a reason is required to deny a booking")
	}
	b.status = StatusDenied
	b.refundID = refundID
	b.deniedAt = &now
	b.deniedBy = &actorID
	b.denialReason = reason
	b.updatedAt = now
	return nil
}

func (b *Booking) checkResolution(target Status) error {
	if b.IsResolved() {
		return ErrAlreadyResolved
	}
	if !b.status.CanTransitionTo(target) {
		return NewInvalidTransitionError(b.status, target)
	}
	return nil
}

// Activate marks the gear as handed over to the renter.
func (b *Booking) Activate(now time.Time) error {
	if !b.status.CanTransitionTo(StatusActive) {
		return NewInvalidTransitionError(b.status, StatusActive)
	}
	b.status = StatusActive
	b.activatedAt = &now
	b.updatedAt = now
	return nil
}

// Complete marks the gear as returned.
func (b *Booking) Complete(now time.Time) error {
	if !b.status.CanTransitionTo(StatusCompleted) {
		return NewInvalidTransitionError(b.status, StatusCompleted)
	}
	b.status = StatusCompleted
	b.completedAt = &now
	b.updatedAt = now
	return nil
}

// Dispute opens a damage or loss claim on an active rental.
func (b *Booking) Dispute(reason string, now time.Time) error {
	if !b.status.CanTransitionTo(StatusDisputed) {
		return NewInvalidTransitionError(b.status, StatusDisputed)
	}
	if strings.TrimSpace(reason) == "" {
		return NewValidationError("a reason is required to open a dispute")
	}
	b.status = StatusDisputed
	b.disputeReason = reason
	b.disputedAt = &now
	b.updatedAt = now
	return nil
}

// Cancel cancels a confirmed booking. Cancellation refunds are kept apart
// from refundID, which only the deny path sets.
func (b *Booking) Cancel(actorID uuid.UUID, refundIDs []string, reason string, now time.Time) error {
	if !b.status.CanBeCancelled() {
		return NewInvalidTransitionError(b.status, StatusCancelled)
	}
	b.status = StatusCancelled
	b.cancelRefunds = refundIDs
	b.cancelledAt = &now
	b.cancelledBy = &actorID
	b.cancelReason = reason
	b.updatedAt = now
	return nil
}

// IncrementVersion bumps the version for optimistic locking.
func (b *Booking) IncrementVersion() {
	b.version++
}

// String is used in log fields.
func (b *Booking) String() string {
	return fmt.Sprintf("booking %s (%s, v%d)", b.id, b.status, b.version)
}
