package booking

import (
	"context"

	"github.com/google/uuid"
)

// Precondition is the state an update expects to find in the store. Update
// fails with ErrPreconditionFailed when the stored booking no longer matches.
type Precondition struct {
	Status  Status
	Version int64
}

// ExpectCurrent returns the precondition that the stored booking is still the one b was loaded from.
func ExpectCurrent(b *Booking) Precondition {
	return Precondition{Status: b.Status(), Version: b.Version()}
}

// ListFilter narrows List results. Zero-valued fields are ignored.
type ListFilter struct {
	OwnerID  uuid.UUID
	RenterID uuid.UUID
	// ParticipantID matches bookings where the user is either owner or renter.
	ParticipantID uuid.UUID
	Status        Status
}

// Repository defines the persistence contract for booking aggregates.
type Repository interface {
	// FindByID returns ErrNotFound when the booking does not exist.
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// Save persists a new booking.
	Save(ctx context.Context, b *Booking) error

	// Update writes every field of b in one atomic operation, only if the
	// stored booking matches pre.
	Update(ctx context.Context, b *Booking, pre Precondition) error

	// List returns a page of bookings, newest first, and the total match count.
	List(ctx context.Context, filter ListFilter, page, limit int) ([]*Booking, int64, error)

	// CountByStatus returns booking counts grouped by status (admin).
	CountByStatus(ctx context.Context) (map[string]int64, error)
}
