package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	bookingDomain "github.com/GearGrab/service-booking/internal/domain/booking"
	"github.com/google/uuid"
)

// MemoryBookingRepository keeps bookings in process memory. It is used for
// local runs with STORE_DRIVER=memory and by service tests. Bookings are
// stored as snapshots so callers never share aggregate pointers.
type MemoryBookingRepository struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]bookingDomain.Snapshot
}

// NewMemoryBookingRepository creates an empty MemoryBookingRepository.
func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{bookings: make(map[uuid.UUID]bookingDomain.Snapshot)}
}

// FindByID returns a copy of the stored booking or ErrNotFound.
func (r *MemoryBookingRepository) FindByID(_ context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.bookings[id]
	if !ok {
		return nil, bookingDomain.NewNotFoundError(id.String())
	}
	return bookingDomain.ReconstructBooking(copySnapshot(s)), nil
}

// Save stores a new booking. An existing id is an error.
func (r *MemoryBookingRepository) Save(_ context.Context, bk *bookingDomain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[bk.ID()]; ok {
		return fmt.Errorf("failed to save booking: duplicate id %s", bk.ID())
	}
	r.bookings[bk.ID()] = copySnapshot(bk.Snapshot())
	return nil
}

// Update swaps in the new state only if the stored booking still matches pre.
func (r *MemoryBookingRepository) Update(_ context.Context, bk *bookingDomain.Booking, pre bookingDomain.Precondition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.bookings[bk.ID()]
	if !ok {
		return bookingDomain.NewNotFoundError(bk.ID().String())
	}
	if cur.Status != pre.Status || cur.Version != pre.Version {
		return bookingDomain.ErrPreconditionFailed.WithMessage(
			fmt.Sprintf("booking %s is no longer %s at version %d", bk.ID(), pre.Status, pre.Version))
	}
	r.bookings[bk.ID()] = copySnapshot(bk.Snapshot())
	return nil
}

// List filters, sorts newest first, and pages the stored bookings.
func (r *MemoryBookingRepository) List(_ context.Context, filter bookingDomain.ListFilter, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []bookingDomain.Snapshot
	for _, s := range r.bookings {
		if matches(s, filter) {
			matched = append(matched, s)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := (page - 1) * limit
	if start < 0 {
		start = 0
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}

	out := make([]*bookingDomain.Booking, 0, end-start)
	for _, s := range matched[start:end] {
		out = append(out, bookingDomain.ReconstructBooking(copySnapshot(s)))
	}
	return out, total, nil
}

// CountByStatus counts stored bookings per status.
func (r *MemoryBookingRepository) CountByStatus(_ context.Context) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int64)
	for _, s := range r.bookings {
		counts[string(s.Status)]++
	}
	return counts, nil
}

func matches(s bookingDomain.Snapshot, f bookingDomain.ListFilter) bool {
	if f.OwnerID != uuid.Nil && s.OwnerID != f.OwnerID {
		return false
	}
	if f.RenterID != uuid.Nil && s.RenterID != f.RenterID {
		return false
	}
	if f.ParticipantID != uuid.Nil && s.OwnerID != f.ParticipantID && s.RenterID != f.ParticipantID {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}

func copySnapshot(s bookingDomain.Snapshot) bookingDomain.Snapshot {
	if s.CancelRefunds != nil {
		s.CancelRefunds = append([]string(nil), s.CancelRefunds...)
	}
	return s
}

var _ bookingDomain.Repository = (*MemoryBookingRepository)(nil)
