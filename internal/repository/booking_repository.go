package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bookingDomain "github.com/GearGrab/service-booking/internal/domain/booking"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BookingModel is the GORM model for the bookings table.
type BookingModel struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ListingID        uuid.UUID       `gorm:"type:uuid;index;not null"`
	OwnerID          uuid.UUID       `gorm:"type:uuid;index;not null"`
	RenterID         uuid.UUID       `gorm:"type:uuid;index;not null"`
	Status           string          `gorm:"not null;size:30;index"`
	StartDate        time.Time       `gorm:"not null"`
	EndDate          time.Time       `gorm:"not null"`
	UpfrontAmount    int64           `gorm:"not null"`
	LaterAmount      int64           `gorm:"not null"`
	Currency         string          `gorm:"not null;size:3"`
	UpfrontPaymentID string          `gorm:"size:100"`
	HoldCurrency     string          `gorm:"size:3"`
	RentalPaymentID  string          `gorm:"size:100"`
	RefundID         string          `gorm:"size:100"`
	ApprovedAt       *time.Time      `gorm:""`
	ApprovedBy       *uuid.UUID      `gorm:"type:uuid"`
	DeniedAt         *time.Time      `gorm:""`
	DeniedBy         *uuid.UUID      `gorm:"type:uuid"`
	DenialReason     string          `gorm:"size:500"`
	ActivatedAt      *time.Time      `gorm:""`
	CompletedAt      *time.Time      `gorm:""`
	DisputedAt       *time.Time      `gorm:""`
	DisputeReason    string          `gorm:"size:1000"`
	CancelledAt      *time.Time      `gorm:""`
	CancelledBy      *uuid.UUID      `gorm:"type:uuid"`
	CancelReason     string          `gorm:"size:500"`
	CancelRefunds    json.RawMessage `gorm:"type:jsonb"`
	Version          int64           `gorm:"not null;default:1"`
	CreatedAt        time.Time       `gorm:"not null"`
	UpdatedAt        time.Time       `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (BookingModel) TableName() string {
	return "bookings"
}

// GormBookingRepository is the GORM-based implementation of bookingDomain.Repository.
type GormBookingRepository struct {
	db *gorm.DB
}

// NewGormBookingRepository creates a new GormBookingRepository.
func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// FindByID retrieves a booking by its unique identifier.
func (r *GormBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookingDomain.NewNotFoundError(id.String())
		}
		return nil, fmt.Errorf("failed to find booking by ID: %w", err)
	}
	return toDomainBooking(&model)
}

// Save persists a new booking.
func (r *GormBookingRepository) Save(ctx context.Context, bk *bookingDomain.Booking) error {
	model, err := toBookingModel(bk)
	if err != nil {
		return fmt.Errorf("failed to convert booking to model: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

// Update writes the booking in a single UPDATE guarded by the expected status
// and version. Zero affected rows means another writer got there first.
func (r *GormBookingRepository) Update(ctx context.Context, bk *bookingDomain.Booking, pre bookingDomain.Precondition) error {
	model, err := toBookingModel(bk)
	if err != nil {
		return fmt.Errorf("failed to convert booking to model: %w", err)
	}

	result := r.db.WithContext(ctx).
		Model(&BookingModel{}).
		Where("id = ? AND status = ? AND version = ?", model.ID, string(pre.Status), pre.Version).
		Updates(map[string]interface{}{
			"status":             model.Status,
			"upfront_payment_id": model.UpfrontPaymentID,
			"hold_currency":      model.HoldCurrency,
			"rental_payment_id":  model.RentalPaymentID,
			"refund_id":          model.RefundID,
			"approved_at":        model.ApprovedAt,
			"approved_by":        model.ApprovedBy,
			"denied_at":          model.DeniedAt,
			"denied_by":          model.DeniedBy,
			"denial_reason":      model.DenialReason,
			"activated_at":       model.ActivatedAt,
			"completed_at":       model.CompletedAt,
			"disputed_at":        model.DisputedAt,
			"dispute_reason":     model.DisputeReason,
			"cancelled_at":       model.CancelledAt,
			"cancelled_by":       model.CancelledBy,
			"cancel_reason":      model.CancelReason,
			"cancel_refunds":     model.CancelRefunds,
			"version":            model.Version,
			"updated_at":         model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update booking: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return bookingDomain.ErrPreconditionFailed.WithMessage(
			fmt.Sprintf("booking %s is no longer %s at version %d", model.ID, pre.Status, pre.Version))
	}

	return nil
}

// List retrieves bookings matching filter, newest first, with pagination.
func (r *GormBookingRepository) List(ctx context.Context, filter bookingDomain.ListFilter, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	query := r.db.WithContext(ctx).Model(&BookingModel{})
	if filter.OwnerID != uuid.Nil {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.RenterID != uuid.Nil {
		query = query.Where("renter_id = ?", filter.RenterID)
	}
	if filter.ParticipantID != uuid.Nil {
		query = query.Where("owner_id = ? OR renter_id = ?", filter.ParticipantID, filter.ParticipantID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	var models []BookingModel
	offset := (page - 1) * limit
	if err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings := make([]*bookingDomain.Booking, len(models))
	for i := range models {
		bk, err := toDomainBooking(&models[i])
		if err != nil {
			return nil, 0, err
		}
		bookings[i] = bk
	}

	return bookings, total, nil
}

// CountByStatus returns booking counts grouped by status (admin).
func (r *GormBookingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}

	counts := make(map[string]int64)
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return counts, nil
}

// --- Conversion Helpers ---

func toBookingModel(bk *bookingDomain.Booking) (*BookingModel, error) {
	s := bk.Snapshot()

	var refundsJSON json.RawMessage
	if len(s.CancelRefunds) > 0 {
		data, err := json.Marshal(s.CancelRefunds)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal cancel refunds: %w", err)
		}
		refundsJSON = data
	}

	return &BookingModel{
		ID:               s.ID,
		ListingID:        s.ListingID,
		OwnerID:          s.OwnerID,
		RenterID:         s.RenterID,
		Status:           string(s.Status),
		StartDate:        s.StartDate,
		EndDate:          s.EndDate,
		UpfrontAmount:    s.Price.UpfrontAmount,
		LaterAmount:      s.Price.LaterAmount,
		Currency:         s.Price.Currency,
		UpfrontPaymentID: s.UpfrontPaymentID,
		HoldCurrency:     s.HoldCurrency,
		RentalPaymentID:  s.RentalPaymentID,
		RefundID:         s.RefundID,
		ApprovedAt:       s.ApprovedAt,
		ApprovedBy:       s.ApprovedBy,
		DeniedAt:         s.DeniedAt,
		DeniedBy:         s.DeniedBy,
		DenialReason:     s.DenialReason,
		ActivatedAt:      s.ActivatedAt,
		CompletedAt:      s.CompletedAt,
		DisputedAt:       s.DisputedAt,
		DisputeReason:    s.DisputeReason,
		CancelledAt:      s.CancelledAt,
		CancelledBy:      s.CancelledBy,
		CancelReason:     s.CancelReason,
		CancelRefunds:    refundsJSON,
		Version:          s.Version,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}, nil
}

func toDomainBooking(m *BookingModel) (*bookingDomain.Booking, error) {
	status, err := bookingDomain.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}

	var refunds []string
	if len(m.CancelRefunds) > 0 {
		if err := json.Unmarshal(m.CancelRefunds, &refunds); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cancel refunds: %w", err)
		}
	}

	return bookingDomain.ReconstructBooking(bookingDomain.Snapshot{
		ID:        m.ID,
		ListingID: m.ListingID,
		OwnerID:   m.OwnerID,
		RenterID:  m.RenterID,
		Status:    status,
		StartDate: m.StartDate,
		EndDate:   m.EndDate,
		Price: bookingDomain.PriceBreakdown{
			UpfrontAmount: m.UpfrontAmount,
			LaterAmount:   m.LaterAmount,
			Currency:      m.Currency,
		},
		UpfrontPaymentID: m.UpfrontPaymentID,
		HoldCurrency:     m.HoldCurrency,
		RentalPaymentID:  m.RentalPaymentID,
		RefundID:         m.RefundID,
		ApprovedAt:       m.ApprovedAt,
		ApprovedBy:       m.ApprovedBy,
		DeniedAt:         m.DeniedAt,
		DeniedBy:         m.DeniedBy,
		DenialReason:     m.DenialReason,
		ActivatedAt:      m.ActivatedAt,
		CompletedAt:      m.CompletedAt,
		DisputedAt:       m.DisputedAt,
		DisputeReason:    m.DisputeReason,
		CancelledAt:      m.CancelledAt,
		CancelledBy:      m.CancelledBy,
		CancelReason:     m.CancelReason,
		CancelRefunds:    refunds,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}), nil
}

var _ bookingDomain.Repository = (*GormBookingRepository)(nil)
