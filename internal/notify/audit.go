package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/GearGrab/service-booking/internal/application"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLogModel is one row of booking_audit_log.
type AuditLogModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	BookingID  uuid.UUID       `gorm:"type:uuid;index;not null"`
	EventType  string          `gorm:"size:50;not null"`
	Payload    json.RawMessage `gorm:"type:jsonb;not null"`
	OccurredAt time.Time       `gorm:"not null"`
	CreatedAt  time.Time       `gorm:"not null"`
}

// TableName overrides the gorm table name.
func (AuditLogModel) TableName() string {
	return "booking_audit_log"
}

// AuditNotifier appends every event to the booking_audit_log table.
type AuditNotifier struct {
	db *gorm.DB
}

// NewAuditNotifier creates an AuditNotifier backed by db.
func NewAuditNotifier(db *gorm.DB) *AuditNotifier {
	return &AuditNotifier{db: db}
}

// Notify inserts one audit row for evt.
func (n *AuditNotifier) Notify(ctx context.Context, evt application.Event) error {
	payload, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	row := AuditLogModel{
		ID:         uuid.New(),
		BookingID:  evt.BookingID,
		EventType:  string(evt.Type),
		Payload:    payload,
		OccurredAt: evt.OccurredAt,
		CreatedAt:  time.Now().UTC(),
	}
	if err := n.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// History returns a booking's audit rows, oldest first.
func (n *AuditNotifier) History(ctx context.Context, bookingID uuid.UUID) ([]AuditLogModel, error) {
	var rows []AuditLogModel
	if err := n.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("occurred_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return rows, nil
}
