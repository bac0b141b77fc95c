package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingDomain "github.com/GearGrab/service-booking/internal/domain/booking"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BookingsCollection is the Mongo collection holding booking documents.
const BookingsCollection = "bookings"

const mongoOpTimeout = 5 * time.Second

// bookingDocument is the BSON shape of a booking. Ids are stored as strings.
type bookingDocument struct {
	ID               string     `bson:"_id"`
	ListingID        string     `bson:"listing_id"`
	OwnerID          string     `bson:"owner_id"`
	RenterID         string     `bson:"renter_id"`
	Status           string     `bson:"status"`
	StartDate        time.Time  `bson:"start_date"`
	EndDate          time.Time  `bson:"end_date"`
	UpfrontAmount    int64      `bson:"upfront_amount"`
	LaterAmount      int64      `bson:"later_amount"`
	Currency         string     `bson:"currency"`
	UpfrontPaymentID string     `bson:"upfront_payment_id,omitempty"`
	HoldCurrency     string     `bson:"hold_currency,omitempty"`
	RentalPaymentID  string     `bson:"rental_payment_id,omitempty"`
	RefundID         string     `bson:"refund_id,omitempty"`
	ApprovedAt       *time.Time `bson:"approved_at,omitempty"`
	ApprovedBy       string     `bson:"approved_by,omitempty"`
	DeniedAt         *time.Time `bson:"denied_at,omitempty"`
	DeniedBy         string     `bson:"denied_by,omitempty"`
	DenialReason     string     `bson:"denial_reason,omitempty"`
	ActivatedAt      *time.Time `bson:"activated_at,omitempty"`
	CompletedAt      *time.Time `bson:"completed_at,omitempty"`
	DisputedAt       *time.Time `bson:"disputed_at,omitempty"`
	DisputeReason    string     `bson:"dispute_reason,omitempty"`
	CancelledAt      *time.Time `bson:"cancelled_at,omitempty"`
	CancelledBy      string     `bson:"cancelled_by,omitempty"`
	CancelReason     string     `bson:"cancel_reason,omitempty"`
	CancelRefunds    []string   `bson:"cancel_refunds,omitempty"`
	Version          int64      `bson:"version"`
	CreatedAt        time.Time  `bson:"created_at"`
	UpdatedAt        time.Time  `bson:"updated_at"`
}

// MongoBookingRepository stores bookings as documents in MongoDB.
type MongoBookingRepository struct {
	collection *mongo.Collection
}

// NewMongoBookingRepository creates a repository over the bookings collection of db.
func NewMongoBookingRepository(db *mongo.Database) *MongoBookingRepository {
	return &MongoBookingRepository{collection: db.Collection(BookingsCollection)}
}

// EnsureIndexes creates the indexes used by List.
func (r *MongoBookingRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "renter_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}
	return nil
}

// FindByID loads one booking document or returns ErrNotFound.
func (r *MongoBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var doc bookingDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingDomain.NewNotFoundError(id.String())
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return fromDocument(&doc)
}

// Save inserts a new booking document.
func (r *MongoBookingRepository) Save(ctx context.Context, bk *bookingDomain.Booking) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, toDocument(bk)); err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

// Update replaces the document only while its status and version still match pre.
func (r *MongoBookingRepository) Update(ctx context.Context, bk *bookingDomain.Booking, pre bookingDomain.Precondition) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	filter := bson.M{
		"_id":     bk.ID().String(),
		"status":  string(pre.Status),
		"version": pre.Version,
	}
	result, err := r.collection.ReplaceOne(ctx, filter, toDocument(bk))
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if result.MatchedCount == 0 {
		return bookingDomain.ErrPreconditionFailed.WithMessage(
			fmt.Sprintf("booking %s is no longer %s at version %d", bk.ID(), pre.Status, pre.Version))
	}
	return nil
}

// List pages bookings newest first.
func (r *MongoBookingRepository) List(ctx context.Context, filter bookingDomain.ListFilter, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := bson.M{}
	if filter.OwnerID != uuid.Nil {
		query["owner_id"] = filter.OwnerID.String()
	}
	if filter.RenterID != uuid.Nil {
		query["renter_id"] = filter.RenterID.String()
	}
	if filter.ParticipantID != uuid.Nil {
		id := filter.ParticipantID.String()
		query["$or"] = bson.A{bson.M{"owner_id": id}, bson.M{"renter_id": id}}
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bookingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode bookings: %w", err)
	}

	bookings := make([]*bookingDomain.Booking, len(docs))
	for i := range docs {
		bk, err := fromDocument(&docs[i])
		if err != nil {
			return nil, 0, err
		}
		bookings[i] = bk
	}
	return bookings, total, nil
}

// CountByStatus aggregates booking counts per status.
func (r *MongoBookingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode status counts: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < mongoOpTimeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, mongoOpTimeout)
}

func toDocument(bk *bookingDomain.Booking) bookingDocument {
	s := bk.Snapshot()
	return bookingDocument{
		ID:               s.ID.String(),
		ListingID:        s.ListingID.String(),
		OwnerID:          s.OwnerID.String(),
		RenterID:         s.RenterID.String(),
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
		ApprovedBy:       optionalID(s.ApprovedBy),
		DeniedAt:         s.DeniedAt,
		DeniedBy:         optionalID(s.DeniedBy),
		DenialReason:     s.DenialReason,
		ActivatedAt:      s.ActivatedAt,
		CompletedAt:      s.CompletedAt,
		DisputedAt:       s.DisputedAt,
		DisputeReason:    s.DisputeReason,
		CancelledAt:      s.CancelledAt,
		CancelledBy:      optionalID(s.CancelledBy),
		CancelReason:     s.CancelReason,
		CancelRefunds:    s.CancelRefunds,
		Version:          s.Version,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func fromDocument(d *bookingDocument) (*bookingDomain.Booking, error) {
	status, err := bookingDomain.ParseStatus(d.Status)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 4)
	for i, raw := range []string{d.ID, d.ListingID, d.OwnerID, d.RenterID} {
		if ids[i], err = uuid.Parse(raw); err != nil {
			return nil, fmt.Errorf("failed to parse booking document id %q: %w", raw, err)
		}
	}
	approvedBy, err := parseOptionalID(d.ApprovedBy)
	if err != nil {
		return nil, err
	}
	deniedBy, err := parseOptionalID(d.DeniedBy)
	if err != nil {
		return nil, err
	}
	cancelledBy, err := parseOptionalID(d.CancelledBy)
	if err != nil {
		return nil, err
	}

	return bookingDomain.ReconstructBooking(bookingDomain.Snapshot{
		ID:        ids[0],
		ListingID: ids[1],
		OwnerID:   ids[2],
		RenterID:  ids[3],
		Status:    status,
		StartDate: d.StartDate,
		EndDate:   d.EndDate,
		Price: bookingDomain.PriceBreakdown{
			UpfrontAmount: d.UpfrontAmount,
			LaterAmount:   d.LaterAmount,
			Currency:      d.Currency,
		},
		UpfrontPaymentID: d.UpfrontPaymentID,
		HoldCurrency:     d.HoldCurrency,
		RentalPaymentID:  d.RentalPaymentID,
		RefundID:         d.RefundID,
		ApprovedAt:       d.ApprovedAt,
		ApprovedBy:       approvedBy,
		DeniedAt:         d.DeniedAt,
		DeniedBy:         deniedBy,
		DenialReason:     d.DenialReason,
		ActivatedAt:      d.ActivatedAt,
		CompletedAt:      d.CompletedAt,
		DisputedAt:       d.DisputedAt,
		DisputeReason:    d.DisputeReason,
		CancelledAt:      d.CancelledAt,
		CancelledBy:      cancelledBy,
		CancelReason:     d.CancelReason,
		CancelRefunds:    d.CancelRefunds,
		Version:          d.Version,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}), nil
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func parseOptionalID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking document id %q: %w", s, err)
	}
	return &id, nil
}

var _ bookingDomain.Repository = (*MongoBookingRepository)(nil)
