package application

import (
	"context"

	bookingDomain "github.com/GearGrab/service-booking/internal/domain/booking"
	"github.com/GearGrab/service-booking/internal/payment"
)

// PaymentCoordinator is the slice of payment.Coordinator the services use.
type PaymentCoordinator interface {
	PlaceUpfrontHold(ctx context.Context, b *bookingDomain.Booking, paymentMethod string) (payment.Result, error)
	ChargeRemainder(ctx context.Context, b *bookingDomain.Booking) (string, error)
	RefundUpfront(ctx context.Context, b *bookingDomain.Booking, reason string) (string, error)
	RefundCancellation(ctx context.Context, b *bookingDomain.Booking, reason string) ([]string, error)
	ReverseCharge(ctx context.Context, b *bookingDomain.Booking, chargeID, reason string) (string, error)
}

var _ PaymentCoordinator = (*payment.Coordinator)(nil)
