package payment

import (
	"context"
	"fmt"
	"strings"

	bookingDomain "github.com/GearGrab/service-booking/internal/domain/booking"
	"go.uber.org/zap"
)

// Coordinator translates a booking's price breakdown into gateway calls.
// It never reads the booking store: callers check the booking's state and
// call each operation at most once per booking.
type Coordinator struct {
	gateway Gateway
	logger  *zap.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(gateway Gateway, logger *zap.Logger) *Coordinator {
	return &Coordinator{gateway: gateway, logger: logger}
}

// PlaceUpfrontHold takes the upfront amount from the renter's payment method.
func (c *Coordinator) PlaceUpfrontHold(ctx context.Context, b *bookingDomain.Booking, paymentMethod string) (Result, error) {
	price := b.Price()
	if price.UpfrontAmount <= 0 {
		return Result{}, bookingDomain.NewValidationError("upfront amount must be positive")
	}
	if strings.TrimSpace(paymentMethod) == "" {
		return Result{}, bookingDomain.NewValidationError("a payment method is required")
	}

	res, err := c.gateway.CreateCharge(ctx, ChargeRequest{
		Amount:         price.UpfrontAmount,
		Currency:       price.Currency,
		IdempotencyKey: IdempotencyKey(b.ID(), StageUpfront),
		Metadata:       stageMetadata(b, StageUpfront),
		PaymentMethod:  paymentMethod,
		Description:    "GearGrab rental hold " + b.ID().String(),
	})
	if err != nil {
		return Result{}, gatewayError("upfront hold", err)
	}
	if res.Currency == "" {
		res.Currency = price.Currency
	}
	return res, nil
}

// ChargeRemainder charges the later amount against the upfront hold's payment
// source. A zero remainder succeeds without calling the gateway and returns
// an empty charge id.
func (c *Coordinator) ChargeRemainder(ctx context.Context, b *bookingDomain.Booking) (string, error) {
	price := b.Price()
	if price.LaterAmount < 0 {
		return "", bookingDomain.NewValidationError("later amount cannot be negative")
	}
	if !b.HasHold() {
		return "", bookingDomain.ErrHoldRequired
	}
	if !strings.EqualFold(b.HoldCurrency(), price.Currency) {
		return "", bookingDomain.ErrCurrencyMismatch.WithMessage(fmt.Sprintf(
			"hold was taken in %s but the remainder is priced in %s", b.HoldCurrency(), price.Currency))
	}
	if price.LaterAmount == 0 {
		c.logger.Info("no remainder to charge",
			zap.String("booking_id", b.ID().String()),
		)
		return "", nil
	}

	res, err := c.gateway.CreateCharge(ctx, ChargeRequest{
		Amount:          price.LaterAmount,
		Currency:        price.Currency,
		IdempotencyKey:  IdempotencyKey(b.ID(), StageRemainder),
		Metadata:        stageMetadata(b, StageRemainder),
		SourcePaymentID: b.UpfrontPaymentID(),
		Description:     "GearGrab rental remainder " + b.ID().String(),
	})
	if err != nil {
		return "", gatewayError("remainder charge", err)
	}
	return res.ID, nil
}

// RefundUpfront refunds the upfront hold in full. Without a hold there is
// nothing to refund and it returns an empty refund id.
func (c *Coordinator) RefundUpfront(ctx context.Context, b *bookingDomain.Booking, reason string) (string, error) {
	if !b.HasHold() {
		c.logger.Warn("no upfront hold to refund",
			zap.String("booking_id", b.ID().String()),
		)
		return "", nil
	}
	return c.refund(ctx, b, b.UpfrontPaymentID(), StageRefund, reason)
}

// RefundCancellation refunds every payment taken for a confirmed booking
// that is being cancelled: the hold and, if one was made, the remainder charge.
func (c *Coordinator) RefundCancellation(ctx context.Context, b *bookingDomain.Booking, reason string) ([]string, error) {
	var ids []string
	payments := []struct {
		id    string
		stage Stage
	}{
		{b.UpfrontPaymentID(), StageCancelRefund},
		{b.RentalPaymentID(), StageCancelRefund + "_remainder"},
	}
	for _, p := range payments {
		if p.id == "" {
			continue
		}
		id, err := c.refund(ctx, b, p.id, p.stage, reason)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ReverseCharge refunds a remainder charge that was taken for a booking write
// that never landed. It uses its own stage key so it cannot collide with the
// denial or cancellation refunds.
func (c *Coordinator) ReverseCharge(ctx context.Context, b *bookingDomain.Booking, chargeID, reason string) (string, error) {
	if chargeID == "" {
		return "", nil
	}
	return c.refund(ctx, b, chargeID, StageRemainderReversal, reason)
}

func (c *Coordinator) refund(ctx context.Context, b *bookingDomain.Booking, paymentID string, stage Stage, reason string) (string, error) {
	meta := stageMetadata(b, stage)
	meta[MetaReason] = reason

	res, err := c.gateway.CreateRefund(ctx, RefundRequest{
		PaymentID:      paymentID,
		Reason:         reason,
		IdempotencyKey: IdempotencyKey(b.ID(), stage),
		Metadata:       meta,
	})
	if err != nil {
		return "", gatewayError(string(stage), err)
	}
	return res.ID, nil
}

func stageMetadata(b *bookingDomain.Booking, stage Stage) map[string]string {
	return map[string]string{
		MetaBookingID: b.ID().String(),
		MetaStage:     string(stage),
	}
}

func gatewayError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", bookingDomain.ErrPaymentGateway, op, err)
}
