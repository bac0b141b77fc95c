package application

import (
	"context"
	"slices"

	bookingDomain "github.com/GearGrab/service-booking/internal/domain/booking"
	"github.com/GearGrab/service-booking/internal/platform/metrics"
	"go.uber.org/zap"
)

// lostWrite describes gateway calls made for a booking update that was
// rejected by the store.
type lostWrite struct {
	booking   *bookingDomain.Booking
	chargeID  string
	refundIDs []string
}

// reconcileLostWrite compares the gateway effects of a failed update with the
// stored booking. A remainder charge the store does not know about is refunded
// under its own stage key. Refunds cannot be taken back, so stray ones are
// logged and counted for manual follow-up.
func reconcileLostWrite(ctx context.Context, repo bookingDomain.Repository, payments PaymentCoordinator, logger *zap.Logger, lw lostWrite) {
	if lw.chargeID == "" && len(lw.refundIDs) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	log := logger.With(zap.String("booking_id", lw.booking.ID().String()))

	stored, err := repo.FindByID(ctx, lw.booking.ID())
	if err != nil {
		log.Error("cannot reload booking after a lost write",
			zap.String("charge_id", lw.chargeID),
			zap.Strings("refund_ids", lw.refundIDs),
			zap.Error(err),
		)
		if lw.chargeID != "" {
			metrics.UnreconciledPayments.WithLabelValues("charge").Inc()
		}
		for range lw.refundIDs {
			metrics.UnreconciledPayments.WithLabelValues("refund").Inc()
		}
		return
	}

	// A concurrent approval with the same idempotency key lands on the same charge.
	if lw.chargeID != "" && stored.RentalPaymentID() != lw.chargeID {
		refundID, err := payments.ReverseCharge(ctx, lw.booking, lw.chargeID, "booking changed before the charge was recorded")
		if err != nil {
			log.Error("failed to reverse remainder charge",
				zap.String("charge_id", lw.chargeID),
				zap.Error(err),
			)
			metrics.UnreconciledPayments.WithLabelValues("charge").Inc()
		} else {
			log.Warn("reversed remainder charge for a lost write",
				zap.String("charge_id", lw.chargeID),
				zap.String("refund_id", refundID),
			)
		}
	}

	for _, id := range lw.refundIDs {
		if id == "" || id == stored.RefundID() || slices.Contains(stored.CancelRefunds(), id) {
			continue
		}
		log.Error("refund issued for a booking write that did not land",
			zap.String("refund_id", id),
			zap.String("stored_status", string(stored.Status())),
		)
		metrics.UnreconciledPayments.WithLabelValues("refund").Inc()
	}
}
