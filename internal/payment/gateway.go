// Package payment coordinates the two-stage capture of a rental: an upfront
// hold at request time and, once the owner decides, either a charge of the
// remainder or a refund of the hold.
package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Stage tags every gateway operation so holds, remainder charges and refunds
// can be told apart in gateway-side reporting.
type Stage string

const (
	StageUpfront           Stage = "upfront"
	StageRemainder         Stage = "remainder"
	StageRefund            Stage = "refund"
	StageCancelRefund      Stage = "cancel_refund"
	StageRemainderReversal Stage = "remainder_reversal"
)

// Metadata keys attached to gateway objects.
const (
	MetaBookingID = "booking_id"
	MetaStage     = "payment_stage"
	MetaReason    = "reason"
)

// IdempotencyKey derives the deterministic key for one stage of one booking,
// so a retried request never creates a second charge or refund.
func IdempotencyKey(bookingID uuid.UUID, stage Stage) string {
	return fmt.Sprintf("booking:%s:%s", bookingID, stage)
}

// ChargeRequest asks the gateway to move money from the renter.
type ChargeRequest struct {
	Amount         int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
	// SourcePaymentID reuses the customer and payment method of an earlier
	// payment. PaymentMethod is used when there is no earlier payment.
	SourcePaymentID string
	PaymentMethod   string
	Description     string
}

// RefundRequest asks the gateway to return a payment. A zero Amount refunds it in full.
type RefundRequest struct {
	PaymentID      string
	Amount         int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// Result is the gateway's answer to a charge or refund.
type Result struct {
	ID       string
	Status   string
	Currency string
}

// Gateway is the hosted payment processor. Calls either succeed or return an error.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (Result, error)
	CreateRefund(ctx context.Context, req RefundRequest) (Result, error)
}
