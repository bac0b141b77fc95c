package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	bookingDomain "github.com/GearGrab/service-booking/internal/domain/booking"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newBooking(t *testing.T, upfront, later int64, holdID, holdCurrency string) *bookingDomain.Booking {
	t.Helper()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	b, err := bookingDomain.NewBooking(uuid.New(), uuid.New(), uuid.New(), start, start.Add(48*time.Hour),
		bookingDomain.PriceBreakdown{UpfrontAmount: upfront, LaterAmount: later, Currency: "usd"})
	require.NoError(t, err)
	if holdID != "" {
		require.NoError(t, b.AttachHold(holdID, holdCurrency))
	}
	return b
}

func TestChargeRemainder(t *testing.T) {
	gw := new(mockGateway)
	c := NewCoordinator(gw, zaptest.NewLogger(t))
	b := newBooking(t, 2000, 3000, "hold_1", "usd")

	gw.On("CreateCharge", mock.Anything, mock.MatchedBy(func(req ChargeRequest) bool {
		return req.Amount == 3000 &&
			req.Currency == "usd" &&
			req.SourcePaymentID == "hold_1" &&
			req.IdempotencyKey == "booking:"+b.ID().String()+":remainder" &&
			req.Metadata[MetaBookingID] == b.ID().String() &&
			req.Metadata[MetaStage] == "remainder"
	})).Return(Result{ID: "charge_1", Status: "succeeded"}, nil).Once()

	id, err := c.ChargeRemainder(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, "charge_1", id)
	gw.AssertExpectations(t)
}

func TestChargeRemainderZeroAmountSkipsGateway(t *testing.T) {
	gw := new(mockGateway)
	c := NewCoordinator(gw, zaptest.NewLogger(t))
	b := newBooking(t, 5000, 0, "hold_1", "usd")

	id, err := c.ChargeRemainder(context.Background(), b)
	require.NoError(t, err)
	assert.Empty(t, id)
	gw.AssertNumberOfCalls(t, "CreateCharge", 0)
}

func TestChargeRemainderPreconditions(t *testing.T) {
	gw := new(mockGateway)
	c := NewCoordinator(gw, zaptest.NewLogger(t))

	_, err := c.ChargeRemainder(context.Background(), newBooking(t, 2000, 3000, "", ""))
	assert.ErrorIs(t, err, bookingDomain.ErrHoldRequired)

	_, err = c.ChargeRemainder(context.Background(), newBooking(t, 2000, 3000, "hold_1", "eur"))
	assert.ErrorIs(t, err, bookingDomain.ErrCurrencyMismatch)

	gw.AssertNumberOfCalls(t, "CreateCharge", 0)
}

func TestChargeRemainderGatewayFailure(t *testing.T) {
	gw := new(mockGateway)
	c := NewCoordinator(gw, zaptest.NewLogger(t))
	b := newBooking(t, 2000, 3000, "hold_1", "usd")
	cause := errors.New("card declined")
	gw.On("CreateCharge", mock.Anything, mock.Anything).Return(Result{}, cause).Once()

	_, err := c.ChargeRemainder(context.Background(), b)
	assert.ErrorIs(t, err, bookingDomain.ErrPaymentGateway)
	assert.ErrorIs(t, err, cause)
}

func TestRefundUpfront(t *testing.T) {
	gw := new(mockGateway)
	c := NewCoordinator(gw, zaptest.NewLogger(t))
	b := newBooking(t, 2000, 3000, "hold_1", "usd")

	gw.On("CreateRefund", mock.Anything, mock.MatchedBy(func(req RefundRequest) bool {
		return req.PaymentID == "hold_1" &&
			req.Reason == "not available" &&
			req.IdempotencyKey == "booking:"+b.ID().String()+":refund" &&
			req.Metadata[MetaReason] == "not available" &&
			req.Metadata[MetaStage] == "refund"
	})).Return(Result{ID: "refund_1"}, nil).Once()

	id, err := c.RefundUpfront(context.Background(), b, "not available")
	require.NoError(t, err)
	assert.Equal(t, "refund_1", id)
	gw.AssertExpectations(t)
}

func TestRefundUpfrontWithoutHoldIsNoop(t *testing.T) {
	gw := new(mockGateway)
	c := NewCoordinator(gw, zaptest.NewLogger(t))

	id, err := c.RefundUpfront(context.Background(), newBooking(t, 2000, 3000, "", ""), "not available")
	require.NoError(t, err)
	assert.Empty(t, id)
	gw.AssertNumberOfCalls(t, "CreateRefund", 0)
}

func TestReverseCharge(t *testing.T) {
	gw := new(mockGateway)
	c := NewCoordinator(gw, zaptest.NewLogger(t))
	b := newBooking(t, 2000, 3000, "hold_1", "usd")

	gw.On("CreateRefund", mock.Anything, mock.MatchedBy(func(req RefundRequest) bool {
		return req.PaymentID == "charge_1" &&
			req.IdempotencyKey == IdempotencyKey(b.ID(), StageRemainderReversal) &&
			req.Metadata[MetaStage] == "remainder_reversal"
	})).Return(Result{ID: "refund_9"}, nil).Once()

	id, err := c.ReverseCharge(context.Background(), b, "charge_1", "booking changed")
	require.NoError(t, err)
	assert.Equal(t, "refund_9", id)

	id, err = c.ReverseCharge(context.Background(), b, "", "booking changed")
	require.NoError(t, err)
	assert.Empty(t, id)
	gw.AssertNumberOfCalls(t, "CreateRefund", 1)
}

func TestPlaceUpfrontHold(t *testing.T) {
	gw := NewFakeGateway()
	c := NewCoordinator(gw, zaptest.NewLogger(t))
	b := newBooking(t, 2000, 3000, "", "")

	res, err := c.PlaceUpfrontHold(context.Background(), b, "pm_card_visa")
	require.NoError(t, err)
	assert.Equal(t, "hold_1", res.ID)
	assert.Equal(t, "usd", res.Currency)

	_, err = c.PlaceUpfrontHold(context.Background(), b, "")
	assert.ErrorIs(t, err, bookingDomain.ErrValidation)
}

func TestRefundCancellation(t *testing.T) {
	gw := NewFakeGateway()
	c := NewCoordinator(gw, zaptest.NewLogger(t))
	b := newBooking(t, 2000, 3000, "hold_9", "usd")
	require.NoError(t, b.Approve(b.OwnerID(), "charge_9", time.Now()))

	ids, err := c.RefundCancellation(context.Background(), b, "trip cancelled")
	require.NoError(t, err)
	assert.Equal(t, []string{"refund_1", "refund_2"}, ids)

	refunds := gw.Refunds()
	require.Len(t, refunds, 2)
	assert.Equal(t, "hold_9", refunds[0].PaymentID)
	assert.Equal(t, "charge_9", refunds[1].PaymentID)
	assert.NotEqual(t, refunds[0].IdempotencyKey, refunds[1].IdempotencyKey)
}
