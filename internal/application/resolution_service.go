package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	bookingDomain "github.com/GearGrab/service-booking/internal/domain/booking"
	"github.com/GearGrab/service-booking/internal/platform/apperror"
	"github.com/GearGrab/service-booking/internal/platform/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Action is the owner's decision on a pending booking.
type Action string

const (
	ActionApprove Action = "approve"
	ActionDeny    Action = "deny"
)

// ParseAction accepts "approve" or "deny", case-insensitively.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionApprove, ActionDeny:
		return a, nil
	default:
		return "", bookingDomain.NewValidationError(fmt.Sprintf("action must be approve or deny, got %q", s))
	}
}

// Target returns the status the action moves a pending booking to.
func (a Action) Target() bookingDomain.Status {
	if a == ActionApprove {
		return bookingDomain.StatusConfirmed
	}
	return bookingDomain.StatusDenied
}

// ResolveCommand is an owner's approve or deny request.
type ResolveCommand struct {
	BookingID uuid.UUID
	ActorID   uuid.UUID
	Action    Action
	Reason    string
}

// ResolutionResult describes the booking after ResolveBooking. It is also
// returned alongside ErrAlreadyResolved, carrying the current status.
type ResolutionResult struct {
	BookingID uuid.UUID `json:"bookingId"`
	Status    string    `json:"status"`
	ChargeID  string    `json:"chargeId,omitempty"`
	RefundID  string    `json:"refundId,omitempty"`
	Message   string    `json:"message"`
}

// ResolutionService runs the owner approval workflow: one gateway call,
// then one conditional write, then a best-effort notification.
type ResolutionService struct {
	repo     bookingDomain.Repository
	payments PaymentCoordinator
	events   *dispatcher
	logger   *zap.Logger
	now      func() time.Time
}

// NewResolutionService creates a new ResolutionService.
func NewResolutionService(
	repo bookingDomain.Repository,
	payments PaymentCoordinator,
	notifier Notifier,
	logger *zap.Logger,
) *ResolutionService {
	return &ResolutionService{
		repo:     repo,
		payments: payments,
		events:   newDispatcher(notifier, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// Flush waits for notifications that are still being delivered.
func (s *ResolutionService) Flush() {
	s.events.flush()
}

// SetNotifyTimeout changes the per-event delivery deadline.
func (s *ResolutionService) SetNotifyTimeout(d time.Duration) {
	s.events.setTimeout(d)
}

// ResolveBooking approves or denies a pending booking on behalf of its owner.
//
// Checks run in a fixed order so a caller learns nothing it may not see:
// existence, ownership, then status. Money moves before the write; if the
// gateway fails nothing is persisted. If the write loses a race, a remainder
// charge the stored booking does not reference is refunded again.
func (s *ResolutionService) ResolveBooking(ctx context.Context, cmd ResolveCommand) (result *ResolutionResult, err error) {
	defer func() {
		action := string(cmd.Action)
		if cmd.Action != ActionApprove && cmd.Action != ActionDeny {
			action = "unknown"
		}
		metrics.Resolutions.WithLabelValues(action, outcome(err)).Inc()
	}()

	if cmd.Action != ActionApprove && cmd.Action != ActionDeny {
		return nil, bookingDomain.NewValidationError(fmt.Sprintf("action must be approve or deny, got %q", cmd.Action))
	}
	if cmd.Action == ActionDeny && strings.TrimSpace(cmd.Reason) == "" {
		return nil, bookingDomain.NewValidationError("a reason is required to deny a booking")
	}

	bk, err := s.repo.FindByID(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if bk.OwnerID() != cmd.ActorID {
		return nil, bookingDomain.ErrForbidden
	}
	if bk.Status() != bookingDomain.StatusPendingOwnerApproval || bk.IsResolved() {
		return &ResolutionResult{
			BookingID: bk.ID(),
			Status:    string(bk.Status()),
			Message:   bookingDomain.ErrAlreadyResolved.Message,
		}, bookingDomain.ErrAlreadyResolved
	}
	target := cmd.Action.Target()
	if !bookingDomain.IsValidTransition(bk.Status(), target) {
		return nil, bookingDomain.NewInvalidTransitionError(bk.Status(), target)
	}

	pre := bookingDomain.ExpectCurrent(bk)
	now := s.now().UTC()
	log := s.logger.With(
		zap.String("booking_id", bk.ID().String()),
		zap.String("action", string(cmd.Action)),
	)

	var (
		evt  Event
		lost = lostWrite{booking: bk}
	)
	switch cmd.Action {
	case ActionApprove:
		chargeID, err := s.payments.ChargeRemainder(ctx, bk)
		if err != nil {
			log.Error("remainder charge failed", zap.Error(err))
			return nil, err
		}
		lost.chargeID = chargeID
		if err := bk.Approve(cmd.ActorID, chargeID, now); err != nil {
			reconcileLostWrite(ctx, s.repo, s.payments, s.logger, lost)
			return nil, err
		}
		evt = Event{Type: EventBookingApproved, Data: BookingApprovedEvent{
			BookingID: bk.ID(),
			OwnerID:   bk.OwnerID(),
			RenterID:  bk.RenterID(),
			ChargeID:  chargeID,
		}}
	case ActionDeny:
		refundID, err := s.payments.RefundUpfront(ctx, bk, cmd.Reason)
		if err != nil {
			log.Error("upfront refund failed", zap.Error(err))
			return nil, err
		}
		if refundID != "" {
			lost.refundIDs = []string{refundID}
		}
		if err := bk.Deny(cmd.ActorID, refundID, cmd.Reason, now); err != nil {
			reconcileLostWrite(ctx, s.repo, s.payments, s.logger, lost)
			return nil, err
		}
		evt = Event{Type: EventBookingDenied, Data: BookingDeniedEvent{
			BookingID: bk.ID(),
			OwnerID:   bk.OwnerID(),
			RenterID:  bk.RenterID(),
			RefundID:  refundID,
			Reason:    cmd.Reason,
		}}
	}

	bk.IncrementVersion()
	if err := s.repo.Update(ctx, bk, pre); err != nil {
		if errors.Is(err, bookingDomain.ErrPreconditionFailed) {
			log.Warn("booking changed while resolving", zap.Error(err))
		}
		reconcileLostWrite(ctx, s.repo, s.payments, s.logger, lost)
		return nil, err
	}

	log.Info("booking resolved",
		zap.String("status", string(bk.Status())),
		zap.String("rental_payment_id", bk.RentalPaymentID()),
		zap.String("refund_id", bk.RefundID()),
	)

	evt.BookingID = bk.ID()
	evt.OccurredAt = now
	s.events.dispatch(ctx, evt)

	return &ResolutionResult{
		BookingID: bk.ID(),
		Status:    string(bk.Status()),
		ChargeID:  bk.RentalPaymentID(),
		RefundID:  bk.RefundID(),
		Message:   resolvedMessage(cmd.Action),
	}, nil
}

func resolvedMessage(a Action) string {
	if a == ActionApprove {
		return "booking approved"
	}
	return "booking denied"
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(apperror.From(err).Code)
}
