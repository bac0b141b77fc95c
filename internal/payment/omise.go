package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// OmiseGateway charges through Omise. The Omise SDK has no idempotency-key
// option, so the key travels in the charge metadata for reconciliation.
type OmiseGateway struct {
	client *omise.Client
}

// NewOmiseGateway creates a gateway from the account's key pair.
func NewOmiseGateway(publicKey, secretKey string) (*OmiseGateway, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("create omise client: %w", err)
	}
	c.SetDebug(false)
	return &OmiseGateway{client: c}, nil
}

// CreateCharge charges a card token, or for a remainder charge the customer
// that paid the source charge.
func (g *OmiseGateway) CreateCharge(ctx context.Context, req ChargeRequest) (Result, error) {
	op := &operations.CreateCharge{
		Amount:      req.Amount,
		Currency:    strings.ToLower(req.Currency),
		Description: req.Description,
		Metadata:    omiseMetadata(req.Metadata, req.IdempotencyKey),
	}

	if req.SourcePaymentID != "" {
		source := &omise.Charge{}
		if err := g.do(ctx, func() error {
			return g.client.Do(source, &operations.RetrieveCharge{ChargeID: req.SourcePaymentID})
		}); err != nil {
			return Result{}, fmt.Errorf("retrieve source charge: %w", err)
		}
		if source.CustomerID == "" {
			return Result{}, fmt.Errorf("source charge %s has no saved customer", source.ID)
		}
		op.Customer = source.CustomerID
	} else {
		op.Card = req.PaymentMethod
	}

	ch := &omise.Charge{}
	if err := g.do(ctx, func() error { return g.client.Do(ch, op) }); err != nil {
		return Result{}, fmt.Errorf("create charge: %w", err)
	}
	if ch.Status == omise.ChargeFailed {
		msg := "unknown failure"
		if ch.FailureMessage != nil {
			msg = *ch.FailureMessage
		}
		return Result{}, fmt.Errorf("charge %s failed: %s", ch.ID, msg)
	}
	return Result{ID: ch.ID, Status: string(ch.Status), Currency: strings.ToLower(ch.Currency)}, nil
}

// CreateRefund refunds a charge. Omise requires an amount, so a full refund
// first looks up the charge.
func (g *OmiseGateway) CreateRefund(ctx context.Context, req RefundRequest) (Result, error) {
	amount := req.Amount
	if amount == 0 {
		ch := &omise.Charge{}
		if err := g.do(ctx, func() error {
			return g.client.Do(ch, &operations.RetrieveCharge{ChargeID: req.PaymentID})
		}); err != nil {
			return Result{}, fmt.Errorf("retrieve charge: %w", err)
		}
		amount = ch.Amount
	}

	refund := &omise.Refund{}
	op := &operations.CreateRefund{
		ChargeID: req.PaymentID,
		Amount:   amount,
		Metadata: omiseMetadata(req.Metadata, req.IdempotencyKey),
	}
	if err := g.do(ctx, func() error { return g.client.Do(refund, op) }); err != nil {
		return Result{}, fmt.Errorf("create refund: %w", err)
	}
	return Result{ID: refund.ID, Status: "succeeded", Currency: strings.ToLower(refund.Currency)}, nil
}

// do runs a blocking SDK call and gives up when ctx is done. The SDK call
// itself keeps running until the HTTP client's own timeout.
func (g *OmiseGateway) do(ctx context.Context, call func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- call()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func omiseMetadata(meta map[string]string, idempotencyKey string) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	if idempotencyKey != "" {
		out["idempotency_key"] = idempotencyKey
	}
	return out
}
