package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway charges through Stripe PaymentIntents.
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway creates a gateway authenticated with the given secret key.
func NewStripeGateway(secretKey string) *StripeGateway {
	return newStripeGateway(secretKey, nil)
}

// newStripeGateway uses the given backends, or Stripe's defaults when nil.
func newStripeGateway(secretKey string, backends *stripe.Backends) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeGateway{api: api}
}

// CreateCharge confirms a PaymentIntent immediately. For a remainder charge
// the customer and payment method come from the source PaymentIntent and the
// charge runs off-session, since the renter is not present at approval time.
func (g *StripeGateway) CreateCharge(ctx context.Context, req ChargeRequest) (Result, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Confirm:     stripe.Bool(true),
		Description: stripe.String(req.Description),
	}
	params.Context = ctx

	if req.SourcePaymentID != "" {
		getParams := &stripe.PaymentIntentParams{}
		getParams.Context = ctx
		source, err := g.api.PaymentIntents.Get(req.SourcePaymentID, getParams)
		if err != nil {
			return Result{}, fmt.Errorf("retrieve source payment intent: %w", err)
		}
		if source.Customer != nil {
			params.Customer = stripe.String(source.Customer.ID)
		}
		if source.PaymentMethod == nil {
			return Result{}, fmt.Errorf("source payment intent %s has no payment method", source.ID)
		}
		params.PaymentMethod = stripe.String(source.PaymentMethod.ID)
		params.OffSession = stripe.Bool(true)
	} else {
		params.PaymentMethod = stripe.String(req.PaymentMethod)
	}

	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return Result{}, fmt.Errorf("create payment intent: %w", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return Result{}, fmt.Errorf("payment intent %s not settled: status %s", pi.ID, pi.Status)
	}
	return Result{ID: pi.ID, Status: string(pi.Status), Currency: string(pi.Currency)}, nil
}

// CreateRefund refunds a PaymentIntent.
func (g *StripeGateway) CreateRefund(ctx context.Context, req RefundRequest) (Result, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if req.Amount > 0 {
		params.Amount = stripe.Int64(req.Amount)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	r, err := g.api.Refunds.New(params)
	if err != nil {
		return Result{}, fmt.Errorf("create refund: %w", err)
	}
	return Result{ID: r.ID, Status: string(r.Status), Currency: string(r.Currency)}, nil
}
