package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrDeclined is returned by FakeGateway when a failure is injected.
var ErrDeclined = errors.New("payment declined")

// FakeGateway is an in-memory Gateway for local runs and tests. Ids are
// sequential per kind (hold_1, charge_1, refund_1) and repeated idempotency
// keys return the original result.
type FakeGateway struct {
	mu       sync.Mutex
	seq      map[string]int
	byKey    map[string]Result
	payments map[string]fakePayment
	refunds  []RefundRequest
	charges  []ChargeRequest
	failNext error
}

type fakePayment struct {
	amount   int64
	currency string
	refunded bool
}

// NewFakeGateway creates an empty FakeGateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		seq:      make(map[string]int),
		byKey:    make(map[string]Result),
		payments: make(map[string]fakePayment),
	}
}

// FailNext makes the next call return err.
func (g *FakeGateway) FailNext(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = err
}

// CreateCharge records a payment. Upfront stage charges get hold_N ids.
func (g *FakeGateway) CreateCharge(ctx context.Context, req ChargeRequest) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.precheck(ctx); err != nil {
		return Result{}, err
	}
	if res, ok := g.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return res, nil
	}
	if req.Amount <= 0 {
		return Result{}, fmt.Errorf("%w: amount must be positive", ErrDeclined)
	}
	if req.SourcePaymentID != "" {
		if _, ok := g.payments[req.SourcePaymentID]; !ok {
			return Result{}, fmt.Errorf("%w: unknown source payment %s", ErrDeclined, req.SourcePaymentID)
		}
	}

	kind := "charge"
	if req.Metadata[MetaStage] == string(StageUpfront) {
		kind = "hold"
	}
	res := Result{ID: g.nextID(kind), Status: "succeeded", Currency: strings.ToLower(req.Currency)}
	g.payments[res.ID] = fakePayment{amount: req.Amount, currency: res.Currency}
	g.charges = append(g.charges, req)
	if req.IdempotencyKey != "" {
		g.byKey[req.IdempotencyKey] = res
	}
	return res, nil
}

// CreateRefund refunds a payment in full. A second refund of the same payment is declined.
func (g *FakeGateway) CreateRefund(ctx context.Context, req RefundRequest) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.precheck(ctx); err != nil {
		return Result{}, err
	}
	if res, ok := g.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return res, nil
	}
	p, ok := g.payments[req.PaymentID]
	if !ok {
		// Payments taken outside this process (seeded bookings) are accepted.
		p = fakePayment{}
	}
	if p.refunded {
		return Result{}, fmt.Errorf("%w: payment %s already refunded", ErrDeclined, req.PaymentID)
	}
	p.refunded = true
	g.payments[req.PaymentID] = p

	res := Result{ID: g.nextID("refund"), Status: "succeeded", Currency: p.currency}
	g.refunds = append(g.refunds, req)
	if req.IdempotencyKey != "" {
		g.byKey[req.IdempotencyKey] = res
	}
	return res, nil
}

// Charges returns the charge requests that created a payment.
func (g *FakeGateway) Charges() []ChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ChargeRequest(nil), g.charges...)
}

// Refunds returns the refund requests that created a refund.
func (g *FakeGateway) Refunds() []RefundRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]RefundRequest(nil), g.refunds...)
}

// Outstanding is the amount charged and not refunded, across every payment.
func (g *FakeGateway) Outstanding() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	var total int64
	for _, p := range g.payments {
		if !p.refunded {
			total += p.amount
		}
	}
	return total
}

func (g *FakeGateway) precheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.failNext != nil {
		err := g.failNext
		g.failNext = nil
		return err
	}
	return nil
}

func (g *FakeGateway) nextID(kind string) string {
	g.seq[kind]++
	return fmt.Sprintf("%s_%d", kind, g.seq[kind])
}
