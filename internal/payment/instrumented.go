package payment

import (
	"context"
	"time"

	"github.com/GearGrab/service-booking/internal/platform/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/GearGrab/service-booking/internal/payment"

// InstrumentedGateway bounds every call with a timeout and records a span,
// metrics and a log line around it. A timeout surfaces as an ordinary
// gateway error.
type InstrumentedGateway struct {
	next     Gateway
	provider string
	timeout  time.Duration
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewInstrumentedGateway wraps next.
func NewInstrumentedGateway(next Gateway, provider string, timeout time.Duration, logger *zap.Logger) *InstrumentedGateway {
	return &InstrumentedGateway{
		next:     next,
		provider: provider,
		timeout:  timeout,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
	}
}

// CreateCharge calls the wrapped gateway under the configured timeout.
func (g *InstrumentedGateway) CreateCharge(ctx context.Context, req ChargeRequest) (Result, error) {
	return g.observe(ctx, "create_charge", req.Metadata, func(ctx context.Context) (Result, error) {
		return g.next.CreateCharge(ctx, req)
	}, attribute.Int64("payment.amount", req.Amount), attribute.String("payment.currency", req.Currency))
}

// CreateRefund calls the wrapped gateway under the configured timeout.
func (g *InstrumentedGateway) CreateRefund(ctx context.Context, req RefundRequest) (Result, error) {
	return g.observe(ctx, "create_refund", req.Metadata, func(ctx context.Context) (Result, error) {
		return g.next.CreateRefund(ctx, req)
	}, attribute.String("payment.source_id", req.PaymentID))
}

func (g *InstrumentedGateway) observe(
	ctx context.Context,
	op string,
	meta map[string]string,
	call func(ctx context.Context) (Result, error),
	attrs ...attribute.KeyValue,
) (Result, error) {
	attrs = append(attrs,
		attribute.String("payment.provider", g.provider),
		attribute.String("payment.stage", meta[MetaStage]),
		attribute.String("booking.id", meta[MetaBookingID]),
	)
	ctx, span := g.tracer.Start(ctx, "payment."+op, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
	defer span.End()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := call(ctx)
	elapsed := time.Since(start)
	metrics.GatewayLatency.WithLabelValues(g.provider, op).Observe(elapsed.Seconds())

	fields := []zap.Field{
		zap.String("provider", g.provider),
		zap.String("operation", op),
		zap.String("stage", meta[MetaStage]),
		zap.String("booking_id", meta[MetaBookingID]),
		zap.Duration("latency", elapsed),
	}
	if err != nil {
		outcome := "error"
		if ctx.Err() == context.DeadlineExceeded {
			outcome = "timeout"
		}
		metrics.GatewayCalls.WithLabelValues(g.provider, op, outcome).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		g.logger.Warn("payment gateway call failed", append(fields, zap.String("outcome", outcome), zap.Error(err))...)
		return Result{}, err
	}

	metrics.GatewayCalls.WithLabelValues(g.provider, op, "success").Inc()
	span.SetAttributes(attribute.String("payment.result_id", res.ID))
	g.logger.Info("payment gateway call succeeded", append(fields, zap.String("result_id", res.ID))...)
	return res, nil
}
