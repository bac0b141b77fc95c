package payment

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCharge(ctx context.Context, req ChargeRequest) (Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Result), args.Error(1)
}

func (m *mockGateway) CreateRefund(ctx context.Context, req RefundRequest) (Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Result), args.Error(1)
}
