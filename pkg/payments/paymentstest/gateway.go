package paymentstest

import (
	"context"

	"fabricmart/pkg/payments"

	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock implementation of payments.Gateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, in payments.CheckoutSessionInput) (*payments.CheckoutSessionResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.CheckoutSessionResult), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, in payments.RefundInput) (*payments.RefundResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.RefundResult), args.Error(1)
}

func (m *MockGateway) Transfer(ctx context.Context, in payments.TransferInput) (*payments.TransferResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.TransferResult), args.Error(1)
}
