package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/iAmShivaySharma/bedspace-sub002/internal/engine"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/models"
)

// --- Mocks ---

// MockBookingEngine
type MockBookingEngine struct {
	mock.Mock
}

func (m *MockBookingEngine) Create(ctx context.Context, actor models.Actor, listingID primitive.ObjectID, message string) (*engine.CreateResult, error) {
	args := m.Called(ctx, actor, listingID, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engine.CreateResult), args.Error(1)
}

func (m *MockBookingEngine) GetBooking(ctx context.Context, actor models.Actor, bookingID primitive.ObjectID) (*models.BookingRequest, error) {
	args := m.Called(ctx, actor, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BookingRequest), args.Error(1)
}

func (m *MockBookingEngine) ListBookings(ctx context.Context, actor models.Actor, limit int) ([]models.BookingRequest, error) {
	args := m.Called(ctx, actor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BookingRequest), args.Error(1)
}

func (m *MockBookingEngine) ConfirmPayment(ctx context.Context, actor models.Actor, bookingID primitive.ObjectID, gatewayIntentID string) (*engine.ConfirmResult, error) {
	args := m.Called(ctx, actor, bookingID, gatewayIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engine.ConfirmResult), args.Error(1)
}

func (m *MockBookingEngine) Respond(ctx context.Context, actor models.Actor, bookingID primitive.ObjectID, approve bool, message string) (*models.BookingRequest, error) {
	args := m.Called(ctx, actor, bookingID, approve, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BookingRequest), args.Error(1)
}

func (m *MockBookingEngine) Cancel(ctx context.Context, actor models.Actor, bookingID primitive.ObjectID, reason string) (*models.BookingRequest, error) {
	args := m.Called(ctx, actor, bookingID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BookingRequest), args.Error(1)
}

func (m *MockBookingEngine) ReconcileIntent(ctx context.Context, intentID primitive.ObjectID) error {
	args := m.Called(ctx, intentID)
	return args.Error(0)
}

func (m *MockBookingEngine) RetryRemoteCancel(ctx context.Context, intentID primitive.ObjectID) error {
	args := m.Called(ctx, intentID)
	return args.Error(0)
}
