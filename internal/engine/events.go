package engine

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event names published by the engine.
const (
	EventBookingCreated   = "booking.created"
	EventBookingApproved  = "booking.approved"
	EventBookingRejected  = "booking.rejected"
	EventBookingCancelled = "booking.cancelled"
	EventPaymentSucceeded = "payment.succeeded"
)

// Event is a fire-and-forget notification about a booking transition. It
// carries ids, not documents; consumers re-read whatever they need.
type Event struct {
	Name       string             `json:"name"`
	BookingID  primitive.ObjectID `json:"booking_id"`
	SeekerID   primitive.ObjectID `json:"seeker_id"`
	ProviderID primitive.ObjectID `json:"provider_id"`
	// Amount in minor units, set for payment.succeeded only.
	Amount int64     `json:"amount,omitempty"`
	At     time.Time `json:"at"`
}

// EventPublisher delivers events to interested consumers. Publishing is
// best-effort: the engine logs a failed publish and keeps going, because a
// completed state transition must never be rolled back over a notification.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher discards all events. Used in tests and when notifications are
// disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, e Event) error { return nil }
