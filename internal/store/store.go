// Package store holds the persistence contracts for the booking engine.
// Every mutation of a booking or payment intent goes through a conditional
// write: the update only applies if the record's current status matches the
// expected prior status, and a miss is reported as ErrNoMatch so the caller
// can distinguish a lost race from a business-rule violation.
package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/iAmShivaySharma/bedspace-sub002/internal/models"
)

var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrNoMatch means a conditional write matched no record: either it was
	// deleted or, far more likely, a concurrent writer already moved it past
	// the expected prior status.
	ErrNoMatch = errors.New("store: conditional write did not match")
)

// BookingStore persists booking requests.
type BookingStore interface {
	Insert(ctx context.Context, b *models.BookingRequest) error
	// Delete exists only for the compensating rollback inside booking
	// creation; committed bookings are never deleted.
	Delete(ctx context.Context, id primitive.ObjectID) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.BookingRequest, error)
	// FindByParty lists bookings where the user participates in the given
	// role (seeker or provider), newest first.
	FindByParty(ctx context.Context, userID primitive.ObjectID, role models.Role, limit int) ([]models.BookingRequest, error)
	// ApplyTransition performs the compare-and-swap status move described by
	// t and returns the post-image. ErrNoMatch if the record's status no
	// longer equals t.From().
	ApplyTransition(ctx context.Context, id primitive.ObjectID, t models.BookingTransition) (*models.BookingRequest, error)
}

// PaymentIntentStore persists payment intent records.
type PaymentIntentStore interface {
	Insert(ctx context.Context, pi *models.PaymentIntent) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.PaymentIntent, error)
	FindByBookingAndGatewayID(ctx context.Context, bookingID primitive.ObjectID, gatewayIntentID string) (*models.PaymentIntent, error)
	// FindActiveByBooking returns the booking's single non-canceled,
	// non-failed intent, or ErrNotFound.
	FindActiveByBooking(ctx context.Context, bookingID primitive.ObjectID) (*models.PaymentIntent, error)
	// UpdateStatus compare-and-swaps the intent's status and returns the
	// post-image. ErrNoMatch if the current status is no longer from.
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.IntentStatus) (*models.PaymentIntent, error)
	SetNeedsRemoteCancel(ctx context.Context, id primitive.ObjectID, needs bool) error
	// FindStale returns intents in a non-terminal status whose last update
	// is older than updatedBefore, oldest first.
	FindStale(ctx context.Context, updatedBefore time.Time, limit int) ([]models.PaymentIntent, error)
	FindNeedingRemoteCancel(ctx context.Context, limit int) ([]models.PaymentIntent, error)
}

// ListingStore is the read-only listing lookup the engine consumes. Insert
// exists for seeding by the surrounding application and tests.
type ListingStore interface {
	Insert(ctx context.Context, l *models.Listing) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Listing, error)
}

// UserStore covers account lookups: the auth endpoints resolve credentials
// by email, the notification worker resolves recipient addresses by id.
type UserStore interface {
	Insert(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}
