// Package engine implements the booking lifecycle state machine and its
// coupling to the external payment intent lifecycle. All authorization and
// state rules live here; HTTP handlers and background workers are thin
// callers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/iAmShivaySharma/bedspace-sub002/internal/gateway"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/models"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/store"
)

// CreateResult is what a successful Create hands back to the caller: the new
// booking plus, when the listing requires upfront payment, the intent whose
// client secret the seeker needs to complete payment.
type CreateResult struct {
	Booking *models.BookingRequest
	Intent  *models.PaymentIntent
}

// ConfirmResult is the observable state after a payment confirmation:
// identical across repeated calls with the same gateway-side status.
type ConfirmResult struct {
	Booking *models.BookingRequest
	Intent  *models.PaymentIntent
}

// IBookingEngine is the booking lifecycle engine contract.
type IBookingEngine interface {
	Create(ctx context.Context, actor models.Actor, listingID primitive.ObjectID, message string) (*CreateResult, error)
	GetBooking(ctx context.Context, actor models.Actor, bookingID primitive.ObjectID) (*models.BookingRequest, error)
	ListBookings(ctx context.Context, actor models.Actor, limit int) ([]models.BookingRequest, error)
	ConfirmPayment(ctx context.Context, actor models.Actor, bookingID primitive.ObjectID, gatewayIntentID string) (*ConfirmResult, error)
	Respond(ctx context.Context, actor models.Actor, bookingID primitive.ObjectID, approve bool, message string) (*models.BookingRequest, error)
	Cancel(ctx context.Context, actor models.Actor, bookingID primitive.ObjectID, reason string) (*models.BookingRequest, error)

	// ReconcileIntent refreshes one intent from the gateway and, on success,
	// advances its booking through the same path ConfirmPayment uses. Called
	// by the reconciliation sweep.
	ReconcileIntent(ctx context.Context, intentID primitive.ObjectID) error
	// RetryRemoteCancel retries the gateway-side cancel for an intent whose
	// booking was cancelled while the remote cancel failed.
	RetryRemoteCancel(ctx context.Context, intentID primitive.ObjectID) error
}

type bookingEngine struct {
	bookings store.BookingStore
	intents  store.PaymentIntentStore
	listings store.ListingStore
	gateway  gateway.Adapter
	events   EventPublisher
}

// NewBookingEngine wires the engine to its stores, the gateway adapter and an
// event publisher.
func NewBookingEngine(bookings store.BookingStore, intents store.PaymentIntentStore, listings store.ListingStore, gw gateway.Adapter, events EventPublisher) IBookingEngine {
	if events == nil {
		events = NopPublisher{}
	}
	return &bookingEngine{
		bookings: bookings,
		intents:  intents,
		listings: listings,
		gateway:  gw,
		events:   events,
	}
}

func (e *bookingEngine) Create(ctx context.Context, actor models.Actor, listingID primitive.ObjectID, message string) (*CreateResult, error) {
	if actor.Role != models.RoleSeeker {
		return nil, fmt.Errorf("%w: only seekers create booking requests", ErrForbidden)
	}

	listing, err := e.listings.FindByID(ctx, listingID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: listing %s", ErrNotFound, listingID.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading listing: %v", ErrInternal, err)
	}
	if !listing.IsActive || !listing.IsApproved {
		return nil, fmt.Errorf("%w: listing %s is not open for booking", ErrInvalidState, listingID.Hex())
	}
	if listing.ProviderID == actor.ID {
		return nil, fmt.Errorf("%w: cannot book own listing", ErrForbidden)
	}

	now := time.Now().UTC()
	booking := &models.BookingRequest{
		SeekerID:       actor.ID,
		ProviderID:     listing.ProviderID,
		ListingID:      listing.ID,
		Status:         models.BookingStatusPendingReview,
		RequestMessage: message,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if listing.RequiresUpfrontPayment {
		booking.Status = models.BookingStatusAwaitingPayment
	}

	if err := e.bookings.Insert(ctx, booking); err != nil {
		return nil, fmt.Errorf("%w: inserting booking: %v", ErrInternal, err)
	}

	result := &CreateResult{Booking: booking}
	if listing.RequiresUpfrontPayment {
		intent, err := e.openIntent(ctx, booking, listing)
		if err != nil {
			// Compensating delete: a booking stuck in awaiting_payment with no
			// intent could never advance.
			if delErr := e.bookings.Delete(ctx, booking.ID); delErr != nil {
				log.Printf("Failed to roll back booking %s after intent failure: %v", booking.ID.Hex(), delErr)
			}
			return nil, err
		}
		result.Intent = intent
	}

	e.publish(ctx, EventBookingCreated, booking, 0)
	return result, nil
}

// openIntent creates the gateway intent for the listing's rent and persists
// the local record. On a persistence failure the gateway intent is cancelled
// best-effort so no orphaned remote intent can collect money.
func (e *bookingEngine) openIntent(ctx context.Context, booking *models.BookingRequest, listing *models.Listing) (*models.PaymentIntent, error) {
	remote, err := e.gateway.CreateIntent(ctx, listing.RentAmount, listing.CurrencyCode, map[string]string{
		"booking_id": booking.ID.Hex(),
		"listing_id": listing.ID.Hex(),
	})
	if errors.Is(err, gateway.ErrUnavailable) {
		return nil, fmt.Errorf("%w: creating intent: %v", ErrGatewayUnavailable, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: creating gateway intent: %v", ErrInternal, err)
	}

	now := time.Now().UTC()
	intent := &models.PaymentIntent{
		BookingID:       booking.ID,
		SeekerID:        booking.SeekerID,
		GatewayIntentID: remote.GatewayIntentID,
		Amount:          listing.RentAmount,
		CurrencyCode:    listing.CurrencyCode,
		Status:          remote.Status,
		ClientSecret:    remote.ClientSecret,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.intents.Insert(ctx, intent); err != nil {
		if cancelErr := e.gateway.CancelIntent(ctx, remote.GatewayIntentID); cancelErr != nil {
			log.Printf("Failed to cancel orphaned gateway intent %s: %v", remote.GatewayIntentID, cancelErr)
		}
		return nil, fmt.Errorf("%w: persisting payment intent: %v", ErrInternal, err)
	}
	return intent, nil
}

func (e *bookingEngine) GetBooking(ctx context.Context, actor models.Actor, bookingID primitive.ObjectID) (*models.BookingRequest, error) {
	booking, err := e.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.SeekerID != actor.ID && booking.ProviderID != actor.ID {
		return nil, fmt.Errorf("%w: not a party to booking %s", ErrForbidden, bookingID.Hex())
	}
	return booking, nil
}

func (e *bookingEngine) ListBookings(ctx context.Context, actor models.Actor, limit int) ([]models.BookingRequest, error) {
	out, err := e.bookings.FindByParty(ctx, actor.ID, actor.Role, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: listing bookings: %v", ErrInternal, err)
	}
	return out, nil
}

func (e *bookingEngine) ConfirmPayment(ctx context.Context, actor models.Actor, bookingID primitive.ObjectID, gatewayIntentID string) (*ConfirmResult, error) {
	booking, err := e.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.SeekerID != actor.ID {
		return nil, fmt.Errorf("%w: only the booking's seeker confirms payment", ErrForbidden)
	}

	intent, err := e.intents.FindByBookingAndGatewayID(ctx, bookingID, gatewayIntentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: no intent %s for booking %s", ErrNotFound, gatewayIntentID, bookingID.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading payment intent: %v", ErrInternal, err)
	}

	intent, err = e.refreshIntent(ctx, intent)
	if err != nil {
		return nil, err
	}
	booking, err = e.advanceAfterPayment(ctx, booking, intent)
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{Booking: booking, Intent: intent}, nil
}

// refreshIntent fetches the authoritative status from the gateway and
// persists it. The client never supplies a status; this read is the only way
// a status enters the local record. A conditional-write miss means another
// caller persisted first, which is fine: re-read and carry on.
func (e *bookingEngine) refreshIntent(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentIntent, error) {
	remote, err := e.gateway.GetIntentStatus(ctx, intent.GatewayIntentID)
	if errors.Is(err, gateway.ErrUnavailable) {
		return nil, fmt.Errorf("%w: reading intent %s: %v", ErrGatewayUnavailable, intent.GatewayIntentID, err)
	}
	if errors.Is(err, gateway.ErrIntentNotFound) {
		return nil, fmt.Errorf("%w: gateway does not know intent %s", ErrInternal, intent.GatewayIntentID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading intent %s: %v", ErrInternal, intent.GatewayIntentID, err)
	}

	if remote == intent.Status {
		return intent, nil
	}
	updated, err := e.intents.UpdateStatus(ctx, intent.ID, intent.Status, remote)
	if errors.Is(err, store.ErrNoMatch) {
		current, readErr := e.intents.FindByID(ctx, intent.ID)
		if readErr != nil {
			return nil, fmt.Errorf("%w: re-reading intent after lost race: %v", ErrInternal, readErr)
		}
		return current, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: persisting intent status: %v", ErrInternal, err)
	}
	return updated, nil
}

// advanceAfterPayment moves the booking to pending_review iff the intent
// succeeded while the booking still awaits payment. The conditional write
// makes repeat and concurrent confirmations no-ops: whoever loses the race
// re-reads and returns the already-advanced booking.
func (e *bookingEngine) advanceAfterPayment(ctx context.Context, booking *models.BookingRequest, intent *models.PaymentIntent) (*models.BookingRequest, error) {
	if intent.Status != models.IntentStatusSucceeded || booking.Status != models.BookingStatusAwaitingPayment {
		return booking, nil
	}
	updated, err := e.bookings.ApplyTransition(ctx, booking.ID, models.AdvanceToReview{At: time.Now().UTC()})
	if errors.Is(err, store.ErrNoMatch) {
		return e.loadBooking(ctx, booking.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: advancing booking %s: %v", ErrInternal, booking.ID.Hex(), err)
	}
	e.publish(ctx, EventPaymentSucceeded, updated, intent.Amount)
	return updated, nil
}

func (e *bookingEngine) Respond(ctx context.Context, actor models.Actor, bookingID primitive.ObjectID, approve bool, message string) (*models.BookingRequest, error) {
	booking, err := e.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.ProviderID != actor.ID {
		return nil, fmt.Errorf("%w: only the booking's provider responds", ErrForbidden)
	}
	if booking.Status != models.BookingStatusPendingReview {
		return nil, fmt.Errorf("%w: cannot respond to a booking in status %q", ErrInvalidState, booking.Status)
	}

	now := time.Now().UTC()
	var transition models.BookingTransition
	event := EventBookingApproved
	if approve {
		transition = models.Approve{Message: message, At: now}
	} else {
		transition = models.Reject{Message: message, At: now}
		event = EventBookingRejected
	}

	updated, err := e.bookings.ApplyTransition(ctx, bookingID, transition)
	if errors.Is(err, store.ErrNoMatch) {
		return nil, fmt.Errorf("%w: booking %s was modified concurrently", ErrConflict, bookingID.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: applying response: %v", ErrInternal, err)
	}

	e.publish(ctx, event, updated, 0)
	return updated, nil
}

func (e *bookingEngine) Cancel(ctx context.Context, actor models.Actor, bookingID primitive.ObjectID, reason string) (*models.BookingRequest, error) {
	booking, err := e.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.SeekerID != actor.ID {
		return nil, fmt.Errorf("%w: only the booking's seeker cancels", ErrForbidden)
	}
	if booking.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot cancel a booking in status %q", ErrInvalidState, booking.Status)
	}

	updated, err := e.bookings.ApplyTransition(ctx, bookingID, models.Cancel{
		FromStatus: booking.Status,
		By:         actor.ID,
		Reason:     reason,
		At:         time.Now().UTC(),
	})
	if errors.Is(err, store.ErrNoMatch) {
		return nil, fmt.Errorf("%w: booking %s was modified concurrently", ErrConflict, bookingID.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: cancelling booking: %v", ErrInternal, err)
	}

	e.cancelIntentForBooking(ctx, bookingID)
	e.publish(ctx, EventBookingCancelled, updated, 0)
	return updated, nil
}

// cancelIntentForBooking cancels the booking's active intent on the gateway,
// best effort. The local cancellation already committed; a remote failure is
// logged and the intent stays flagged for the reconciliation sweep.
func (e *bookingEngine) cancelIntentForBooking(ctx context.Context, bookingID primitive.ObjectID) {
	intent, err := e.intents.FindActiveByBooking(ctx, bookingID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		log.Printf("Failed to look up active intent for cancelled booking %s: %v", bookingID.Hex(), err)
		return
	}
	// A succeeded intent cannot be cancelled remotely; refunds are out of
	// scope here.
	if intent.Status.Terminal() {
		return
	}

	if err := e.intents.SetNeedsRemoteCancel(ctx, intent.ID, true); err != nil {
		log.Printf("Failed to flag intent %s for remote cancel: %v", intent.ID.Hex(), err)
	}
	if err := e.remoteCancel(ctx, intent); err != nil {
		log.Printf("Remote cancel of intent %s failed, sweep will retry: %v", intent.GatewayIntentID, err)
	}
}

// remoteCancel cancels the intent on the gateway and settles the local
// record. An intent the gateway no longer knows counts as cancelled.
func (e *bookingEngine) remoteCancel(ctx context.Context, intent *models.PaymentIntent) error {
	err := e.gateway.CancelIntent(ctx, intent.GatewayIntentID)
	if err != nil && !errors.Is(err, gateway.ErrIntentNotFound) {
		return err
	}
	if _, err := e.intents.UpdateStatus(ctx, intent.ID, intent.Status, models.IntentStatusCanceled); err != nil && !errors.Is(err, store.ErrNoMatch) {
		return err
	}
	return e.intents.SetNeedsRemoteCancel(ctx, intent.ID, false)
}

func (e *bookingEngine) ReconcileIntent(ctx context.Context, intentID primitive.ObjectID) error {
	intent, err := e.intents.FindByID(ctx, intentID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: intent %s", ErrNotFound, intentID.Hex())
	}
	if err != nil {
		return fmt.Errorf("%w: loading intent: %v", ErrInternal, err)
	}
	if intent.Status.Terminal() {
		return nil
	}

	intent, err = e.refreshIntent(ctx, intent)
	if err != nil {
		return err
	}
	if intent.Status != models.IntentStatusSucceeded {
		return nil
	}

	booking, err := e.loadBooking(ctx, intent.BookingID)
	if err != nil {
		return err
	}
	_, err = e.advanceAfterPayment(ctx, booking, intent)
	return err
}

func (e *bookingEngine) RetryRemoteCancel(ctx context.Context, intentID primitive.ObjectID) error {
	intent, err := e.intents.FindByID(ctx, intentID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: intent %s", ErrNotFound, intentID.Hex())
	}
	if err != nil {
		return fmt.Errorf("%w: loading intent: %v", ErrInternal, err)
	}
	if !intent.NeedsRemoteCancel {
		return nil
	}
	if intent.Status == models.IntentStatusCanceled {
		return e.intents.SetNeedsRemoteCancel(ctx, intent.ID, false)
	}

	if err := e.remoteCancel(ctx, intent); err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return fmt.Errorf("%w: cancelling intent %s: %v", ErrGatewayUnavailable, intent.GatewayIntentID, err)
		}
		return fmt.Errorf("%w: cancelling intent %s: %v", ErrInternal, intent.GatewayIntentID, err)
	}
	return nil
}

func (e *bookingEngine) loadBooking(ctx context.Context, id primitive.ObjectID) (*models.BookingRequest, error) {
	booking, err := e.bookings.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: booking %s", ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading booking: %v", ErrInternal, err)
	}
	return booking, nil
}

func (e *bookingEngine) publish(ctx context.Context, name string, booking *models.BookingRequest, amount int64) {
	err := e.events.Publish(ctx, Event{
		Name:       name,
		BookingID:  booking.ID,
		SeekerID:   booking.SeekerID,
		ProviderID: booking.ProviderID,
		Amount:     amount,
		At:         time.Now().UTC(),
	})
	if err != nil {
		log.Printf("Failed to publish %s for booking %s: %v", name, booking.ID.Hex(), err)
	}
}
