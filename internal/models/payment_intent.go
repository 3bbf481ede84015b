package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IntentStatus mirrors the payment gateway's intent status vocabulary. The
// gateway is the single source of truth; local records only ever hold a
// value previously returned by a gateway read.
type IntentStatus string

const (
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentStatusRequiresAction        IntentStatus = "requires_action"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusCanceled              IntentStatus = "canceled"
	IntentStatusFailed                IntentStatus = "failed"
)

// Terminal reports whether the gateway will never move the intent again.
func (s IntentStatus) Terminal() bool {
	switch s {
	case IntentStatusSucceeded, IntentStatusCanceled, IntentStatusFailed:
		return true
	}
	return false
}

// Active reports whether the intent still counts against the one-active-
// intent-per-booking invariant. Succeeded intents stay active: the money
// moved, so a second intent for the same booking must never be created.
func (s IntentStatus) Active() bool {
	return s != IntentStatusCanceled && s != IntentStatusFailed
}

// PaymentIntent is the local record of a gateway-tracked payment attempt,
// linked 1:1 to a booking. Amount is in the currency's minor units.
type PaymentIntent struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	BookingID       primitive.ObjectID `bson:"booking_id" json:"booking_id"`
	SeekerID        primitive.ObjectID `bson:"seeker_id" json:"seeker_id"`
	GatewayIntentID string             `bson:"gateway_intent_id" json:"gateway_intent_id"`

	Amount       int64        `bson:"amount" json:"amount"`
	CurrencyCode string       `bson:"currency_code" json:"currency_code"`
	Status       IntentStatus `bson:"status" json:"status"`

	// Returned by the gateway at creation; the client needs it to complete
	// the payment on the gateway's side. Never used for authorization here.
	ClientSecret string `bson:"client_secret,omitempty" json:"client_secret,omitempty"`

	// Set when the booking was cancelled while this intent was still active
	// and the remote cancel has not been confirmed yet. The reconciliation
	// sweep retries those out of band.
	NeedsRemoteCancel bool `bson:"needs_remote_cancel" json:"needs_remote_cancel"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
