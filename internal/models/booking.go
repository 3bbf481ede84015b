package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BookingStatus is the persisted lifecycle state of a booking request.
// The legacy single "pending" status is split into awaiting_payment and
// pending_review so that the payment gate is visible in the record itself.
type BookingStatus string

const (
	BookingStatusAwaitingPayment BookingStatus = "awaiting_payment"
	BookingStatusPendingReview   BookingStatus = "pending_review"
	BookingStatusApproved        BookingStatus = "approved"
	BookingStatusRejected        BookingStatus = "rejected"
	BookingStatusCancelled       BookingStatus = "cancelled"
)

// Terminal reports whether no further transition may ever be applied.
func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingStatusApproved, BookingStatusRejected, BookingStatusCancelled:
		return true
	}
	return false
}

// BookingRequest represents a seeker's request to book a room listing.
// Party and listing references are immutable after creation; ProviderID is
// denormalized from the listing at creation time and stays fixed even if the
// listing later changes hands.
type BookingRequest struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	SeekerID   primitive.ObjectID `bson:"seeker_id" json:"seeker_id"`
	ProviderID primitive.ObjectID `bson:"provider_id" json:"provider_id"`
	ListingID  primitive.ObjectID `bson:"listing_id" json:"listing_id"`

	Status BookingStatus `bson:"status" json:"status"`

	// Seeker's note to the provider, set at creation.
	RequestMessage string `bson:"request_message,omitempty" json:"request_message,omitempty"`

	// Set only by the provider's approve/reject.
	ResponseMessage string     `bson:"response_message,omitempty" json:"response_message,omitempty"`
	RespondedAt     *time.Time `bson:"responded_at,omitempty" json:"responded_at,omitempty"`

	// Set only on cancellation.
	CancelledBy        *primitive.ObjectID `bson:"cancelled_by,omitempty" json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time          `bson:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	CancellationReason string              `bson:"cancellation_reason,omitempty" json:"cancellation_reason,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// BookingTransition is one edge of the booking state machine. Stores apply a
// transition as a conditional write keyed on From(): the write succeeds only
// if the record's current status still equals the expected prior status.
// Each edge carries exactly the fields it is allowed to set, replacing the
// old free-form update maps.
type BookingTransition interface {
	From() BookingStatus
	To() BookingStatus
}

// AdvanceToReview moves a paid-up booking in front of the provider.
type AdvanceToReview struct {
	At time.Time
}

func (AdvanceToReview) From() BookingStatus { return BookingStatusAwaitingPayment }
func (AdvanceToReview) To() BookingStatus   { return BookingStatusPendingReview }

// Approve records the provider's acceptance.
type Approve struct {
	Message string
	At      time.Time
}

func (Approve) From() BookingStatus { return BookingStatusPendingReview }
func (Approve) To() BookingStatus   { return BookingStatusApproved }

// Reject records the provider's refusal.
type Reject struct {
	Message string
	At      time.Time
}

func (Reject) From() BookingStatus { return BookingStatusPendingReview }
func (Reject) To() BookingStatus   { return BookingStatusRejected }

// Cancel is the seeker withdrawing the request. It is the only edge with two
// legal source states, so the expected prior status is carried explicitly.
type Cancel struct {
	FromStatus BookingStatus
	By         primitive.ObjectID
	Reason     string
	At         time.Time
}

func (c Cancel) From() BookingStatus { return c.FromStatus }
func (Cancel) To() BookingStatus     { return BookingStatusCancelled }
