package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Listing is a room offered by a provider. The engine consumes listings
// read-only; listing CRUD lives outside this service.
type Listing struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	ProviderID primitive.ObjectID `bson:"provider_id" json:"provider_id"`
	Title      string             `bson:"title" json:"title"`

	// Monthly rent in minor currency units (e.g. cents).
	RentAmount   int64  `bson:"rent_amount" json:"rent_amount"`
	CurrencyCode string `bson:"currency_code" json:"currency_code"`

	// Whether a booking request must be paid up front before the provider
	// sees it for review.
	RequiresUpfrontPayment bool `bson:"requires_upfront_payment" json:"requires_upfront_payment"`

	IsActive   bool `bson:"is_active" json:"is_active"`
	IsApproved bool `bson:"is_approved" json:"is_approved"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
