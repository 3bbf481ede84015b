package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is a user's marketplace role. Role-specific attributes live in
// separate profile documents rather than as optional fields on User, so a
// record can never carry half of another role's shape.
type Role string

const (
	RoleSeeker   Role = "seeker"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// Actor is the verified identity attached to a request by the auth
// middleware. The engine trusts it as given and grants admin no bypass.
type Actor struct {
	ID   primitive.ObjectID
	Role Role
}

// User is the shared account record.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password" json:"-"`
	Role         Role               `bson:"role" json:"role"`
	Suspended    bool               `bson:"suspended" json:"suspended"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
	Deleted      bool               `bson:"deleted" json:"-"`
}

// SeekerProfile holds seeker-only attributes.
type SeekerProfile struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID        primitive.ObjectID `bson:"user_id" json:"user_id"`
	Occupation    string             `bson:"occupation,omitempty" json:"occupation,omitempty"`
	MonthlyBudget int64              `bson:"monthly_budget,omitempty" json:"monthly_budget,omitempty"`
}

// ProviderProfile holds provider-only attributes.
type ProviderProfile struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID       primitive.ObjectID `bson:"user_id" json:"user_id"`
	BusinessName string             `bson:"business_name,omitempty" json:"business_name,omitempty"`
	Verified     bool               `bson:"verified" json:"verified"`
}
