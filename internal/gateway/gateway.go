// Package gateway is the thin client over the external payment-processing
// API. All amounts cross this boundary in the gateway's minor-unit integer
// representation; conversion happens here and nowhere else.
package gateway

import (
	"context"
	"errors"

	"github.com/iAmShivaySharma/bedspace-sub002/internal/models"
)

var (
	// ErrUnavailable means the gateway could not be reached or answered
	// with a transient failure. Callers may retry; local state is untouched.
	ErrUnavailable = errors.New("gateway: unavailable")
	// ErrIntentNotFound means the gateway does not know the intent id.
	ErrIntentNotFound = errors.New("gateway: intent not found")
)

// Intent is the gateway's view of a payment intent.
type Intent struct {
	GatewayIntentID string
	Status          models.IntentStatus
	ClientSecret    string
}

// Adapter is the interface the engine consumes. The engine never trusts a
// client-supplied status; every status it persists comes from a read through
// this interface.
type Adapter interface {
	CreateIntent(ctx context.Context, amountMinor int64, currencyCode string, metadata map[string]string) (*Intent, error)
	GetIntentStatus(ctx context.Context, gatewayIntentID string) (models.IntentStatus, error)
	CancelIntent(ctx context.Context, gatewayIntentID string) error
}
