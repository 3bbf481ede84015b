package engine

import "errors"

// The engine classifies every failure into exactly one of these sentinels,
// wrapped with call-site context via fmt.Errorf("%w: ..."). Handlers map
// them onto HTTP statuses; background workers log and move on.
var (
	// ErrNotFound: the referenced booking, listing or intent does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden: the actor is not a party allowed to perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState: the operation is not defined for the record's current
	// status. Retrying without an external state change cannot succeed.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict: a concurrent writer won the conditional write. The caller
	// may re-read and retry.
	ErrConflict = errors.New("conflict")
	// ErrGatewayUnavailable: the payment gateway could not be reached. No
	// local state was modified.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrInternal: an unexpected storage or invariant failure.
	ErrInternal = errors.New("internal error")
)
