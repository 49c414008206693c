package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain operations
var (
	// ErrNotSignedIn indicates a remote-calendar operation was attempted
	// without a usable signed-in account
	ErrNotSignedIn = errors.New("not signed in")

	// ErrInteractiveSignInRequired indicates silent reauthentication is not
	// possible and the caller must run the interactive sign-in flow
	ErrInteractiveSignInRequired = errors.New("interactive sign-in required")

	// ErrCancelled indicates the owning scope was torn down mid-operation
	ErrCancelled = errors.New("operation cancelled")

	// ErrCategoryNotFound indicates a write referenced a missing category
	ErrCategoryNotFound = errors.New("category not found")

	// ErrFoodNotFound indicates the requested food record does not exist
	ErrFoodNotFound = errors.New("food record not found")
)

// ValidationError rejects a local write before anything reaches the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProviderError wraps any network/auth/quota failure from the remote
// calendar service. Mirror failures carrying this error are logged and
// surfaced as warnings; they never roll back a local write and are never
// retried.
type ProviderError struct {
	Op     string // e.g. "list calendars", "insert event"
	Detail string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("calendar provider: %s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("calendar provider: %s failed", e.Op)
}

func (e *ProviderError) Unwrap() error { return e.Err }
