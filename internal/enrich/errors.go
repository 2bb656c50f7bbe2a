// Package enrich is the orchestrator: the public entry point that
// validates inputs, consults the cache, dispatches provider searches,
// and maintains the related-party ledger.
package enrich

import (
	"fmt"
	"time"
)

// ValidationError reports insufficient identity input. It is raised
// before any cache or provider access, is never cached, and does not
// consume TTL.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("enrich: validation failed: %s", e.Reason)
}

// PermissionError reports an operation the caller's role does not allow.
type PermissionError struct {
	Role   string
	Action string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("enrich: role %q may not %s", e.Role, e.Action)
}

// ProviderError reports a failed provider call. The failure is also
// stored as an error record under the provider's error TTL so retries
// are throttled; the error itself is scoped to the one operation.
type ProviderError struct {
	ProviderID string
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("enrich: provider %s failed: %v", e.ProviderID, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// CooldownError reports a related-party pull attempted before the
// party's cooldown elapsed. Non-fatal; ETA tells the caller when to
// retry.
type CooldownError struct {
	SubjectID  string
	PartyID    string
	ETASeconds int64
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("enrich: party %s on cooldown for %ds", e.PartyID, e.ETASeconds)
}

// ETA returns the remaining cooldown as a duration.
func (e *CooldownError) ETA() time.Duration {
	return time.Duration(e.ETASeconds) * time.Second
}

// NotFoundError reports an unknown record, party, or provider id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("enrich: %s %q not found", e.Kind, e.ID)
}

// ConfirmationRequiredError reports an attempt to apply a related-party
// sourced suggestion without the explicit confirmation the product
// requires, since the value belongs to a different person than the
// subject.
type ConfirmationRequiredError struct {
	Field string
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("enrich: applying a related-party %s suggestion requires explicit confirmation", e.Field)
}
