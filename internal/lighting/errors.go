package lighting

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when no device matches the requested id.
	ErrNotFound = errors.New("lighting: device not found")

	// ErrDeviceUnreachable is returned when a device endpoint does not answer.
	ErrDeviceUnreachable = errors.New("lighting: device unreachable")

	// ErrNoCredential is returned when no credential exists for a protocol.
	ErrNoCredential = errors.New("lighting: no credential for protocol")

	// ErrNotConnected is returned when an adapter has no live session.
	ErrNotConnected = errors.New("lighting: adapter not connected")

	// ErrInvalidState is returned for a state patch that cannot be applied.
	ErrInvalidState = errors.New("lighting: invalid state")
)

// ConnectionError reports that an adapter could not establish or keep its
// session. It is turned into connection state, not surfaced to callers.
type ConnectionError struct {
	Protocol Protocol
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("lighting: %s connection: %v", e.Protocol, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PartialFailureError reports that some sub-commands of a multi-field write
// failed. Failed maps each failed field group to its cause; the groups not
// listed were acknowledged.
type PartialFailureError struct {
	ExternalID string
	Failed     map[FieldGroup]error
}

func (e *PartialFailureError) Error() string {
	groups := e.FailedGroups()
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		parts = append(parts, fmt.Sprintf("%s: %v", g, e.Failed[g]))
	}
	return fmt.Sprintf("lighting: write to %s partially failed (%s)", e.ExternalID, strings.Join(parts, "; "))
}

// Unwrap exposes every sub-command cause to errors.Is and errors.As.
func (e *PartialFailureError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, g := range e.FailedGroups() {
		out = append(out, e.Failed[g])
	}
	return out
}

// FailedGroups returns the failed field groups in a stable order.
func (e *PartialFailureError) FailedGroups() []FieldGroup {
	groups := make([]FieldGroup, 0, len(e.Failed))
	for g := range e.Failed {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	return groups
}

// Acknowledged returns the part of patch whose sub-commands succeeded.
func (e *PartialFailureError) Acknowledged(patch State) State {
	return patch.Without(e.FailedGroups()...)
}

// IsConnectionError reports whether err is, or wraps, a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
