package coord

import "errors"

// Coordinator error taxonomy. Callers discriminate with errors.Is and map
// kinds to wire codes via Code. A rejected operation never mutates table
// state.
var (
	// ErrNotFound - unknown message, call or room id. Reported distinctly
	// from ErrInvalidState so a stale retry can be told apart from a
	// protocol violation.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState - the operation is not legal in the current state
	// machine state.
	ErrInvalidState = errors.New("invalid state")

	// ErrUnauthorized - the principal is not a legitimate party to the
	// referenced entity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrCapacity - a second active call was attempted.
	ErrCapacity = errors.New("capacity exceeded")

	// ErrUnavailable - the target is offline and offline delivery is not
	// acceptable for the operation.
	ErrUnavailable = errors.New("unavailable")

	// ErrPersistence - a storage collaborator write failed.
	ErrPersistence = errors.New("persistence failure")
)

// Code maps an error to a stable wire code for error payloads.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrCapacity):
		return "capacity"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrPersistence):
		return "persistence_failure"
	default:
		return "internal"
	}
}
