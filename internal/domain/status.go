package domain

import "fmt"

// Status is the account lifecycle state.
type Status int

const (
	StatusPendingConfirmation Status = iota + 1
	StatusConfirmed
	StatusDeactivated
	StatusDeleted
)

var statusNames = map[Status]string{
	StatusPendingConfirmation: "pending_confirmation",
	StatusConfirmed:           "confirmed",
	StatusDeactivated:         "deactivated",
	StatusDeleted:             "deleted",
}

// ParseStatus resolves a persisted status id.
func ParseStatus(id int) (Status, error) {
	status := Status(id)
	if _, ok := statusNames[status]; !ok {
		return 0, invalid("status", fmt.Sprintf("unknown status id %d", id))
	}
	return status, nil
}

// ID returns the stable persisted key.
func (s Status) ID() int { return int(s) }

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// CanAuthorize reports whether credentials may be issued or honored.
func (s Status) CanAuthorize() bool {
	return s == StatusConfirmed
}

// CanBeChangedToThisStatus reports whether target is reachable from s.
// A target equal to s is an *AlreadyInStateError, not a no-op.
func (s Status) CanBeChangedToThisStatus(target Status) (bool, error) {
	if _, ok := statusNames[target]; !ok {
		return false, invalid("status", fmt.Sprintf("unknown status id %d", int(target)))
	}
	if s == target {
		return false, &AlreadyInStateError{Status: s}
	}

	switch target {
	case StatusConfirmed:
		return s == StatusPendingConfirmation || s == StatusDeactivated, nil
	case StatusDeactivated:
		return s == StatusConfirmed, nil
	case StatusDeleted:
		return true, nil
	default:
		return false, nil
	}
}
