package job

import "fmt"

// IsActive reports whether s blocks new activations.
func IsActive(s Status) bool {
	return s == StatusQueued || s == StatusProcessing
}

// IsTerminal reports whether s is a final job status.
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusError
}

// transition moves j from its current status to `to`, refusing moves the
// state machine does not allow.
func transition(j *Job, to Status) error {
	if !isAllowedTransition(j.Status, to) {
		return fmt.Errorf("invalid job transition %s -> %s", j.Status, to)
	}
	j.Status = to
	return nil
}

func isAllowedTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusProcessing || to == StatusError
	case StatusProcessing:
		return to == StatusCompleted || to == StatusError
	default:
		return false
	}
}
