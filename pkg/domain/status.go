package domain

import "strings"

// Status is the server-reported task status. The set is open: values the
// client does not recognise are kept verbatim and treated as non-terminal.
type Status string

const (
	StatusUnknown    Status = "UNKNOWN"
	StatusPending    Status = "PENDING"
	StatusSubmitted  Status = "SUBMITTED"
	StatusRunning    Status = "RUNNING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelling Status = "CANCELLING"
	StatusCancelled  Status = "CANCELLED"
)

var knownStatuses = map[Status]struct{}{
	StatusPending:    {},
	StatusSubmitted:  {},
	StatusRunning:    {},
	StatusCompleted:  {},
	StatusFailed:     {},
	StatusCancelling: {},
	StatusCancelled:  {},
}

// Known reports whether s is one of the statuses documented by the server.
func (s Status) Known() bool {
	_, ok := knownStatuses[s.normalize()]
	return ok
}

func (s Status) String() string {
	if s == "" {
		return string(StatusUnknown)
	}
	return string(s)
}

func (s Status) normalize() Status {
	return Status(strings.ToUpper(strings.TrimSpace(string(s))))
}

// Phase is the client-side classification of a status.
type Phase int

const (
	PhaseActive Phase = iota
	PhaseSucceeded
	PhaseFailed
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "active"
	}
}

// Terminal reports whether no further transition is expected.
func (p Phase) Terminal() bool {
	return p != PhaseActive
}

// Lifecycle maps raw statuses onto phases. Which strings count as terminal
// is part of the server contract, so it is configuration rather than a
// fixed switch.
type Lifecycle struct {
	Succeeded []Status `yaml:"succeeded"`
	Failed    []Status `yaml:"failed"`
	Cancelled []Status `yaml:"cancelled"`
}

// DefaultLifecycle matches the documented ResinKit agent API.
func DefaultLifecycle() Lifecycle {
	return Lifecycle{
		Succeeded: []Status{StatusCompleted},
		Failed:    []Status{StatusFailed},
		Cancelled: []Status{StatusCancelled},
	}
}

// WithDefaults fills empty groups from DefaultLifecycle.
func (l Lifecycle) WithDefaults() Lifecycle {
	def := DefaultLifecycle()
	if len(l.Succeeded) == 0 {
		l.Succeeded = def.Succeeded
	}
	if len(l.Failed) == 0 {
		l.Failed = def.Failed
	}
	if len(l.Cancelled) == 0 {
		l.Cancelled = def.Cancelled
	}
	return l
}

// Classify returns the phase of s. Anything not listed is PhaseActive.
func (l Lifecycle) Classify(s Status) Phase {
	n := s.normalize()
	switch {
	case contains(l.Succeeded, n):
		return PhaseSucceeded
	case contains(l.Failed, n):
		return PhaseFailed
	case contains(l.Cancelled, n):
		return PhaseCancelled
	default:
		return PhaseActive
	}
}

func contains(set []Status, s Status) bool {
	for _, v := range set {
		if v.normalize() == s {
			return true
		}
	}
	return false
}
