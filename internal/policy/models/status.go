package models

// PolicyStatus is the lifecycle state of a policy.
type PolicyStatus string

const (
	StatusDraft     PolicyStatus = "DRAFT"
	StatusPending   PolicyStatus = "PENDING"
	StatusActive    PolicyStatus = "ACTIVE"
	StatusCancelled PolicyStatus = "CANCELLED"
	StatusExpired   PolicyStatus = "EXPIRED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []PolicyStatus{StatusDraft, StatusPending, StatusActive, StatusCancelled, StatusExpired}

// transitions is the full state machine. Statuses absent as keys are terminal.
var transitions = map[PolicyStatus][]PolicyStatus{
	StatusDraft:   {StatusActive, StatusPending, StatusCancelled},
	StatusPending: {StatusActive, StatusCancelled},
	StatusActive:  {StatusCancelled, StatusExpired},
}

// Valid reports whether s is a known status.
func (s PolicyStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s PolicyStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to PolicyStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourcesOf returns every status that may transition into to, in lifecycle order.
func SourcesOf(to PolicyStatus) []PolicyStatus {
	var sources []PolicyStatus
	for _, from := range AllStatuses {
		if CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}
