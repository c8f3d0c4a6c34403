package model

// Status is the experiment lifecycle state.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusRunning  Status = "RUNNING"
	StatusPaused   Status = "PAUSED"
	StatusArchived Status = "ARCHIVED"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusRunning, StatusPaused, StatusArchived:
		return true
	default:
		return false
	}
}

// transitions is the full lifecycle table. ARCHIVED is terminal.
var transitions = map[Status][]Status{
	StatusDraft:    {StatusRunning, StatusArchived},
	StatusRunning:  {StatusPaused, StatusArchived},
	StatusPaused:   {StatusRunning, StatusArchived},
	StatusArchived: {},
}

// CanTransition reports whether the lifecycle allows moving from one
// status to another. Self-transitions are not allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
