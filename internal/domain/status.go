package domain

// Status is the lifecycle stage of a quiz session.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusWaiting  Status = "waiting"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
)

// transitions holds every legal status edge. draft→waiting→running→finished
// is the forward path; waiting and running may be stopped back to draft.
// finished is terminal.
var transitions = map[Status][]Status{
	StatusDraft:   {StatusWaiting},
	StatusWaiting: {StatusRunning, StatusDraft},
	StatusRunning: {StatusFinished, StatusDraft},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusWaiting, StatusRunning, StatusFinished:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusFinished
}
