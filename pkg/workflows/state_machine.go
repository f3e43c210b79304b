package workflows

// StateMachine enforces status transitions
type StateMachine struct {
	allowedTransitions map[string][]string
}

// CreditVerificationTransitions covers issued credit batches. Verification is final.
var CreditVerificationTransitions = map[string][]string{
	"pending":  {"verified"},
	"verified": {},
}

// TaskStatusTransitions covers field tasks. Completed tasks may be reopened.
var TaskStatusTransitions = map[string][]string{
	"Pending":     {"In Progress", "Completed"},
	"In Progress": {"Pending", "Completed"},
	"Completed":   {"In Progress"},
}

// ProjectStatusTransitions covers reforestation projects. Completed projects are closed.
var ProjectStatusTransitions = map[string][]string{
	"active":    {"paused", "completed"},
	"paused":    {"active", "completed"},
	"completed": {},
}

// NewStateMachine creates a new state machine with allowed transitions
func NewStateMachine(transitions map[string][]string) *StateMachine {
	allowed := make(map[string][]string, len(transitions))
	for from, to := range transitions {
		allowed[from] = append([]string(nil), to...)
	}
	return &StateMachine{allowedTransitions: allowed}
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// IsKnown reports whether status appears in the transition table.
func (sm *StateMachine) IsKnown(status string) bool {
	_, ok := sm.allowedTransitions[status]
	return ok
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return append([]string(nil), allowed...)
}
