package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreditVerificationIsOneWay(t *testing.T) {
	sm := NewStateMachine(CreditVerificationTransitions)

	assert.True(t, sm.CanTransition("pending", "verified"))
	assert.False(t, sm.CanTransition("verified", "pending"))
	assert.False(t, sm.CanTransition("verified", "verified"))
	assert.Empty(t, sm.GetAllowedTransitions("verified"))
}

func TestTaskStatusTransitions(t *testing.T) {
	sm := NewStateMachine(TaskStatusTransitions)

	assert.True(t, sm.CanTransition("Pending", "Completed"))
	assert.True(t, sm.CanTransition("Completed", "In Progress"))
	assert.False(t, sm.CanTransition("Completed", "Pending"))
	assert.False(t, sm.CanTransition("Unknown", "Pending"))
	assert.True(t, sm.IsKnown("In Progress"))
	assert.False(t, sm.IsKnown("Archived"))
}

func TestAllowedTransitionsAreCopies(t *testing.T) {
	sm := NewStateMachine(TaskStatusTransitions)

	got := sm.GetAllowedTransitions("Pending")
	got[0] = "Archived"

	assert.Equal(t, []string{"In Progress", "Completed"}, sm.GetAllowedTransitions("Pending"))
}
