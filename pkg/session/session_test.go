package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/gatekeeper/pkg/session"
)

func TestPromptGateSatisfied_RequiresMatchingCanonicalPrompt(t *testing.T) {
	s := session.New()
	assert.False(t, s.PromptGateSatisfied(session.RoleExecutor))

	s.MarkPromptFetched(session.PromptPlannerCanonical)
	assert.False(t, s.PromptGateSatisfied(session.RoleExecutor))
	assert.True(t, s.PromptGateSatisfied(session.RolePlanner))
}

func TestBindOperator_OnlyBindsOnce(t *testing.T) {
	s := session.New()
	s.BindOperator("op-1", session.RoleExecutor)
	s.BindOperator("op-2", session.RolePlanner)
	assert.Equal(t, "op-1", s.OperatorID)
	assert.Equal(t, session.RoleExecutor, s.OperatorRole)
}

func TestFatigueCounters_IncrementOnApproval(t *testing.T) {
	s := session.New()
	c, total := s.FatigueCounters()
	assert.Zero(t, c)
	assert.Zero(t, total)

	s.RecordApproval()
	s.RecordApproval()
	c, total = s.FatigueCounters()
	assert.Equal(t, 2, c)
	assert.Equal(t, 2, total)

	s.ResetConsecutive()
	c, total = s.FatigueCounters()
	assert.Zero(t, c)
	assert.Equal(t, 2, total)
}

func TestOwnerRole_PromptGateAlwaysSatisfied(t *testing.T) {
	s := session.New()
	// OWNER has no canonical prompt of its own; the gate only checks
	// PLANNER/EXECUTOR matching, so OWNER passes once any prompt was fetched.
	s.MarkPromptFetched(session.PromptPlannerCanonical)
	assert.True(t, s.PromptGateSatisfied(session.RoleOwner))
}
