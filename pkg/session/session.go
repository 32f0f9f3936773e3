// Package session implements SessionState: per-process identity, the
// prompt-gate flag, operator binding, and fatigue counters. None of it
// is shared across processes or persisted; it lives for one process
// lifetime.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// PromptName is one of the two canonical role prompts.
type PromptName string

const (
	PromptPlannerCanonical PromptName = "PLANNER_CANONICAL"
	PromptExecutorCanonical PromptName = "EXECUTOR_CANONICAL"
)

// Role is the caller's claimed role.
type Role string

const (
	RolePlanner  Role = "PLANNER"
	RoleExecutor Role = "EXECUTOR"
	RoleOwner    Role = "OWNER"
)

// State is the single per-process session record.
type State struct {
	mu sync.Mutex

	ID             string
	WorkspaceRoot  string
	PromptFetched  bool
	FetchedPrompt  PromptName
	OperatorID     string
	OperatorRole   Role

	consecutiveApprovals int
	approvalsThisSession int
}

// New creates a fresh session with a random session id.
func New() *State {
	return &State{ID: uuid.NewString()}
}

// BindWorkspaceRoot records the locked workspace root on the session.
func (s *State) BindWorkspaceRoot(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WorkspaceRoot = root
}

// MarkPromptFetched records that the given canonical prompt was fetched
// this session, satisfying the prompt gate for the matching role.
func (s *State) MarkPromptFetched(name PromptName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PromptFetched = true
	s.FetchedPrompt = name
}

// BindOperator records the caller's opaque identity and claimed role.
// Identity is bound once per session; a second call overwrites only if
// the prior binding was empty. Unlike the workspace root there is no
// relock invariant here, so a rebind attempt is ignored rather than
// fatal.
func (s *State) BindOperator(operatorID string, role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OperatorID == "" {
		s.OperatorID = operatorID
		s.OperatorRole = role
	}
}

// PromptGateSatisfied reports whether the fetched prompt matches the
// canonical prompt for role.
func (s *State) PromptGateSatisfied(role Role) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.PromptFetched {
		return false
	}
	switch role {
	case RolePlanner:
		return s.FetchedPrompt == PromptPlannerCanonical
	case RoleExecutor:
		return s.FetchedPrompt == PromptExecutorCanonical
	default:
		return true
	}
}

// RecordApproval increments both fatigue counters after a successful
// mutating operation.
func (s *State) RecordApproval() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveApprovals++
	s.approvalsThisSession++
}

// ResetConsecutive clears the consecutive-approval counter, e.g. after a
// mandatory pause is acknowledged.
func (s *State) ResetConsecutive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveApprovals = 0
}

// FatigueCounters returns the current (consecutive, thisSession) counts.
func (s *State) FatigueCounters() (consecutive, thisSession int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveApprovals, s.approvalsThisSession
}
