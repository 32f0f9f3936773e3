package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/gatekeeper/pkg/planstore"
	"github.com/Mindburn-Labs/gatekeeper/pkg/policy"
)

func TestEvaluate_StopsAtFirstFailingStage(t *testing.T) {
	e := policy.New()
	// Stub marker (stage 2) AND a path outside any allowlist entry (stage
	// 4) are both true here; only the stage-2 violation should surface.
	allowed, violations := e.Evaluate(policy.Input{
		Path:            "src/foo.go",
		ProposedContent: "package main\n\nvar stub = 1\n",
		Plan:            planstore.Parsed{AllowlistEntries: []string{"src/other.go"}},
		Role:            "EXECUTOR",
		RoleFields:      map[string]string{},
	})
	assert.False(t, allowed)
	assert.Len(t, violations, 1)
	assert.Contains(t, violations[0].Message, "stub marker")
}

func TestEvaluate_PathScopeCheckedBeforeRoleContract(t *testing.T) {
	e := policy.New()
	allowed, violations := e.Evaluate(policy.Input{
		Path:            "src/foo.go",
		ProposedContent: "package main\n",
		Plan:            planstore.Parsed{AllowlistEntries: []string{"src/other.go"}},
		Role:            "EXECUTOR",
		RoleFields:      map[string]string{},
	})
	assert.False(t, allowed)
	assert.Contains(t, violations[0].Message, "allowlist")
}

func TestEvaluate_RoleContractRequiresDeclaredFields(t *testing.T) {
	e := policy.New()
	allowed, violations := e.Evaluate(policy.Input{
		Path:            "src/foo.go",
		ProposedContent: "package main\n",
		Plan:            planstore.Parsed{AllowlistEntries: []string{"src/foo.go"}},
		Role:            "EXECUTOR",
		RoleFields:      map[string]string{"purpose": "p", "connected_via": "c", "failure_modes": "f"},
	})
	assert.True(t, allowed)
	assert.Empty(t, violations)
}

func TestEvaluate_CommentedOutPriorCodeDetected(t *testing.T) {
	e := policy.New()
	prior := "package main\n\nfunc old() {}\n"
	proposed := "package main\n\n// func old() {}\n"
	allowed, violations := e.Evaluate(policy.Input{
		Path:            "src/foo.go",
		ProposedContent: proposed,
		PriorContent:    &prior,
		Plan:            planstore.Parsed{AllowlistEntries: []string{"src/foo.go"}},
		Role:            "EXECUTOR",
		RoleFields:      map[string]string{"purpose": "p", "connected_via": "c", "failure_modes": "f"},
	})
	assert.False(t, allowed)
	assert.Contains(t, violations[0].Message, "commented out")
}

func TestEvaluate_RustForbiddenPatternOutsideCommentsAndStrings(t *testing.T) {
	e := policy.New()
	allowed, violations := e.Evaluate(policy.Input{
		Path:            "src/foo.rs",
		ProposedContent: "fn main() {\n    let x = y.unwrap();\n}\n",
		Plan:            planstore.Parsed{AllowlistEntries: []string{"src/foo.rs"}},
		Role:            "EXECUTOR",
		RoleFields:      map[string]string{"purpose": "p", "connected_via": "c", "failure_modes": "f"},
	})
	assert.False(t, allowed)
	assert.Contains(t, violations[0].Message, "unwrap")
}
