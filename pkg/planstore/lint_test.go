package planstore_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
	"github.com/Mindburn-Labs/gatekeeper/pkg/planstore"
)

func TestLint_ValidPlanPasses(t *testing.T) {
	result := planstore.Lint(validPlan, "")
	assert.True(t, result.Passed, "errors: %+v", result.Errors)
	assert.Empty(t, result.Errors)
}

func TestLint_HashMismatch(t *testing.T) {
	result := planstore.Lint(validPlan, "0000000000000000000000000000000000000000000000000000000000000000")
	assert.False(t, result.Passed)
	assert.True(t, hasCode(result.Errors, gateerr.CodePlanHashMismatch))
}

func TestLint_MissingMandatorySection(t *testing.T) {
	mangled := strings.Replace(validPlan, "## Rollback / Failure Policy", "## Something Else", 1)
	result := planstore.Lint(mangled, "")
	assert.False(t, result.Passed)
	assert.True(t, hasCode(result.Errors, gateerr.CodePlanMissingSection))
}

func TestLint_StubMarkerRejected(t *testing.T) {
	mangled := strings.Replace(validPlan, "create the health check handler file", "TODO implement this later", 1)
	result := planstore.Lint(mangled, "")
	assert.False(t, result.Passed)
	assert.True(t, hasCode(result.Errors, gateerr.CodePlanNotEnforceable))
}

func TestLint_AmbiguousModalRejected(t *testing.T) {
	mangled := strings.Replace(validPlan, "create the health check handler file", "the executor may create the handler file", 1)
	result := planstore.Lint(mangled, "")
	assert.False(t, result.Passed)
	assert.True(t, hasCode(result.Errors, gateerr.CodePlanNotEnforceable))
}

func TestLint_AllowlistEscapeRejected(t *testing.T) {
	mangled := strings.Replace(validPlan, "- src/health.go", "- ../outside.go", 1)
	result := planstore.Lint(mangled, "")
	assert.False(t, result.Passed)
	assert.True(t, hasCode(result.Errors, gateerr.CodePlanPathEscape))
}

func TestLint_AbsoluteAllowlistEntryRejected(t *testing.T) {
	mangled := strings.Replace(validPlan, "- src/health.go", "- /etc/passwd", 1)
	result := planstore.Lint(mangled, "")
	assert.False(t, result.Passed)
	assert.True(t, hasCode(result.Errors, gateerr.CodePlanInvalidPath))
}

func TestLint_NonApprovedStatusRejected(t *testing.T) {
	mangled := strings.Replace(validPlan, "STATUS: APPROVED", "STATUS: DRAFT", 1)
	result := planstore.Lint(mangled, "")
	assert.False(t, result.Passed)
	assert.True(t, hasCode(result.Errors, gateerr.CodePlanNotApproved))
}

func TestLint_MissingFrontMatterFieldRejected(t *testing.T) {
	mangled := strings.Replace(validPlan, "PURPOSE: demonstrate a minimal enforceable plan\n", "", 1)
	result := planstore.Lint(mangled, "")
	assert.False(t, result.Passed)
	assert.True(t, hasCode(result.Errors, gateerr.CodePlanMissingField))
}

func TestLint_InvalidVersionRejected(t *testing.T) {
	mangled := strings.Replace(validPlan, "VERSION: 1.0.0", "VERSION: not-a-version", 1)
	result := planstore.Lint(mangled, "")
	assert.False(t, result.Passed)
	assert.True(t, hasCode(result.Errors, gateerr.CodePlanMissingField))
}

func TestLint_MissingPhaseFieldRejected(t *testing.T) {
	mangled := strings.Replace(validPlan, "- Failure stop conditions: verification command exits nonzero\n", "", 1)
	result := planstore.Lint(mangled, "")
	assert.False(t, result.Passed)
	assert.True(t, hasCode(result.Errors, gateerr.CodePlanMissingField))
}

func TestLint_MalformedPhaseIDRejected(t *testing.T) {
	mangled := strings.Replace(validPlan, "### PHASE_1", "### phase-one", 1)
	result := planstore.Lint(mangled, "")
	assert.False(t, result.Passed)
	assert.True(t, hasCode(result.Errors, gateerr.CodePlanInvalidPhaseID))
}

func TestLint_CodeSymbolInObjectiveNotAuditable(t *testing.T) {
	mangled := strings.Replace(validPlan, "- Objective: create the health check handler file",
		"- Objective: set foo = bar and call handler()", 1)
	result := planstore.Lint(mangled, "")
	assert.False(t, result.Passed)
	assert.True(t, hasCode(result.Errors, gateerr.CodePlanNotAuditable))
}

func hasCode(findings []planstore.Finding, code gateerr.ErrorCode) bool {
	for _, f := range findings {
		if f.Code == code {
			return true
		}
	}
	return false
}
