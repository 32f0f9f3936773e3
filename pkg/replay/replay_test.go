package replay_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/gatekeeper/pkg/auditlog"
	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
	"github.com/Mindburn-Labs/gatekeeper/pkg/replay"
)

func strp(s string) *string { return &s }

func TestReplay_PassesWithNoFindings(t *testing.T) {
	in := replay.Input{
		PlanHash:  "h1",
		PlanFound: true,
		Entries: []auditlog.Entry{
			{Seq: 1, PlanHash: strp("h1"), Tool: "write_file", Role: "EXECUTOR", ArgsHash: "a1", Result: auditlog.ResultOK},
		},
	}
	result := replay.Replay(in)
	assert.Equal(t, replay.VerdictPass, result.Verdict)
	assert.Empty(t, result.Findings)
}

func TestReplay_IsPure(t *testing.T) {
	in := replay.Input{
		PlanHash:  "h1",
		PlanFound: true,
		Entries: []auditlog.Entry{
			{Seq: 1, PlanHash: strp("h1"), Tool: "write_file", Role: "PLANNER", ArgsHash: "a1", Result: auditlog.ResultOK},
		},
	}
	r1 := replay.Replay(in)
	r2 := replay.Replay(in)
	assert.Equal(t, r1, r2)
}

func TestReplay_TamperRuleReportsBrokenHashChain(t *testing.T) {
	in := replay.Input{
		PlanHash:   "h1",
		PlanFound:  true,
		ChainError: &gateerr.InvariantViolation{InvariantID: auditlog.InvAuditChain, Detail: "entry seq 2 has prev_hash mismatch"},
	}
	result := replay.Replay(in)
	assert.Equal(t, replay.VerdictFail, result.Verdict)
	assert.Equal(t, replay.ReasonTamperBrokenHashChain, result.Findings[0].Code)
}

func TestReplay_TamperRuleReportsSeqGap(t *testing.T) {
	in := replay.Input{
		PlanHash:   "h1",
		PlanFound:  true,
		ChainError: &gateerr.InvariantViolation{InvariantID: auditlog.InvAuditChain, Detail: "entry at index 1 has seq 3, expected 2"},
	}
	result := replay.Replay(in)
	assert.Equal(t, replay.ReasonTamperSeqGap, result.Findings[0].Code)
}

func TestReplay_AuthorityRuleFlagsExecutionWithoutPlan(t *testing.T) {
	in := replay.Input{PlanHash: "missing-hash", PlanFound: false}
	result := replay.Replay(in)
	assert.Equal(t, replay.VerdictFail, result.Verdict)
	assert.Equal(t, replay.ReasonAuthorityExecutionNoPlan, result.Findings[0].Code)
}

func TestReplay_AuthorityRuleFlagsRoleMismatch(t *testing.T) {
	in := replay.Input{
		PlanHash:  "h1",
		PlanFound: true,
		Entries: []auditlog.Entry{
			{Seq: 1, PlanHash: strp("h1"), Tool: "write_file", Role: "PLANNER", ArgsHash: "a1", Result: auditlog.ResultOK},
		},
	}
	result := replay.Replay(in)
	assert.Equal(t, replay.VerdictFail, result.Verdict)
	assert.Equal(t, replay.ReasonAuthorityRoleMismatch, result.Findings[0].Code)
	assert.Equal(t, int64(1), *result.Findings[0].Seq)
}

func TestReplay_DivergenceRuleFlagsSameArgsDifferentResult(t *testing.T) {
	in := replay.Input{
		PlanHash:  "h1",
		PlanFound: true,
		Entries: []auditlog.Entry{
			{Seq: 1, PlanHash: strp("h1"), Tool: "write_file", Role: "EXECUTOR", ArgsHash: "same", Result: auditlog.ResultOK},
			{Seq: 2, PlanHash: strp("h1"), Tool: "write_file", Role: "EXECUTOR", ArgsHash: "same", Result: auditlog.ResultError},
		},
	}
	result := replay.Replay(in)
	assert.Equal(t, replay.VerdictFail, result.Verdict)
	found := false
	for _, f := range result.Findings {
		if f.Code == replay.ReasonDivergenceDetected {
			found = true
		}
	}
	assert.True(t, found)
}

func TestReplay_SeqRangeFiltersEntries(t *testing.T) {
	in := replay.Input{
		PlanHash:  "h1",
		PlanFound: true,
		SeqStart:  2,
		SeqEnd:    2,
		Entries: []auditlog.Entry{
			{Seq: 1, PlanHash: strp("h1"), Tool: "write_file", Role: "PLANNER", ArgsHash: "a1", Result: auditlog.ResultOK},
			{Seq: 2, PlanHash: strp("h1"), Tool: "write_file", Role: "EXECUTOR", ArgsHash: "a2", Result: auditlog.ResultOK},
		},
	}
	result := replay.Replay(in)
	assert.Equal(t, replay.VerdictPass, result.Verdict, "the out-of-range PLANNER role-mismatch entry must be excluded")
}

func TestReplay_EntriesUnderOtherPlansIgnored(t *testing.T) {
	in := replay.Input{
		PlanHash:  "h1",
		PlanFound: true,
		Entries: []auditlog.Entry{
			{Seq: 1, PlanHash: strp("other-plan"), Tool: "write_file", Role: "PLANNER", ArgsHash: "a1", Result: auditlog.ResultOK},
		},
	}
	result := replay.Replay(in)
	assert.Equal(t, replay.VerdictPass, result.Verdict)
}

func TestReplay_PolicyRuleReportsRefusals(t *testing.T) {
	code := "POLICY_VIOLATION"
	in := replay.Input{
		PlanHash:  "h1",
		PlanFound: true,
		Entries: []auditlog.Entry{
			{Seq: 1, PlanHash: strp("h1"), Tool: "write_file", Role: "EXECUTOR", ArgsHash: "a1", Result: auditlog.ResultOK},
			{Seq: 2, PlanHash: strp("h1"), Tool: "write_file", Role: "EXECUTOR", ArgsHash: "a2", Result: auditlog.ResultRefusal, ErrorCode: &code},
		},
	}
	result := replay.Replay(in)
	assert.Equal(t, replay.VerdictFail, result.Verdict)
	assert.Equal(t, replay.ReasonPolicyBlockedByGate, result.Findings[0].Code)
	assert.Equal(t, int64(2), *result.Findings[0].Seq)
}

func TestReplay_PolicyRuleReportsInvariantViolations(t *testing.T) {
	inv := "INV_AUDIT_CHAIN"
	in := replay.Input{
		PlanHash:  "h1",
		PlanFound: true,
		Entries: []auditlog.Entry{
			{Seq: 1, PlanHash: strp("h1"), Tool: "write_file", Role: "EXECUTOR", ArgsHash: "a1", Result: auditlog.ResultError, InvariantID: &inv},
		},
	}
	result := replay.Replay(in)
	assert.Equal(t, replay.ReasonPolicyInvariantViolation, result.Findings[0].Code)
}

func TestRules_OrderIsFixed(t *testing.T) {
	require := []string{"tamper", "authority", "policy", "divergence"}
	for i, r := range replay.Rules {
		assert.Equal(t, require[i], r.ID())
	}
}
