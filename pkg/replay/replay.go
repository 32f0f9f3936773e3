// Package replay implements the forensic replay engine: a pure,
// read-only re-evaluation of the audit log and current workspace state
// for one plan. Findings come from an ordered battery of independent,
// named rules, each with a stable reason code, so a verdict is
// reproducible from the same log and workspace state.
package replay

import (
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/gatekeeper/pkg/auditlog"
	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
	"github.com/Mindburn-Labs/gatekeeper/pkg/planstore"
)

// Verdict is the replay engine's overall pass/fail result for one plan.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// Finding reason codes.
const (
	ReasonTamperBrokenHashChain      = "TAMPER_DETECTED_BROKEN_HASH_CHAIN"
	ReasonTamperSeqGap               = "TAMPER_DETECTED_SEQ_GAP"
	ReasonTamperInvalidJSON          = "TAMPER_DETECTED_INVALID_JSON"
	ReasonAuthorityExecutionNoPlan   = "AUTHORITY_VIOLATION_EXECUTION_WITHOUT_PLAN"
	ReasonAuthorityRoleMismatch      = "AUTHORITY_VIOLATION_ROLE_MISMATCH"
	ReasonPolicyBlockedByGate        = "POLICY_VIOLATION_BLOCKED_BY_GATE"
	ReasonPolicyInvariantViolation   = "POLICY_VIOLATION_INVARIANT_VIOLATION"
	ReasonDivergenceDetected         = "DIVERGENCE_DETECTED"
)

// Finding is one result emitted by a Rule.
type Finding struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Seq     *int64 `json:"seq,omitempty"`
}

// Result is Replay's return value.
type Result struct {
	Verdict  Verdict   `json:"verdict"`
	Findings []Finding `json:"findings"`
}

// Input is the fixed context every Rule evaluates against. It is built
// once per Replay call and never mutated; rules only read from it.
type Input struct {
	PlanHash    string
	SeqStart    int64 // 0 means "from the beginning"
	SeqEnd      int64 // 0 means "through the end"
	Entries     []auditlog.Entry
	ChainError  error // set if auditlog.VerifyChain(Entries) failed structurally
	PlanContent string
	PlanLint    planstore.LintResult
	PlanFound   bool
}

// Rule is one independent, named finding-rule. Rules never mutate Input
// or any file; Run(in) -> Findings is a pure function.
type Rule interface {
	ID() string
	Run(in Input) []Finding
}

// Rules is the fixed, ordered battery of finding-rules. Order is data
// (a slice literal), not a dispatch table keyed by runtime state, so
// finding order is itself deterministic across repeated calls.
var Rules = []Rule{
	tamperRule{},
	authorityRule{},
	policyRule{},
	divergenceRule{},
}

// Replay re-evaluates the audit log against the given plan hash and
// returns a deterministic verdict plus ordered findings. It is pure:
// it reads entries and plan content already gathered into in and never
// touches the filesystem itself, so repeated calls over the same Input
// always produce byte-identical results.
func Replay(in Input) Result {
	var findings []Finding
	for _, rule := range Rules {
		findings = append(findings, rule.Run(in)...)
	}
	verdict := VerdictPass
	if len(findings) > 0 {
		verdict = VerdictFail
	}
	return Result{Verdict: verdict, Findings: findings}
}

// tamperRule detects broken hash-chain linkage, seq gaps, and invalid
// JSON lines already surfaced while reading the log.
type tamperRule struct{}

func (tamperRule) ID() string { return "tamper" }

func (tamperRule) Run(in Input) []Finding {
	if in.ChainError == nil {
		return nil
	}
	iv, ok := in.ChainError.(*gateerr.InvariantViolation)
	if !ok {
		return []Finding{{Code: ReasonTamperInvalidJSON, Message: in.ChainError.Error()}}
	}
	switch iv.InvariantID {
	case auditlog.InvAuditChain:
		if strings.Contains(iv.Detail, "not valid JSON") {
			return []Finding{{Code: ReasonTamperInvalidJSON, Message: iv.Detail}}
		}
		if strings.Contains(iv.Detail, "has seq") {
			return []Finding{{Code: ReasonTamperSeqGap, Message: iv.Detail}}
		}
		return []Finding{{Code: ReasonTamperBrokenHashChain, Message: iv.Detail}}
	default:
		return []Finding{{Code: ReasonTamperInvalidJSON, Message: iv.Detail}}
	}
}

// authorityRule flags write_file entries recorded against the plan under
// replay whose recorded role is not the one the plan's phases permit,
// and flags a plan_hash that does not resolve to any stored plan at all
// (execution without a plan, in the degenerate case where the caller
// asks to replay a hash nothing was ever approved under). Entries that
// carry no plan_hash, or another plan's, are not examined.
type authorityRule struct{}

func (authorityRule) ID() string { return "authority" }

func (authorityRule) Run(in Input) []Finding {
	var findings []Finding
	if !in.PlanFound {
		findings = append(findings, Finding{
			Code:    ReasonAuthorityExecutionNoPlan,
			Message: "plan_hash " + in.PlanHash + " does not resolve to any stored plan",
		})
		return findings
	}

	// Every phase in a plan is executable by role EXECUTOR only; the plan
	// format carries no finer-grained per-phase role restriction, so a
	// role mismatch can only ever mean "not EXECUTOR".
	for _, e := range inRange(in) {
		if e.PlanHash == nil || *e.PlanHash != in.PlanHash {
			continue
		}
		if e.Tool == "write_file" {
			if e.Role != "EXECUTOR" {
				seq := e.Seq
				findings = append(findings, Finding{
					Code:    ReasonAuthorityRoleMismatch,
					Message: fmt.Sprintf("entry seq %d executed write_file under role %s", e.Seq, e.Role),
					Seq:     &seq,
				})
			}
		}
	}
	return findings
}

// policyRule reports every gate refusal and every invariant violation
// recorded under the plan, so a replay transcript shows not only what
// executed but what the gate blocked along the way.
type policyRule struct{}

func (policyRule) ID() string { return "policy" }

func (policyRule) Run(in Input) []Finding {
	var findings []Finding
	for _, e := range inRange(in) {
		if e.PlanHash == nil || *e.PlanHash != in.PlanHash {
			continue
		}
		if e.InvariantID != nil && *e.InvariantID != "" {
			seq := e.Seq
			findings = append(findings, Finding{
				Code:    ReasonPolicyInvariantViolation,
				Message: fmt.Sprintf("entry seq %d recorded invariant violation %s", e.Seq, *e.InvariantID),
				Seq:     &seq,
			})
			continue
		}
		if e.Result == auditlog.ResultRefusal {
			seq := e.Seq
			code := ""
			if e.ErrorCode != nil {
				code = *e.ErrorCode
			}
			findings = append(findings, Finding{
				Code:    ReasonPolicyBlockedByGate,
				Message: fmt.Sprintf("entry seq %d was refused by the gate (%s)", e.Seq, code),
				Seq:     &seq,
			})
		}
	}
	return findings
}

// divergenceRule flags two entries under the same plan with identical
// args_hash but different result, which indicates the write gate was
// non-deterministic for the same inputs.
type divergenceRule struct{}

func (divergenceRule) ID() string { return "divergence" }

func (divergenceRule) Run(in Input) []Finding {
	type key struct{ argsHash string }
	seen := map[key]auditlog.Entry{}
	var findings []Finding
	for _, e := range inRange(in) {
		if e.PlanHash == nil || *e.PlanHash != in.PlanHash {
			continue
		}
		if e.ArgsHash == "" {
			continue
		}
		k := key{e.ArgsHash}
		if prior, ok := seen[k]; ok {
			if prior.Result != e.Result {
				seq := e.Seq
				findings = append(findings, Finding{
					Code: ReasonDivergenceDetected,
					Message: fmt.Sprintf("entries seq %d and %d share args_hash %s but differ in result (%s vs %s)",
						prior.Seq, e.Seq, e.ArgsHash, prior.Result, e.Result),
					Seq: &seq,
				})
			}
			continue
		}
		seen[k] = e
	}
	return findings
}

func inRange(in Input) []auditlog.Entry {
	var out []auditlog.Entry
	for _, e := range in.Entries {
		if in.SeqStart > 0 && e.Seq < in.SeqStart {
			continue
		}
		if in.SeqEnd > 0 && e.Seq > in.SeqEnd {
			continue
		}
		out = append(out, e)
	}
	return out
}

