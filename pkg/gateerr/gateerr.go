// Package gateerr defines the canonical structured refusal type every
// failure path in the gateway produces, and the invariant-violation
// primitive that raises fatal, unrecoverable errors.
package gateerr

import (
	"encoding/json"
	"fmt"
	"time"
)

// ErrorCode is a closed set of stable refusal identifiers. New codes are
// added here, never invented ad hoc at call sites.
type ErrorCode string

const (
	// Input errors: local to the call, never engage the kill-switch.
	CodeInvalidInputType   ErrorCode = "INVALID_INPUT_TYPE"
	CodeInvalidInputValue  ErrorCode = "INVALID_INPUT_VALUE"
	CodeInvalidInputFormat ErrorCode = "INVALID_INPUT_FORMAT"

	// Policy refusals.
	CodePolicyViolation      ErrorCode = "POLICY_VIOLATION"
	CodeCommentOutDetected   ErrorCode = "COMMENT_OUT_DETECTED"
	CodeRoleContractViolation ErrorCode = "ROLE_CONTRACT_VIOLATION"
	CodePlanMissingSection   ErrorCode = "PLAN_MISSING_SECTION"
	CodePlanMissingField     ErrorCode = "PLAN_MISSING_FIELD"
	CodePlanInvalidPhaseID   ErrorCode = "PLAN_INVALID_PHASE_ID"
	CodePlanInvalidPath      ErrorCode = "PLAN_INVALID_PATH"
	CodePlanPathEscape       ErrorCode = "PLAN_PATH_ESCAPE"
	CodePlanNotEnforceable   ErrorCode = "PLAN_NOT_ENFORCEABLE"
	CodePlanNotAuditable     ErrorCode = "PLAN_NOT_AUDITABLE"
	CodePlanHashMismatch     ErrorCode = "PLAN_HASH_MISMATCH"

	// Authority refusals.
	CodePlanNotApproved       ErrorCode = "PLAN_NOT_APPROVED"
	CodePlanNotFound          ErrorCode = "PLAN_NOT_FOUND"
	CodePromptGateLocked      ErrorCode = "PROMPT_GATE_LOCKED"
	CodeOperatorIdentityMissing ErrorCode = "OPERATOR_IDENTITY_MISSING"
	CodeRoleMismatch          ErrorCode = "ROLE_MISMATCH"
	CodeBootstrapDisabled     ErrorCode = "BOOTSTRAP_DISABLED"
	CodeInvalidSignature      ErrorCode = "INVALID_SIGNATURE"
	CodeOperatorFatigue       ErrorCode = "OPERATOR_FATIGUE"
	CodeKillSwitchEngaged     ErrorCode = "KILL_SWITCH_ENGAGED"
	CodeInsufficientPermissions ErrorCode = "INSUFFICIENT_PERMISSIONS"

	// Path errors.
	CodePathTraversal      ErrorCode = "PATH_TRAVERSAL"
	CodePathOutOfWorkspace ErrorCode = "PATH_OUT_OF_WORKSPACE"

	// Integrity failures: engage the kill-switch.
	CodePostWriteVerificationFailed ErrorCode = "POST_WRITE_VERIFICATION_FAILED"
	// Attestation failures: returned to the caller; the kill-switch is
	// not engaged.
	CodeAttestationEvidenceInvalid ErrorCode = "ATTESTATION_EVIDENCE_INVALID"

	// Resource failures.
	CodeFileReadFailed ErrorCode = "FILE_READ_FAILED"

	// Startup.
	CodeStartupSelfAuditFailed ErrorCode = "F-STARTUP"
)

// GateError is the canonical structured refusal envelope. It is JSON-safe:
// every field is either a primitive, a string slice, or nil.
type GateError struct {
	ErrorCode     ErrorCode `json:"error_code"`
	HumanMessage  string    `json:"human_message"`
	Role          string    `json:"role"`
	SessionID     string    `json:"session_id"`
	WorkspaceRoot string    `json:"workspace_root"`
	Tool          string    `json:"tool"`
	InvariantID   string    `json:"invariant_id,omitempty"`
	PhaseID       string    `json:"phase_id,omitempty"`
	PlanHash      string    `json:"plan_hash,omitempty"`
	Cause         string    `json:"cause,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func (e *GateError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.HumanMessage)
}

// MarshalForResponse returns the envelope's JSON encoding, guaranteed to
// succeed since every field is a JSON-safe primitive.
func (e *GateError) MarshalForResponse() []byte {
	b, _ := json.Marshal(e)
	return b
}

// New constructs a GateError. Context fields left blank are acceptable
// (e.g. a pre-session failure has no session_id yet).
func New(code ErrorCode, message string, opts ...Option) *GateError {
	e := &GateError{
		ErrorCode:    code,
		HumanMessage: message,
		Timestamp:    time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Option sets an optional context field on a GateError.
type Option func(*GateError)

func WithRole(role string) Option          { return func(e *GateError) { e.Role = role } }
func WithSessionID(id string) Option       { return func(e *GateError) { e.SessionID = id } }
func WithWorkspaceRoot(root string) Option { return func(e *GateError) { e.WorkspaceRoot = root } }
func WithTool(tool string) Option          { return func(e *GateError) { e.Tool = tool } }
func WithInvariantID(id string) Option     { return func(e *GateError) { e.InvariantID = id } }
func WithPhaseID(id string) Option         { return func(e *GateError) { e.PhaseID = id } }
func WithPlanHash(hash string) Option      { return func(e *GateError) { e.PlanHash = hash } }
func WithCause(err error) Option {
	return func(e *GateError) {
		if err != nil {
			e.Cause = err.Error()
		}
	}
}

// IsFatal reports whether the error code belongs to the integrity-failure
// class that must engage the kill-switch per the error taxonomy.
func IsFatal(code ErrorCode) bool {
	switch code {
	case CodePostWriteVerificationFailed:
		return true
	}
	return false
}

// InvariantViolation is the error for a supposedly-impossible condition,
// built directly by core components or through Assert. It always carries a stable
// invariant identifier and is always fatal: the caller is expected to
// engage the kill-switch and halt.
type InvariantViolation struct {
	InvariantID string
	Detail      string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation %s: %s", v.InvariantID, v.Detail)
}

// Assert raises an *InvariantViolation if cond is false. Core components
// may also construct an *InvariantViolation directly.
func Assert(cond bool, invariantID, detail string) error {
	if cond {
		return nil
	}
	return &InvariantViolation{InvariantID: invariantID, Detail: detail}
}
