package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Mindburn-Labs/gatekeeper/pkg/attestation"
	"github.com/Mindburn-Labs/gatekeeper/pkg/auditlog"
	"github.com/Mindburn-Labs/gatekeeper/pkg/bootstrap"
	"github.com/Mindburn-Labs/gatekeeper/pkg/canon"
	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
	"github.com/Mindburn-Labs/gatekeeper/pkg/planstore"
	"github.com/Mindburn-Labs/gatekeeper/pkg/replay"
	"github.com/Mindburn-Labs/gatekeeper/pkg/session"
	"github.com/Mindburn-Labs/gatekeeper/pkg/writegate"
)

func decode[T any](params json.RawMessage) (T, error) {
	var v T
	if len(params) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return v, errBadParams(err)
	}
	return v, nil
}

// validateParams checks the raw tool arguments against the tool's
// declared JSON Schema, if one exists, before any field is decoded.
func (g *Gateway) validateParams(tool string, params json.RawMessage) error {
	var tree any
	if len(params) > 0 {
		if err := json.Unmarshal(params, &tree); err != nil {
			return errBadParams(err)
		}
	} else {
		tree = map[string]any{}
	}
	if err := g.Schemas.Validate(tool, tree); err != nil {
		return gateerr.New(gateerr.CodeInvalidInputType, err.Error())
	}
	return nil
}

// --- begin_session -----------------------------------------------------

type beginSessionParams struct {
	WorkspaceRoot string       `json:"workspace_root"`
	OperatorID    string       `json:"operator_id"`
	Role          session.Role `json:"role"`
}

type beginSessionResult struct {
	SessionID     string `json:"session_id"`
	WorkspaceRoot string `json:"workspace_root"`
}

// toolBeginSession locks the workspace root (at most once per process,
// INV_ROOT_LOCKED_ONCE) and binds the caller's opaque operator identity.
// workspace_root is begin_session's sole mandatory input. Operator
// identity is bound once per session and there is no separate binding
// tool, so optional operator_id and role are accepted here too.
func (g *Gateway) toolBeginSession(params json.RawMessage) (any, error) {
	if err := g.validateParams("begin_session", params); err != nil {
		return nil, err
	}
	p, err := decode[beginSessionParams](params)
	if err != nil {
		return nil, err
	}
	if p.WorkspaceRoot == "" {
		return nil, gateerr.New(gateerr.CodeInvalidInputValue, "workspace_root is required")
	}
	root, err := g.Resolver.Lock(p.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	g.wireWorkspaceComponents()
	g.Session.BindWorkspaceRoot(root)
	if p.OperatorID != "" {
		g.Session.BindOperator(p.OperatorID, p.Role)
	}
	return beginSessionResult{SessionID: g.Session.ID, WorkspaceRoot: root}, nil
}

// --- read_prompt --------------------------------------------------------

type readPromptParams struct {
	Name session.PromptName `json:"name"`
}

type readPromptResult struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

func (g *Gateway) toolReadPrompt(params json.RawMessage) (any, error) {
	p, err := decode[readPromptParams](params)
	if err != nil {
		return nil, err
	}
	claimedRole := g.Session.OperatorRole
	switch p.Name {
	case session.PromptPlannerCanonical:
		if claimedRole != "" && claimedRole != session.RolePlanner {
			return nil, gateerr.New(gateerr.CodeRoleMismatch, "caller's bound role is not PLANNER")
		}
	case session.PromptExecutorCanonical:
		if claimedRole != "" && claimedRole != session.RoleExecutor {
			return nil, gateerr.New(gateerr.CodeRoleMismatch, "caller's bound role is not EXECUTOR")
		}
	default:
		return nil, gateerr.New(gateerr.CodeInvalidInputValue, "name must be PLANNER_CANONICAL or EXECUTOR_CANONICAL")
	}

	text, err := g.Prompts.Fetch(p.Name)
	if err != nil {
		return nil, err
	}
	g.Session.MarkPromptFetched(p.Name)
	g.writePromptGateProof(p.Name)
	return readPromptResult{Name: string(p.Name), Text: text}, nil
}

// writePromptGateProof drops the session's lock file under
// .<ns>/sessions/ recording which canonical prompt was fetched. The file
// is evidence for later forensics, not the gate itself (the in-memory
// session flag is authoritative), so failures only warn.
func (g *Gateway) writePromptGateProof(name session.PromptName) {
	if !g.Resolver.IsLocked() {
		return
	}
	path := g.Resolver.SessionLockPath(g.Session.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		g.Logger.Warn("dispatch: could not create sessions dir", "error", err)
		return
	}
	if err := os.WriteFile(path, []byte(string(name)+"\n"), 0o644); err != nil {
		g.Logger.Warn("dispatch: could not write prompt-gate proof", "error", err)
	}
}

// --- list_plans ----------------------------------------------------------

type listedPlanResult struct {
	Hash     string            `json:"hash"`
	Status   string            `json:"status"`
	Passed   bool              `json:"passed"`
	Errors   []planstore.Finding `json:"errors,omitempty"`
	Warnings []planstore.Finding `json:"warnings,omitempty"`
}

func (g *Gateway) toolListPlans(params json.RawMessage) (any, error) {
	if err := g.requireWorkspace(); err != nil {
		return nil, err
	}
	listed, err := g.Plans.List()
	if err != nil {
		return nil, err
	}
	out := make([]listedPlanResult, 0, len(listed))
	for _, lp := range listed {
		out = append(out, listedPlanResult{
			Hash: lp.Hash, Status: lp.Status, Passed: lp.Lint.Passed,
			Errors: lp.Lint.Errors, Warnings: lp.Lint.Warnings,
		})
	}
	return out, nil
}

// --- read_file -----------------------------------------------------------

type readFileParams struct {
	Path string `json:"path"`
}

type readFileResult struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (g *Gateway) toolReadFile(params json.RawMessage) (any, error) {
	if err := g.requireWorkspace(); err != nil {
		return nil, err
	}
	p, err := decode[readFileParams](params)
	if err != nil {
		return nil, err
	}
	abs, err := g.Resolver.ResolveRead(p.Path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, gateerr.New(gateerr.CodeFileReadFailed, "could not read file", gateerr.WithCause(err))
	}
	return readFileResult{Path: p.Path, Content: string(data)}, nil
}

// --- lint_plan -------------------------------------------------------------

type lintPlanParams struct {
	Content      string `json:"content"`
	ExpectedHash string `json:"expected_hash"`
}

func (g *Gateway) toolLintPlan(params json.RawMessage) (any, error) {
	if g.Session.OperatorRole != "" && g.Session.OperatorRole != session.RolePlanner {
		return nil, gateerr.New(gateerr.CodeRoleMismatch, "lint_plan is planner-only")
	}
	p, err := decode[lintPlanParams](params)
	if err != nil {
		return nil, err
	}
	return planstore.Lint(p.Content, p.ExpectedHash), nil
}

// --- write_file -----------------------------------------------------------

type writeFileParams struct {
	Path                  string            `json:"path"`
	Content               string            `json:"content"`
	PlanHash              string            `json:"plan_hash"`
	PhaseID               string            `json:"phase_id"`
	Purpose               string            `json:"purpose"`
	ConnectedVia          string            `json:"connected_via"`
	FailureModes          string            `json:"failure_modes"`
	Intent                string            `json:"intent"`
	RiskAcknowledged      bool              `json:"risk_acknowledged"`
	RiskConsequenceString string            `json:"risk_consequence_string"`
	ExtraRoleFields       map[string]string `json:"extra_role_fields,omitempty"`
}

const minIntentLength = 20

func (g *Gateway) toolWriteFile(params json.RawMessage) (any, error) {
	if g.Session.OperatorRole != "" && g.Session.OperatorRole != session.RoleExecutor {
		err := gateerr.New(gateerr.CodeRoleMismatch, "write_file is executor-only")
		g.auditRefusal("write_file", "", "", params, err)
		return nil, err
	}
	if err := g.validateParams("write_file", params); err != nil {
		return nil, err
	}
	p, err := decode[writeFileParams](params)
	if err != nil {
		return nil, err
	}
	if len(p.Intent) < minIntentLength {
		return nil, gateerr.New(gateerr.CodeInvalidInputValue, fmt.Sprintf("intent must be at least %d characters", minIntentLength))
	}

	roleFields := map[string]string{"purpose": p.Purpose, "connected_via": p.ConnectedVia, "failure_modes": p.FailureModes}
	for k, v := range p.ExtraRoleFields {
		roleFields[k] = v
	}

	result, err := g.Gate.Write(context.Background(), writegate.Request{
		Session:               g.Session,
		Role:                  session.RoleExecutor,
		OperatorID:            g.Session.OperatorID,
		Path:                  p.Path,
		ProposedContent:       p.Content,
		PlanHash:              p.PlanHash,
		PhaseID:               p.PhaseID,
		RoleFields:            roleFields,
		RiskAcknowledged:      p.RiskAcknowledged,
		RiskConsequenceString: p.RiskConsequenceString,
	})
	if err != nil {
		g.auditRefusal("write_file", p.PlanHash, p.PhaseID, params, err)
		return nil, err
	}
	return struct {
		Path      string          `json:"path"`
		RiskLevel string          `json:"risk_level"`
		Entry     *auditlog.Entry `json:"audit_entry"`
	}{Path: result.WrittenPath, RiskLevel: string(result.RiskLevel), Entry: result.AuditEntry}, nil
}

// --- bootstrap_create_foundation_plan --------------------------------------

type bootstrapParams struct {
	PlanContent   string `json:"plan_content"`
	HMACPayload   []byte `json:"hmac_payload"`
	HMACSignature []byte `json:"hmac_signature"`
}

func (g *Gateway) toolBootstrapCreateFoundationPlan(params json.RawMessage) (any, error) {
	if g.Session.OperatorRole != "" && g.Session.OperatorRole != session.RolePlanner {
		err := gateerr.New(gateerr.CodeRoleMismatch, "bootstrap_create_foundation_plan is planner-only")
		g.auditRefusal("bootstrap_create_foundation_plan", "", "", params, err)
		return nil, err
	}
	if err := g.requireWorkspace(); err != nil {
		return nil, err
	}
	if err := g.validateParams("bootstrap_create_foundation_plan", params); err != nil {
		return nil, err
	}
	p, err := decode[bootstrapParams](params)
	if err != nil {
		return nil, err
	}
	// The plan write and governance flip happen under the audit-append
	// lock, with the success entry appended in the same hold, so the
	// one-log-entry-per-state-change rule holds for bootstrap too.
	var result *bootstrap.Result
	err = g.Audit.WithLock(context.Background(), func(appendEntry func(auditlog.Draft) (*auditlog.Entry, error)) error {
		r, berr := bootstrap.CreateFoundationPlan(bootstrap.Request{
			PlanContent:   p.PlanContent,
			HMACPayload:   p.HMACPayload,
			HMACSignature: p.HMACSignature,
		}, g.bootstrapSecret(), g.Resolver.GovernanceFilePath(), g.Plans.Put)
		if berr != nil {
			return berr
		}
		result = r
		planHash := r.PlanHash
		_, aerr := appendEntry(auditlog.Draft{
			SessionID:  g.Session.ID,
			OperatorID: g.Session.OperatorID,
			Role:       string(g.Session.OperatorRole),
			Tool:       "bootstrap_create_foundation_plan",
			PlanHash:   &planHash,
			ArgsHash:   canon.HashBytes(params),
			Result:     auditlog.ResultOK,
			Notes:      "foundation plan created; bootstrap disabled",
		})
		return aerr
	})
	if err != nil {
		g.auditRefusal("bootstrap_create_foundation_plan", "", "", params, err)
		return nil, err
	}
	return result, nil
}

// --- read_audit_log ---------------------------------------------------------

type readAuditLogParams struct {
	SeqStart int64  `json:"seq_start"`
	SeqEnd   int64  `json:"seq_end"`
	PlanHash string `json:"plan_hash"`
}

func (g *Gateway) toolReadAuditLog(params json.RawMessage) (any, error) {
	if err := g.requireWorkspace(); err != nil {
		return nil, err
	}
	p, _ := decode[readAuditLogParams](params)

	entries, err := g.Audit.ReadAll()
	if err != nil {
		g.engageOnIntegrityFailure(err)
		return nil, err
	}
	if g.Index != nil {
		if err := g.Index.EnsureFresh(entries); err != nil {
			g.Logger.Warn("dispatch: audit index refresh failed", "error", err)
		}
	}
	if p.SeqStart == 0 && p.SeqEnd == 0 && p.PlanHash == "" {
		return entries, nil
	}

	inRange := func(seq int64) bool {
		return (p.SeqStart == 0 || seq >= p.SeqStart) && (p.SeqEnd == 0 || seq <= p.SeqEnd)
	}

	var out []auditlog.Entry
	if p.PlanHash != "" && g.Index != nil {
		if seqs, err := g.Index.RangeByPlan(p.PlanHash); err == nil {
			want := make(map[int64]bool, len(seqs))
			for _, s := range seqs {
				want[s] = true
			}
			for _, e := range entries {
				if want[e.Seq] && inRange(e.Seq) {
					out = append(out, e)
				}
			}
			return out, nil
		}
	}
	for _, e := range entries {
		if !inRange(e.Seq) {
			continue
		}
		if p.PlanHash != "" && (e.PlanHash == nil || *e.PlanHash != p.PlanHash) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// --- replay_execution ---------------------------------------------------------

type replayParams struct {
	PlanHash string `json:"plan_hash"`
	SeqStart int64  `json:"seq_start"`
	SeqEnd   int64  `json:"seq_end"`
}

func (g *Gateway) toolReplayExecution(params json.RawMessage) (any, error) {
	if err := g.requireWorkspace(); err != nil {
		return nil, err
	}
	p, err := decode[replayParams](params)
	if err != nil {
		return nil, err
	}
	if p.PlanHash == "" {
		return nil, gateerr.New(gateerr.CodePlanNotFound, "plan_hash is required")
	}

	entries, chainErr := g.Audit.ReadAll()
	if chainErr != nil {
		g.engageOnIntegrityFailure(chainErr)
	}

	planContent, found := "", true
	if content, err := g.Plans.Get(p.PlanHash); err != nil {
		found = false
	} else {
		planContent = content
	}

	var lint planstore.LintResult
	if found {
		lint = planstore.Lint(planContent, p.PlanHash)
	}

	return replay.Replay(replay.Input{
		PlanHash:    p.PlanHash,
		SeqStart:    p.SeqStart,
		SeqEnd:      p.SeqEnd,
		Entries:     entries,
		ChainError:  chainErr,
		PlanContent: planContent,
		PlanLint:    lint,
		PlanFound:   found,
	}), nil
}

// --- verify_workspace_integrity ---------------------------------------------------------

type integrityResult struct {
	AuditChainOK bool     `json:"audit_chain_ok"`
	PlansOK      bool     `json:"plans_ok"`
	Problems     []string `json:"problems,omitempty"`
}

func (g *Gateway) toolVerifyWorkspaceIntegrity(params json.RawMessage) (any, error) {
	if err := g.requireWorkspace(); err != nil {
		return nil, err
	}
	result := integrityResult{AuditChainOK: true, PlansOK: true}

	if _, err := g.Audit.ReadAll(); err != nil {
		result.AuditChainOK = false
		result.Problems = append(result.Problems, err.Error())
		g.engageOnIntegrityFailure(err)
	}

	listed, err := g.Plans.List()
	if err != nil {
		result.PlansOK = false
		result.Problems = append(result.Problems, err.Error())
	}
	for _, lp := range listed {
		if !lp.Lint.Passed {
			result.PlansOK = false
			result.Problems = append(result.Problems, fmt.Sprintf("plan %s fails lint", lp.Hash))
		}
	}
	return result, nil
}

// --- attestation tools ---------------------------------------------------------

type generateAttestationParams struct {
	PlanHash string `json:"plan_hash"`
}

func (g *Gateway) toolGenerateAttestationBundle(params json.RawMessage) (any, error) {
	if err := g.requireWorkspace(); err != nil {
		return nil, err
	}
	p, err := decode[generateAttestationParams](params)
	if err != nil {
		return nil, err
	}
	entries, err := g.Audit.ReadAll()
	if err != nil {
		g.engageOnIntegrityFailure(err)
		return nil, err
	}
	bundle, err := attestation.GenerateBundle(entries, p.PlanHash, g.Session.ID, g.clock())
	if err != nil {
		return nil, gateerr.New(gateerr.CodeAttestationEvidenceInvalid, err.Error())
	}
	token, err := attestation.Sign(bundle, g.AttestationSecret)
	if err != nil {
		return nil, gateerr.New(gateerr.CodeAttestationEvidenceInvalid, err.Error())
	}
	return struct {
		Token  string              `json:"token"`
		Bundle *attestation.Bundle `json:"bundle"`
	}{Token: token, Bundle: bundle}, nil
}

type verifyAttestationParams struct {
	Token string `json:"token"`
}

func (g *Gateway) toolVerifyAttestationBundle(params json.RawMessage) (any, error) {
	p, err := decode[verifyAttestationParams](params)
	if err != nil {
		return nil, err
	}
	bundle, err := attestation.Verify(p.Token, g.AttestationSecret)
	if err != nil {
		return nil, gateerr.New(gateerr.CodeAttestationEvidenceInvalid, err.Error())
	}
	return bundle, nil
}

type exportAttestationParams struct {
	PlanHash string `json:"plan_hash"`
}

func (g *Gateway) toolExportAttestationBundle(params json.RawMessage) (any, error) {
	if err := g.requireWorkspace(); err != nil {
		return nil, err
	}
	if g.AttestationStore == nil {
		return nil, gateerr.New(gateerr.CodeAttestationEvidenceInvalid, "no attestation store configured")
	}
	p, err := decode[exportAttestationParams](params)
	if err != nil {
		return nil, err
	}
	entries, err := g.Audit.ReadAll()
	if err != nil {
		g.engageOnIntegrityFailure(err)
		return nil, err
	}
	bundle, err := attestation.GenerateBundle(entries, p.PlanHash, g.Session.ID, g.clock())
	if err != nil {
		return nil, gateerr.New(gateerr.CodeAttestationEvidenceInvalid, err.Error())
	}
	token, err := attestation.ExportBundle(context.Background(), g.AttestationStore, bundle, g.AttestationSecret)
	if err != nil {
		return nil, gateerr.New(gateerr.CodeAttestationEvidenceInvalid, err.Error())
	}
	return struct {
		BundleHash string `json:"bundle_hash"`
		Token      string `json:"token"`
	}{BundleHash: bundle.BundleHash, Token: token}, nil
}

// --- recovery tools ---------------------------------------------------------

type recoveryAckFlags struct {
	UnderstoodReason        bool `json:"understood_reason"`
	UnderstoodWhatFailed    bool `json:"understood_what_failed"`
	UnderstoodForbidden     bool `json:"understood_forbidden_operations"`
	ResponsibilityAcknowledged bool `json:"responsibility_acknowledged"`
}

func (f recoveryAckFlags) allTrue() bool {
	return f.UnderstoodReason && f.UnderstoodWhatFailed && f.UnderstoodForbidden && f.ResponsibilityAcknowledged
}

type initiateRecoveryParams struct {
	HaltReportPath string            `json:"halt_report_path"`
	Flags          recoveryAckFlags  `json:"flags"`
}

func (g *Gateway) toolInitiateRecovery(params json.RawMessage) (any, error) {
	if g.Session.OperatorRole != session.RoleOwner {
		return nil, gateerr.New(gateerr.CodeInsufficientPermissions, "recovery initiation requires role OWNER")
	}
	p, err := decode[initiateRecoveryParams](params)
	if err != nil {
		return nil, err
	}
	if p.HaltReportPath == "" || !p.Flags.allTrue() {
		return nil, gateerr.New(gateerr.CodeInvalidInputValue, "all four acknowledgement flags and a halt_report_path are required")
	}
	code, err := g.KillSwitch.InitiateRecovery(g.Session.OperatorID)
	if err != nil {
		return nil, err
	}
	return struct {
		ConfirmationCode string `json:"confirmation_code"`
	}{ConfirmationCode: code}, nil
}

type confirmRecoveryParams struct {
	Flags            recoveryAckFlags `json:"flags"`
	ConfirmationCode string           `json:"confirmation_code"`
}

func (g *Gateway) toolConfirmRecovery(params json.RawMessage) (any, error) {
	if g.Session.OperatorRole != session.RoleOwner {
		return nil, gateerr.New(gateerr.CodeInsufficientPermissions, "recovery confirmation requires role OWNER")
	}
	p, err := decode[confirmRecoveryParams](params)
	if err != nil {
		return nil, err
	}
	if !p.Flags.allTrue() || p.ConfirmationCode == "" {
		return nil, gateerr.New(gateerr.CodeInvalidInputValue, "all four acknowledgement flags and confirmation_code are required")
	}

	err = g.KillSwitch.ConfirmRecovery(g.Session.OperatorID, p.ConfirmationCode, func() error {
		if _, chainErr := g.Audit.ReadAll(); chainErr != nil {
			return chainErr
		}
		listed, err := g.Plans.List()
		if err != nil {
			return err
		}
		for _, lp := range listed {
			if !lp.Lint.Passed {
				return fmt.Errorf("plan %s fails re-lint during recovery preflight", lp.Hash)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return struct {
		Recovered bool `json:"recovered"`
	}{Recovered: true}, nil
}

// --- helpers ---------------------------------------------------------

func (g *Gateway) requireWorkspace() error {
	if !g.Resolver.IsLocked() {
		return gateerr.New(gateerr.CodeOperatorIdentityMissing, "no active session; call begin_session first")
	}
	return nil
}

// bootstrapSecret returns the HMAC secret for bootstrap verification:
// the environment-supplied secret when one is configured, otherwise the
// workspace's own bootstrap_secret.json ({"secret": "<base64>"}). An
// empty result leaves HMAC verification failing closed.
func (g *Gateway) bootstrapSecret() []byte {
	if len(g.BootstrapSecret) > 0 {
		return g.BootstrapSecret
	}
	data, err := os.ReadFile(g.Resolver.BootstrapSecretFilePath())
	if err != nil {
		return nil
	}
	var parsed struct {
		Secret string `json:"secret"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil || parsed.Secret == "" {
		return nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(parsed.Secret); err == nil {
		return decoded
	}
	return []byte(parsed.Secret)
}

// auditRefusal records a mutating tool's refusal in the audit chain.
// Post-write verification failures are skipped because the gate records
// those itself inside its critical section, and so is any refusal while
// the kill switch is engaged: a halted workspace's log receives no
// appends. Append failures here are logged, not surfaced — the refusal
// the caller sees must be the original one.
func (g *Gateway) auditRefusal(tool, planHash, phaseID string, params json.RawMessage, refusal error) {
	if g.Audit == nil {
		return
	}
	var ge *gateerr.GateError
	if !errors.As(refusal, &ge) {
		return
	}
	switch ge.ErrorCode {
	case gateerr.CodeKillSwitchEngaged, gateerr.CodePostWriteVerificationFailed:
		return
	}
	argsHash := canon.HashBytes(params)
	code := string(ge.ErrorCode)
	var planHashPtr, phaseIDPtr *string
	if planHash != "" {
		planHashPtr = &planHash
	}
	if phaseID != "" {
		phaseIDPtr = &phaseID
	}
	if _, err := g.Audit.Append(context.Background(), auditlog.Draft{
		SessionID:  g.Session.ID,
		OperatorID: g.Session.OperatorID,
		Role:       string(g.Session.OperatorRole),
		Tool:       tool,
		PlanHash:   planHashPtr,
		PhaseID:    phaseIDPtr,
		ArgsHash:   argsHash,
		Result:     auditlog.ResultRefusal,
		ErrorCode:  &code,
		Notes:      ge.HumanMessage,
	}); err != nil {
		g.Logger.Error("dispatch: failed to audit refusal", "tool", tool, "error", err)
	}
}

// engageOnIntegrityFailure latches the kill switch whenever a read-path
// integrity check (read_audit_log, verify_workspace_integrity, replay,
// attestation generation) observes a broken chain. Chain failures are
// non-recoverable; nothing below this can clear them.
func (g *Gateway) engageOnIntegrityFailure(err error) {
	iv, ok := err.(*gateerr.InvariantViolation)
	if !ok {
		return
	}
	if _, engageErr := g.KillSwitch.Engage("audit log integrity check failed: "+iv.Detail, iv.InvariantID); engageErr != nil {
		g.Logger.Error("dispatch: failed to engage kill switch after integrity failure", "error", engageErr)
		return
	}
	g.Logger.Error("dispatch: kill switch engaged", "invariant_id", iv.InvariantID, "session_id", g.Session.ID)
}
