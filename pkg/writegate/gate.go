// Package writegate implements the write gate: the single, ordered,
// fail-closed pipeline every filesystem mutation must pass through. It
// runs a fixed sequence of numbered checks and returns on the first
// failure; no side effect occurs before stage 12.
package writegate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Mindburn-Labs/gatekeeper/internal/logging"
	"github.com/Mindburn-Labs/gatekeeper/pkg/auditlog"
	"github.com/Mindburn-Labs/gatekeeper/pkg/canon"
	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
	"github.com/Mindburn-Labs/gatekeeper/pkg/killswitch"
	"github.com/Mindburn-Labs/gatekeeper/pkg/planstore"
	"github.com/Mindburn-Labs/gatekeeper/pkg/policy"
	"github.com/Mindburn-Labs/gatekeeper/pkg/session"
	"github.com/Mindburn-Labs/gatekeeper/pkg/workspace"
)

// Request is the full, already input-schema-validated write_file call.
type Request struct {
	Session    *session.State
	Role       session.Role
	OperatorID string

	Path            string
	ProposedContent string

	PlanHash string
	PhaseID  string

	RoleFields map[string]string // purpose, connected_via, failure_modes

	RiskAcknowledged      bool
	RiskConsequenceString string
}

// Result is returned on success.
type Result struct {
	WrittenPath string
	AuditEntry  *auditlog.Entry
	RiskLevel   RiskLevel
}

// FatigueLimits bounds stage 11.
type FatigueLimits struct {
	ConsecutiveLimit int
	SessionLimit     int
}

// Gate wires every core component into the ordered pipeline. Construct
// one per workspace process; it is safe for concurrent use to the extent
// its components are (auditlog.Log serializes writers internally).
type Gate struct {
	Resolver      *workspace.Resolver
	Plans         *planstore.Store
	Policy        *policy.Engine
	Audit         *auditlog.Log
	KillSwitch    *killswitch.Controller
	Fatigue       FatigueLimits
	VerifyTimeout time.Duration
	Logger        *slog.Logger

	clock func() time.Time
}

// New returns a Gate with the given collaborators and a default 60s
// post-write verification timeout.
func New(resolver *workspace.Resolver, plans *planstore.Store, pol *policy.Engine, audit *auditlog.Log, ks *killswitch.Controller, fatigue FatigueLimits) *Gate {
	return &Gate{
		Resolver:      resolver,
		Plans:         plans,
		Policy:        pol,
		Audit:         audit,
		KillSwitch:    ks,
		Fatigue:       fatigue,
		VerifyTimeout: 60 * time.Second,
		clock:         time.Now,
	}
}

// WithClock overrides the clock used for fatigue-pause and deadline
// accounting in tests.
func (g *Gate) WithClock(clock func() time.Time) *Gate {
	g.clock = clock
	return g
}

// Write runs the full fifteen-stage pipeline. Any returned error is a
// *gateerr.GateError (refusal) or a *gateerr.InvariantViolation (fatal;
// callers must engage the kill switch if Write itself has not already
// done so — see stage 13). Every decision, allow or refuse, emits one
// structured log record.
func (g *Gate) Write(ctx context.Context, req Request) (*Result, error) {
	result, err := g.write(ctx, req)
	g.logDecision(req, err)
	return result, err
}

func (g *Gate) logDecision(req Request, err error) {
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessionID := ""
	if req.Session != nil {
		sessionID = req.Session.ID
	}
	if err == nil {
		logger.Info("writegate: allowed", logging.ForGate("write_file", sessionID, string(auditlog.ResultOK))...)
		return
	}
	attrs := logging.ForGate("write_file", sessionID, string(auditlog.ResultRefusal))
	var ge *gateerr.GateError
	if errors.As(err, &ge) {
		attrs = append(attrs, slog.String("error_code", string(ge.ErrorCode)))
	}
	var iv *gateerr.InvariantViolation
	if errors.As(err, &iv) {
		attrs = append(attrs, slog.String("invariant_id", iv.InvariantID))
	}
	logger.Warn("writegate: refused", attrs...)
}

func (g *Gate) write(ctx context.Context, req Request) (*Result, error) {
	// Stage 1: kill switch must not be engaged.
	engaged, err := g.KillSwitch.IsEngaged()
	if err != nil {
		return nil, fmt.Errorf("writegate: check kill switch: %w", err)
	}
	if engaged {
		return nil, gateerr.New(gateerr.CodeKillSwitchEngaged, "kill switch is engaged; no mutating tool may run")
	}

	// Stage 2: session must exist (enforced by caller passing req.Session non-nil).
	if req.Session == nil {
		return nil, gateerr.New(gateerr.CodeOperatorIdentityMissing, "no active session")
	}

	// Stage 3: operator identity bound.
	if req.OperatorID == "" {
		return nil, gateerr.New(gateerr.CodeOperatorIdentityMissing, "operator identity is not bound to this session")
	}

	// Stage 4: prompt gate satisfied for the claimed role.
	if !req.Session.PromptGateSatisfied(req.Role) {
		return nil, gateerr.New(gateerr.CodePromptGateLocked, "canonical prompt for this role has not been fetched this session",
			gateerr.WithRole(string(req.Role)))
	}

	// Stage 5: input already schema-validated by the dispatch layer before
	// reaching here; nothing further to check structurally.

	// Stage 6: path resolution and containment.
	absPath, err := g.Resolver.ResolveWrite(req.Path)
	if err != nil {
		return nil, err
	}

	// Stage 7: plan hash supplied and plan exists.
	if req.PlanHash == "" {
		return nil, gateerr.New(gateerr.CodePlanNotFound, "no plan_hash supplied; execution must be plan-authorized",
			gateerr.WithTool("write_file"))
	}
	planContent, err := g.Plans.Get(req.PlanHash)
	if err != nil {
		var ge *gateerr.GateError
		if errors.As(err, &ge) && ge.ErrorCode == gateerr.CodePlanNotFound {
			return nil, gateerr.New(gateerr.CodePlanNotApproved, "plan_hash does not resolve to any stored, approved plan",
				gateerr.WithPlanHash(req.PlanHash))
		}
		return nil, err
	}

	// Stage 8: plan re-lint at point of use, not just at approval time.
	lint := planstore.Lint(planContent, req.PlanHash)
	if !lint.Passed {
		return nil, gateerr.New(gateerr.CodePlanNotEnforceable, "plan fails re-lint at point of use",
			gateerr.WithPlanHash(req.PlanHash))
	}
	parsedPlan := planstore.Parse(planContent)

	phase, ok := findPhase(parsedPlan, req.PhaseID)
	if !ok {
		return nil, gateerr.New(gateerr.CodePlanInvalidPhaseID, "phase_id not found in plan",
			gateerr.WithPhaseID(req.PhaseID), gateerr.WithPlanHash(req.PlanHash))
	}

	// Stage 9: policy engine evaluation.
	var priorPtr *string
	priorExists := false
	if existing, err := os.ReadFile(absPath); err == nil {
		priorExists = true
		s := string(existing)
		priorPtr = &s
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("writegate: read prior content: %w", err)
	}

	allowed, violations := g.Policy.Evaluate(policy.Input{
		Path:            req.Path,
		ProposedContent: req.ProposedContent,
		PriorContent:    priorPtr,
		Plan:            parsedPlan,
		Role:            string(req.Role),
		RoleFields:      req.RoleFields,
	})
	if !allowed {
		code := gateerr.CodePolicyViolation
		msg := "policy engine rejected this write"
		if len(violations) > 0 {
			code = violations[0].Code
			msg = violations[0].Message
		}
		return nil, gateerr.New(code, msg,
			gateerr.WithPlanHash(req.PlanHash), gateerr.WithPhaseID(req.PhaseID))
	}

	// Stage 10: risk acknowledgment.
	level, reason := ClassifyRisk(req.Path, priorExists, req.ProposedContent)
	if level == RiskHigh {
		required := RequiredConsequenceString(reason)
		if !req.RiskAcknowledged || req.RiskConsequenceString != required {
			return nil, gateerr.New(gateerr.CodeInvalidInputValue,
				"this write is classified HIGH risk and requires the exact risk acknowledgment string: "+required)
		}
	}

	// Stage 11: fatigue guard.
	consecutive, thisSession := req.Session.FatigueCounters()
	if g.Fatigue.ConsecutiveLimit > 0 && consecutive >= g.Fatigue.ConsecutiveLimit {
		return nil, gateerr.New(gateerr.CodeOperatorFatigue, "consecutive-approval fatigue limit reached; pause and acknowledge before continuing")
	}
	if g.Fatigue.SessionLimit > 0 && thisSession >= g.Fatigue.SessionLimit {
		return nil, gateerr.New(gateerr.CodeOperatorFatigue, "session approval-count fatigue limit reached")
	}

	argsHash, err := canon.Hash(map[string]any{
		"path": req.Path, "content": req.ProposedContent, "plan_hash": req.PlanHash, "phase_id": req.PhaseID,
	})
	if err != nil {
		return nil, fmt.Errorf("writegate: hash args: %w", err)
	}

	// Stages 12-14 are the critical section: the audit-append lock is
	// held across file mutation, post-write verification, revert, and the
	// log append, so concurrent tool calls serialize at the mutation
	// level. The audit log's own lock doubles as the write-serialization
	// primitive; no second lock exists.
	var entry *auditlog.Entry
	err = g.Audit.WithLock(ctx, func(appendEntry func(auditlog.Draft) (*auditlog.Entry, error)) error {
		// Stage 12: prior content is re-read under the lock so a revert
		// restores exactly what a concurrent writer may have put here
		// since the policy pass read it.
		priorExists = false
		priorPtr = nil
		if existing, readErr := os.ReadFile(absPath); readErr == nil {
			priorExists = true
			s := string(existing)
			priorPtr = &s
		} else if !os.IsNotExist(readErr) {
			return fmt.Errorf("writegate: read prior content: %w", readErr)
		}

		if werr := atomicWrite(absPath, []byte(req.ProposedContent)); werr != nil {
			return fmt.Errorf("writegate: write: %w", werr)
		}

		// Stage 13: post-write verification; revert on failure.
		if verr := g.postWriteVerify(ctx, absPath, req, parsedPlan, phase, priorPtr); verr != nil {
			revertErr := revertWrite(absPath, priorExists, priorPtr)
			ec := string(gateerr.CodePostWriteVerificationFailed)
			if _, aerr := appendEntry(g.draft(req, argsHash, auditlog.ResultRefusal, &ec, nil,
				fmt.Sprintf("post-write verification failed: %v (revert error: %v)", verr, revertErr))); aerr != nil {
				return aerr
			}
			if _, ksErr := g.KillSwitch.Engage("post-write verification failed", string(gateerr.CodePostWriteVerificationFailed)); ksErr != nil {
				return fmt.Errorf("writegate: engage kill switch after verification failure: %w", ksErr)
			}
			return gateerr.New(gateerr.CodePostWriteVerificationFailed, fmt.Sprintf("post-write verification failed: %v", verr),
				gateerr.WithPlanHash(req.PlanHash), gateerr.WithPhaseID(req.PhaseID))
		}

		// Stage 14: audit append, under the still-held lock.
		e, aerr := appendEntry(g.draft(req, argsHash, auditlog.ResultOK, nil, nil, ""))
		if aerr != nil {
			return aerr
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Stage 15: success; update session fatigue counters.
	req.Session.RecordApproval()

	return &Result{WrittenPath: absPath, AuditEntry: entry, RiskLevel: level}, nil
}

func (g *Gate) draft(req Request, argsHash string, result auditlog.Result, errorCode, invariantID *string, notes string) auditlog.Draft {
	var planHashPtr, phaseIDPtr *string
	if req.PlanHash != "" {
		planHashPtr = &req.PlanHash
	}
	if req.PhaseID != "" {
		phaseIDPtr = &req.PhaseID
	}
	return auditlog.Draft{
		SessionID:   req.Session.ID,
		OperatorID:  req.OperatorID,
		Role:        string(req.Role),
		Tool:        "write_file",
		PlanHash:    planHashPtr,
		PhaseID:     phaseIDPtr,
		ArgsHash:    argsHash,
		Result:      result,
		ErrorCode:   errorCode,
		InvariantID: invariantID,
		Notes:       notes,
	}
}

// postWriteVerify re-reads the just-written file, re-runs the policy
// engine against the on-disk bytes, and runs the phase's declared
// verification commands. Any failure means the write is reverted.
func (g *Gate) postWriteVerify(ctx context.Context, absPath string, req Request, parsedPlan planstore.Parsed, phase planstore.Phase, priorPtr *string) error {
	onDisk, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("re-read written file: %w", err)
	}
	allowed, violations := g.Policy.Evaluate(policy.Input{
		Path:            req.Path,
		ProposedContent: string(onDisk),
		PriorContent:    priorPtr,
		Plan:            parsedPlan,
		Role:            string(req.Role),
		RoleFields:      req.RoleFields,
	})
	if !allowed {
		msg := "on-disk content fails policy re-check"
		if len(violations) > 0 {
			msg = violations[0].Message
		}
		return errors.New(msg)
	}
	return g.runVerification(ctx, phase)
}

// runVerification executes the phase's declared verification commands
// within g.VerifyTimeout. A phase with no verification commands passes
// trivially: not every phase need declare runnable checks, but one that
// does must have them pass.
func (g *Gate) runVerification(ctx context.Context, phase planstore.Phase) error {
	raw := strings.TrimSpace(phase.Fields["Verification commands"])
	if raw == "" {
		return nil
	}
	timeout := g.VerifyTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, line := range strings.Split(raw, "\n") {
		cmdline := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if cmdline == "" {
			continue
		}
		cmd := exec.CommandContext(vctx, "sh", "-c", cmdline)
		cmd.Dir = g.Resolver.Root()
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("verification command %q failed: %w (output: %s)", cmdline, err, truncate(string(out), 2000))
		}
	}
	return nil
}

func findPhase(p planstore.Parsed, phaseID string) (planstore.Phase, bool) {
	for _, ph := range p.Phases {
		if ph.ID == phaseID {
			return ph, true
		}
	}
	return planstore.Phase{}, false
}

func atomicWrite(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-write-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// revertWrite restores absPath to its pre-write state: removed if it did
// not previously exist, rewritten to its prior content otherwise.
func revertWrite(absPath string, priorExists bool, prior *string) error {
	if !priorExists {
		return os.Remove(absPath)
	}
	return atomicWrite(absPath, []byte(*prior))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
