package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/gatekeeper/pkg/attestation"
	"github.com/Mindburn-Labs/gatekeeper/pkg/auditlog"
	"github.com/Mindburn-Labs/gatekeeper/pkg/killswitch"
	"github.com/Mindburn-Labs/gatekeeper/pkg/planstore"
	"github.com/Mindburn-Labs/gatekeeper/pkg/policy"
	"github.com/Mindburn-Labs/gatekeeper/pkg/session"
	"github.com/Mindburn-Labs/gatekeeper/pkg/workspace"
	"github.com/Mindburn-Labs/gatekeeper/pkg/writegate"
)

// PromptProvider supplies the text of the two canonical role prompts.
// The prompt text itself is authored elsewhere; this interface is the
// only surface the dispatch shim needs against it.
type PromptProvider interface {
	Fetch(name session.PromptName) (string, error)
}

// StaticPrompts is the default PromptProvider: a fixed, in-process map.
// Operators who need the authored canonical prompt text substitute their
// own PromptProvider; this implementation only has to satisfy the
// prompt-gate's "was the matching prompt fetched this session" check.
type StaticPrompts map[session.PromptName]string

func (p StaticPrompts) Fetch(name session.PromptName) (string, error) {
	text, ok := p[name]
	if !ok {
		return "", errUnknownPrompt(name)
	}
	return text, nil
}

// Gateway wires every core package into the exposed tool surface. One
// Gateway exists per process, bound to one workspace via BeginSession.
type Gateway struct {
	Namespace string

	Resolver   *workspace.Resolver
	Plans      *planstore.Store
	Policy     *policy.Engine
	Audit      *auditlog.Log
	Index      *auditlog.Index
	KillSwitch *killswitch.Controller
	Gate       *writegate.Gate
	Session    *session.State
	Prompts    PromptProvider
	Schemas    *policy.SchemaRegistry

	BootstrapSecret   []byte
	AttestationSecret []byte
	AttestationStore  attestation.Store

	RecoveryMinDelay   time.Duration
	StaleLockThreshold time.Duration
	FatigueLimits      writegate.FatigueLimits

	// LockerFactory overrides the default mkdir-based audit-append lock,
	// e.g. to swap in auditlog.NewRedisLocker when
	// <NS>_AUDIT_LOCK_REDIS_ADDR is set. nil selects DirLocker.
	LockerFactory func(resolver *workspace.Resolver) auditlog.Locker

	Logger *slog.Logger

	clock func() time.Time
}

// New constructs a Gateway with the given namespace and a fresh
// per-process session. Collaborators are wired in by the caller (see
// cmd/gatekeeper/main.go) once the workspace root's logical paths are
// known — which only happens after BeginSession locks the root.
func New(namespace string, logger *slog.Logger) *Gateway {
	return &Gateway{
		Namespace: namespace,
		Resolver:  workspace.New(namespace),
		Session:   session.New(),
		Schemas:   defaultSchemaRegistry(),
		Logger:    logger,
		clock:     time.Now,
	}
}

// WithClock overrides the clock used for deterministic tests.
func (g *Gateway) WithClock(clock func() time.Time) *Gateway {
	g.clock = clock
	return g
}

// wireWorkspaceComponents constructs every component that depends on the
// now-locked workspace root's logical paths. Called once, from
// BeginSession, after Resolver.Lock succeeds.
func (g *Gateway) wireWorkspaceComponents() {
	var locker auditlog.Locker
	if g.LockerFactory != nil {
		locker = g.LockerFactory(g.Resolver)
	} else {
		locker = auditlog.NewDirLocker(g.Resolver.AuditLockDirPath())
	}
	staleAfter := g.StaleLockThreshold
	if staleAfter <= 0 {
		staleAfter = 10 * time.Second
	}
	g.Audit = auditlog.New(g.Resolver.AuditLogPath(), locker, staleAfter)
	if idx, err := auditlog.OpenIndex(g.Resolver.AuditIndexPath()); err == nil {
		g.Index = idx
	} else {
		// The index is derived, rebuildable data; losing it degrades
		// range queries to a linear scan, nothing more.
		g.Logger.Warn("dispatch: audit index unavailable", "error", err)
	}
	g.Plans = planstore.New(g.Resolver.PlansDir())
	if g.Policy == nil {
		g.Policy = policy.New()
	}
	g.KillSwitch = killswitch.New(g.Resolver.KillSwitchFilePath(), g.Resolver.RecoveryPendingFilePath(), g.RecoveryMinDelay)
	limits := g.FatigueLimits
	if limits.ConsecutiveLimit == 0 && limits.SessionLimit == 0 {
		limits = writegate.FatigueLimits{ConsecutiveLimit: 10, SessionLimit: 50}
	}
	g.Gate = writegate.New(g.Resolver, g.Plans, g.Policy, g.Audit, g.KillSwitch, limits)
	g.Gate.Logger = g.Logger
}

// Registry builds the static tool registry: read-only tools are always
// registered; mutating tools are registered only if the kill-switch is
// not engaged when Registry is called. A Gateway not yet bound to a
// workspace has no kill-switch and counts as not engaged, so a registry
// built before begin_session registers every tool; write_file still
// checks the kill-switch in the write gate on every call.
func (g *Gateway) Registry(ctx context.Context) (*Registry, error) {
	reg := NewRegistry()

	reg.Register("begin_session", g.toolBeginSession)
	reg.Register("read_prompt", g.toolReadPrompt)
	reg.Register("list_plans", g.toolListPlans)
	reg.Register("read_file", g.toolReadFile)
	reg.Register("lint_plan", g.toolLintPlan)
	reg.Register("read_audit_log", g.toolReadAuditLog)
	reg.Register("replay_execution", g.toolReplayExecution)
	reg.Register("verify_workspace_integrity", g.toolVerifyWorkspaceIntegrity)
	reg.Register("verify_attestation_bundle", g.toolVerifyAttestationBundle)
	reg.Register("initiate_recovery", g.toolInitiateRecovery)
	reg.Register("confirm_recovery", g.toolConfirmRecovery)

	engaged := false
	if g.KillSwitch != nil {
		var err error
		engaged, err = g.KillSwitch.IsEngaged()
		if err != nil {
			return nil, err
		}
	}
	if !engaged {
		reg.Register("write_file", g.toolWriteFile)
		reg.Register("bootstrap_create_foundation_plan", g.toolBootstrapCreateFoundationPlan)
		reg.Register("generate_attestation_bundle", g.toolGenerateAttestationBundle)
		reg.Register("export_attestation_bundle", g.toolExportAttestationBundle)
	}

	return reg, nil
}
