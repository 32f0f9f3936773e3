// Package bootstrap implements the one-time operation that writes the
// very first plan to a fresh workspace, gated by INV_BOOTSTRAP_ONCE and
// an HMAC-SHA256 signature over the caller-supplied payload, verified
// against `<NS>_BOOTSTRAP_SECRET`. The credential is a single shared
// secret distributed out of band, not a keypair, and with no secret
// configured verification fails closed.
package bootstrap

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
	"github.com/Mindburn-Labs/gatekeeper/pkg/governance"
	"github.com/Mindburn-Labs/gatekeeper/pkg/planstore"
)

// Request is the bootstrap_create_foundation_plan tool's full input.
type Request struct {
	PlanContent    string
	HMACPayload    []byte
	HMACSignature  []byte
}

// Result carries the newly-created plan's hash on success.
type Result struct {
	PlanHash string
}

// VerifySignature reports whether signature is the HMAC-SHA256 of
// payload under secret. It is a free function so the dispatch layer can
// reuse it for any other shared-secret check without constructing a
// full Request.
func VerifySignature(secret, payload, signature []byte) bool {
	if len(secret) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	expected := mac.Sum(nil)
	return subtle.ConstantTimeCompare(expected, signature) == 1
}

// CreateFoundationPlan performs the bootstrap operation: confirms
// bootstrap is still enabled (INV_BOOTSTRAP_ONCE), verifies the HMAC
// signature, lints the plan content, and — only if every check passes — writes the
// plan and flips governance.BootstrapEnabled to false forever. put is the
// plan store's Put function (injected so callers aren't forced to
// depend on *planstore.Store directly), and the caller is responsible
// for performing this entire sequence under the shared audit-append
// lock, since this write is itself a governance-state mutation.
func CreateFoundationPlan(req Request, secret []byte, governancePath string, put func([]byte) (string, error)) (*Result, error) {
	state, err := governance.Load(governancePath)
	if err != nil {
		return nil, err
	}
	if !state.BootstrapEnabled {
		return nil, gateerr.New(gateerr.CodeBootstrapDisabled, "bootstrap has already been completed for this workspace")
	}

	if !VerifySignature(secret, req.HMACPayload, req.HMACSignature) {
		return nil, gateerr.New(gateerr.CodeInvalidSignature, "bootstrap HMAC signature does not verify")
	}

	lint := planstore.Lint(req.PlanContent, "")
	if !lint.Passed {
		msg := "bootstrap plan fails lint"
		if len(lint.Errors) > 0 {
			msg = lint.Errors[0].Message
		}
		return nil, gateerr.New(gateerr.CodePlanNotEnforceable, msg)
	}

	hash, err := put([]byte(req.PlanContent))
	if err != nil {
		return nil, err
	}

	if _, err := governance.RecordApprovedPlan(governancePath); err != nil {
		return nil, err
	}

	return &Result{PlanHash: hash}, nil
}
