// Package killswitch implements the persisted kill-switch safety net:
// a fatal invariant violation anywhere in the gateway latches a durable,
// fail-closed flag that blocks every mutating tool until an owner
// completes a deliberately slow, two-step, confirmation-code-bound
// recovery protocol.
package killswitch

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/Mindburn-Labs/gatekeeper/pkg/canon"
	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
)

// State is the persisted kill-switch record.
type State struct {
	Engaged     bool       `json:"engaged"`
	EngagedAt   *time.Time `json:"engaged_at,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	InvariantID string     `json:"invariant_id,omitempty"`
	StateHash   string     `json:"state_hash,omitempty"`
}

func (s *State) computeHash() string {
	h, _ := canon.Hash(struct {
		Engaged     bool       `json:"engaged"`
		EngagedAt   *time.Time `json:"engaged_at,omitempty"`
		Reason      string     `json:"reason,omitempty"`
		InvariantID string     `json:"invariant_id,omitempty"`
	}{s.Engaged, s.EngagedAt, s.Reason, s.InvariantID})
	return h
}

// pendingRecovery is the persisted record of an in-progress recovery
// attempt, bound to the kill-switch state it was initiated against.
type pendingRecovery struct {
	InitiatedAt      time.Time `json:"initiated_at"`
	OperatorID       string    `json:"operator_id"`
	ConfirmationCode string    `json:"confirmation_code"`
	BoundStateHash   string    `json:"bound_state_hash"`
}

// Controller manages one workspace's kill-switch state and pending
// recovery file. minDelay is the mandatory pause between
// initiate_recovery and confirm_recovery.
type Controller struct {
	statePath   string
	pendingPath string
	minDelay    time.Duration
	clock       func() time.Time
}

// New returns a Controller for the given state and pending-recovery file
// paths (typically workspace.Resolver.KillSwitchFilePath() and
// RecoveryPendingFilePath()).
func New(statePath, pendingPath string, minDelay time.Duration) *Controller {
	return &Controller{statePath: statePath, pendingPath: pendingPath, minDelay: minDelay, clock: time.Now}
}

// WithClock overrides the clock for deterministic tests.
func (c *Controller) WithClock(clock func() time.Time) *Controller {
	c.clock = clock
	return c
}

// Load reads the current state, returning the zero (disengaged) state if
// no kill-switch file exists yet.
func (c *Controller) Load() (*State, error) {
	data, err := os.ReadFile(c.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("killswitch: read: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("killswitch: parse: %w", err)
	}
	return &s, nil
}

// IsEngaged is a convenience wrapper over Load for the write-gate's
// stage-1 check.
func (c *Controller) IsEngaged() (bool, error) {
	s, err := c.Load()
	if err != nil {
		return false, err
	}
	return s.Engaged, nil
}

func (c *Controller) save(s *State) error {
	s.StateHash = s.computeHash()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("killswitch: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.statePath), 0o755); err != nil {
		return fmt.Errorf("killswitch: mkdir: %w", err)
	}
	tmp := c.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("killswitch: write temp: %w", err)
	}
	return os.Rename(tmp, c.statePath)
}

// Engage latches the kill switch. Engaging an already-engaged switch is a
// no-op that preserves the original reason and timestamp: the first fatal
// condition is the one that matters, and recovery must address it, not
// whichever one happened to be observed most recently.
func (c *Controller) Engage(reason, invariantID string) (*State, error) {
	existing, err := c.Load()
	if err != nil {
		return nil, err
	}
	if existing.Engaged {
		return existing, nil
	}
	now := c.clock().UTC()
	s := &State{Engaged: true, EngagedAt: &now, Reason: reason, InvariantID: invariantID}
	if err := c.save(s); err != nil {
		return nil, err
	}
	return s, nil
}

// InitiateRecovery starts the two-step recovery protocol (step one of
// two). It requires the switch to currently be engaged, generates a
// random confirmation code bound to the exact engaged state it was
// issued against, and persists it. A prior pending attempt is overwritten:
// only the most recent initiate_recovery call's code is valid.
func (c *Controller) InitiateRecovery(operatorID string) (string, error) {
	s, err := c.Load()
	if err != nil {
		return "", err
	}
	if !s.Engaged {
		return "", gateerr.New(gateerr.CodeInvalidInputValue, "kill switch is not engaged; nothing to recover from")
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("killswitch: generate confirmation nonce: %w", err)
	}
	code, err := deriveCode(nonce, s.computeHash())
	if err != nil {
		return "", fmt.Errorf("killswitch: derive confirmation code: %w", err)
	}

	p := pendingRecovery{
		InitiatedAt:      c.clock().UTC(),
		OperatorID:       operatorID,
		ConfirmationCode: code,
		BoundStateHash:   s.computeHash(),
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("killswitch: marshal pending: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.pendingPath), 0o755); err != nil {
		return "", fmt.Errorf("killswitch: mkdir: %w", err)
	}
	tmp := c.pendingPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("killswitch: write temp: %w", err)
	}
	if err := os.Rename(tmp, c.pendingPath); err != nil {
		return "", fmt.Errorf("killswitch: rename: %w", err)
	}
	return code, nil
}

// ConfirmRecovery completes the two-step protocol (step two of two).
// preflight is called only once every other check has passed — code
// match, elapsed minimum delay, state unchanged since initiation — and
// must perform the caller's domain re-verification (audit-chain replay,
// plan re-lint, plan maturity) before the switch is actually cleared. A
// preflight failure leaves the switch engaged and the pending record
// intact, so the operator may retry once the underlying issue is fixed.
func (c *Controller) ConfirmRecovery(operatorID, code string, preflight func() error) error {
	data, err := os.ReadFile(c.pendingPath)
	if err != nil {
		if os.IsNotExist(err) {
			return gateerr.New(gateerr.CodeInvalidInputValue, "no recovery has been initiated")
		}
		return fmt.Errorf("killswitch: read pending: %w", err)
	}
	var p pendingRecovery
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("killswitch: parse pending: %w", err)
	}

	if p.ConfirmationCode != code {
		return gateerr.New(gateerr.CodeInvalidSignature, "confirmation code does not match the pending recovery")
	}

	elapsed := c.clock().UTC().Sub(p.InitiatedAt)
	if elapsed < c.minDelay {
		return gateerr.New(gateerr.CodeInvalidInputValue,
			fmt.Sprintf("recovery may not be confirmed for another %s", (c.minDelay - elapsed).Round(time.Second)))
	}

	current, err := c.Load()
	if err != nil {
		return err
	}
	if current.computeHash() != p.BoundStateHash {
		return gateerr.New(gateerr.CodeInvalidInputValue, "kill-switch state changed since recovery was initiated; re-initiate")
	}

	if preflight != nil {
		if err := preflight(); err != nil {
			return fmt.Errorf("killswitch: recovery preflight failed: %w", err)
		}
	}

	if err := c.save(&State{Engaged: false}); err != nil {
		return err
	}
	_ = os.Remove(c.pendingPath)
	return nil
}

// deriveCode binds a confirmation code to the exact engaged state it was
// issued against: HKDF-SHA256 over a one-shot random nonce with the
// state hash as derivation context. A code issued for one engaged state
// cannot be replayed against a different one.
func deriveCode(nonce []byte, stateHash string) (string, error) {
	r := hkdf.New(sha256.New, nonce, []byte("gatekeeper-recovery-kdf"), []byte(stateHash))
	out := make([]byte, 16)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", err
	}
	return hex.EncodeToString(out), nil
}
