package killswitch_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
	"github.com/Mindburn-Labs/gatekeeper/pkg/killswitch"
)

func newTestController(t *testing.T, minDelay time.Duration) (*killswitch.Controller, *time.Time) {
	t.Helper()
	dir := t.TempDir()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := killswitch.New(filepath.Join(dir, "kill-switch.json"), filepath.Join(dir, "recovery-pending.json"), minDelay)
	c.WithClock(func() time.Time { return now })
	return c, &now
}

func TestEngage_LatchesState(t *testing.T) {
	c, _ := newTestController(t, 0)
	s, err := c.Engage("post-write verification failed", "F-VERIFY")
	require.NoError(t, err)
	assert.True(t, s.Engaged)

	engaged, err := c.IsEngaged()
	require.NoError(t, err)
	assert.True(t, engaged)
}

func TestEngage_AlreadyEngagedPreservesOriginalReason(t *testing.T) {
	c, _ := newTestController(t, 0)
	_, err := c.Engage("first reason", "F-FIRST")
	require.NoError(t, err)

	s, err := c.Engage("second reason", "F-SECOND")
	require.NoError(t, err)
	assert.Equal(t, "first reason", s.Reason)
	assert.Equal(t, "F-FIRST", s.InvariantID)
}

func TestRecovery_FullTwoStepFlow(t *testing.T) {
	c, now := newTestController(t, 10*time.Minute)
	_, err := c.Engage("reason", "F-X")
	require.NoError(t, err)

	code, err := c.InitiateRecovery("owner-1")
	require.NoError(t, err)
	require.NotEmpty(t, code)

	// Too early: elapsed delay not yet satisfied.
	err = c.ConfirmRecovery("owner-1", code, nil)
	require.Error(t, err)

	*now = now.Add(10 * time.Minute)
	preflightCalled := false
	err = c.ConfirmRecovery("owner-1", code, func() error {
		preflightCalled = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, preflightCalled)

	engaged, err := c.IsEngaged()
	require.NoError(t, err)
	assert.False(t, engaged)
}

func TestConfirmRecovery_WrongCodeRejected(t *testing.T) {
	c, now := newTestController(t, time.Minute)
	_, err := c.Engage("reason", "F-X")
	require.NoError(t, err)
	_, err = c.InitiateRecovery("owner-1")
	require.NoError(t, err)

	*now = now.Add(time.Minute)
	err = c.ConfirmRecovery("owner-1", "wrong-code", nil)
	require.Error(t, err)
	var ge *gateerr.GateError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, gateerr.CodeInvalidSignature, ge.ErrorCode)
}

func TestConfirmRecovery_PreflightFailureLeavesSwitchEngaged(t *testing.T) {
	c, now := newTestController(t, time.Minute)
	_, err := c.Engage("reason", "F-X")
	require.NoError(t, err)
	code, err := c.InitiateRecovery("owner-1")
	require.NoError(t, err)

	*now = now.Add(time.Minute)
	err = c.ConfirmRecovery("owner-1", code, func() error {
		return assert.AnError
	})
	require.Error(t, err)

	engaged, err := c.IsEngaged()
	require.NoError(t, err)
	assert.True(t, engaged, "preflight failure must not clear the kill switch")

	// The same confirmation code should still work once the underlying
	// issue is resolved.
	err = c.ConfirmRecovery("owner-1", code, func() error { return nil })
	require.NoError(t, err)
}

func TestConfirmRecovery_CodeNotReusableAfterSuccessfulRecovery(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	statePath := filepath.Join(dir, "kill-switch.json")
	pendingPath := filepath.Join(dir, "recovery-pending.json")

	c := killswitch.New(statePath, pendingPath, time.Minute)
	c.WithClock(func() time.Time { return now })
	_, err := c.Engage("original reason", "F-X")
	require.NoError(t, err)
	code, err := c.InitiateRecovery("owner-1")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	require.NoError(t, c.ConfirmRecovery("owner-1", code, nil))

	// A fresh fatal condition re-engages the switch; the old confirmation
	// code must not still satisfy a new recovery attempt.
	_, err = c.Engage("a new, unrelated failure", "F-Y")
	require.NoError(t, err)
	err = c.ConfirmRecovery("owner-1", code, nil)
	require.Error(t, err)
}
