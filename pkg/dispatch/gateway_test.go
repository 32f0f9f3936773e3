package dispatch_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/gatekeeper/pkg/dispatch"
	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
	"github.com/Mindburn-Labs/gatekeeper/pkg/killswitch"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_MutatingToolsRegisteredWhenNotEngaged(t *testing.T) {
	root := t.TempDir()
	gw := dispatch.New("gatekeeper", discardLogger())
	_, err := gw.Resolver.Lock(root)
	require.NoError(t, err)

	reg, err := gw.Registry(context.Background())
	require.NoError(t, err)

	for _, name := range []string{
		"begin_session", "read_prompt", "list_plans", "read_file", "lint_plan",
		"write_file", "bootstrap_create_foundation_plan",
		"read_audit_log", "replay_execution", "verify_workspace_integrity",
		"generate_attestation_bundle", "verify_attestation_bundle", "export_attestation_bundle",
		"initiate_recovery", "confirm_recovery",
	} {
		_, ok := reg.Lookup(name)
		assert.True(t, ok, "expected %s to be registered", name)
	}
}

func TestRegistry_MutatingToolsAbsentWhenKillSwitchEngagedAtBoot(t *testing.T) {
	root := t.TempDir()
	gw := dispatch.New("gatekeeper", discardLogger())
	_, err := gw.Resolver.Lock(root)
	require.NoError(t, err)

	ks := killswitch.New(gw.Resolver.KillSwitchFilePath(), gw.Resolver.RecoveryPendingFilePath(), 0)
	_, err = ks.Engage("boot-time integrity failure", "F-BOOT")
	require.NoError(t, err)
	gw.KillSwitch = ks

	reg, err := gw.Registry(context.Background())
	require.NoError(t, err)

	for _, name := range []string{"write_file", "bootstrap_create_foundation_plan", "generate_attestation_bundle", "export_attestation_bundle"} {
		_, ok := reg.Lookup(name)
		assert.False(t, ok, "expected %s to be absent while the kill switch is engaged at boot", name)
	}
	for _, name := range []string{"read_file", "list_plans", "read_audit_log", "initiate_recovery", "confirm_recovery"} {
		_, ok := reg.Lookup(name)
		assert.True(t, ok, "expected %s to remain registered while the kill switch is engaged", name)
	}
}

func TestWriteFile_MalformedArgumentsRejectedBySchema(t *testing.T) {
	root := t.TempDir()
	gw := dispatch.New("gatekeeper", discardLogger())

	reg, err := gw.Registry(context.Background())
	require.NoError(t, err)

	begin, ok := reg.Lookup("begin_session")
	require.True(t, ok)
	params, err := json.Marshal(map[string]any{"workspace_root": root})
	require.NoError(t, err)
	_, err = begin(params)
	require.NoError(t, err)

	write, ok := reg.Lookup("write_file")
	require.True(t, ok)
	bad, err := json.Marshal(map[string]any{"path": "src/a.txt", "plan_hash": "not-64-hex"})
	require.NoError(t, err)
	_, err = write(bad)
	require.Error(t, err)
	var ge *gateerr.GateError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, gateerr.CodeInvalidInputType, ge.ErrorCode)
}

func TestHandlerFunc_RoundTripsThroughJSONParams(t *testing.T) {
	root := t.TempDir()
	gw := dispatch.New("gatekeeper", discardLogger())

	params, err := json.Marshal(map[string]any{"workspace_root": root})
	require.NoError(t, err)

	reg, err := gw.Registry(context.Background())
	require.NoError(t, err)
	handler, ok := reg.Lookup("begin_session")
	require.True(t, ok)

	_, err = handler(params)
	require.NoError(t, err)
	assert.True(t, gw.Resolver.IsLocked())
}
