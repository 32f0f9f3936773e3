package workspace_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
	"github.com/Mindburn-Labs/gatekeeper/pkg/workspace"
)

func TestLock_SameRootTwiceIsNoop(t *testing.T) {
	dir := t.TempDir()
	r := workspace.New("gatekeeper")
	root1, err := r.Lock(dir)
	require.NoError(t, err)
	root2, err := r.Lock(dir)
	require.NoError(t, err)
	assert.Equal(t, root1, root2)
}

func TestLock_DifferentRootIsInvariantViolation(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	r := workspace.New("gatekeeper")
	_, err := r.Lock(dir1)
	require.NoError(t, err)

	_, err = r.Lock(dir2)
	require.Error(t, err)
	var iv *gateerr.InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, workspace.InvRootLockedOnce, iv.InvariantID)
}

func TestResolveRead_RejectsDotDotTraversal(t *testing.T) {
	dir := t.TempDir()
	r := workspace.New("gatekeeper")
	_, err := r.Lock(dir)
	require.NoError(t, err)

	_, err = r.ResolveRead("../outside.txt")
	require.Error(t, err)
	var ge *gateerr.GateError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, gateerr.CodePathTraversal, ge.ErrorCode)
}

func TestResolveRead_RejectsAbsoluteEscape(t *testing.T) {
	dir := t.TempDir()
	r := workspace.New("gatekeeper")
	_, err := r.Lock(dir)
	require.NoError(t, err)

	outside := t.TempDir()
	_, err = r.ResolveRead(filepath.Join(outside, "x.txt"))
	require.Error(t, err)
	var ge *gateerr.GateError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, gateerr.CodePathOutOfWorkspace, ge.ErrorCode)
}

func TestResolveRead_BeforeLockIsInvariantViolation(t *testing.T) {
	r := workspace.New("gatekeeper")
	_, err := r.ResolveRead("foo.txt")
	require.Error(t, err)
	var iv *gateerr.InvariantViolation
	require.ErrorAs(t, err, &iv)
}

// TestResolveRead_AlwaysContained is the path-containment property: every
// relative path without a ".." segment resolves to an absolute path
// prefixed by the locked root.
func TestResolveRead_AlwaysContained(t *testing.T) {
	dir := t.TempDir()
	r := workspace.New("gatekeeper")
	root, err := r.Lock(dir)
	require.NoError(t, err)

	segGen := gen.RegexMatch(`[a-zA-Z0-9_]{1,12}`)
	pathGen := gen.SliceOfN(3, segGen).Map(func(segs []string) string {
		return strings.Join(segs, "/")
	})

	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("resolved path is contained in the locked root", prop.ForAll(
		func(relPath string) bool {
			resolved, err := r.ResolveRead(relPath)
			if err != nil {
				return false
			}
			return resolved == root || strings.HasPrefix(resolved, root+string(filepath.Separator))
		},
		pathGen,
	))

	properties.TestingRun(t)
}

func TestLogicalPathAccessors_AreUnderRootOrNamespaceDir(t *testing.T) {
	dir := t.TempDir()
	r := workspace.New("gatekeeper")
	root, err := r.Lock(dir)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(r.PlansDir(), root))
	assert.True(t, strings.HasPrefix(r.AuditLogPath(), root))
	assert.True(t, strings.HasPrefix(r.NamespaceDir(), root))
	assert.Equal(t, filepath.Join(r.NamespaceDir(), "governance.json"), r.GovernanceFilePath())
	assert.Equal(t, filepath.Join(r.NamespaceDir(), "kill-switch.json"), r.KillSwitchFilePath())
	assert.Equal(t, filepath.Join(r.NamespaceDir(), "sessions", "abc.lock"), r.SessionLockPath("abc"))
}

func TestResolveWrite_SymlinkEscapeRejected(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "escape")))

	r := workspace.New("gatekeeper")
	_, err := r.Lock(dir)
	require.NoError(t, err)

	_, err = r.ResolveWrite(filepath.Join("escape", "x.txt"))
	require.Error(t, err)
	var ge *gateerr.GateError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, gateerr.CodePathOutOfWorkspace, ge.ErrorCode)
}
