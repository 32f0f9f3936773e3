package auditlog_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/gatekeeper/pkg/auditlog"
	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
)

func newTestLog(t *testing.T) *auditlog.Log {
	t.Helper()
	dir := t.TempDir()
	locker := auditlog.NewDirLocker(filepath.Join(dir, "audit.lock"))
	return auditlog.New(filepath.Join(dir, "audit-log.jsonl"), locker, 0)
}

func TestAppend_FirstEntryChainsFromGenesis(t *testing.T) {
	log := newTestLog(t)
	e, err := log.Append(context.Background(), auditlog.Draft{
		SessionID: "s1", OperatorID: "op1", Role: "EXECUTOR", Tool: "write_file",
		ArgsHash: "abc", Result: auditlog.ResultOK,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Seq)
	assert.Equal(t, auditlog.Genesis, e.PrevHash)
	assert.NotEmpty(t, e.EntryHash)
}

func TestAppend_SeqAndPrevHashChainAcrossEntries(t *testing.T) {
	log := newTestLog(t)
	var prev *auditlog.Entry
	for i := 0; i < 5; i++ {
		e, err := log.Append(context.Background(), auditlog.Draft{
			SessionID: "s1", Role: "EXECUTOR", Tool: "write_file", ArgsHash: "x", Result: auditlog.ResultOK,
		})
		require.NoError(t, err)
		if prev != nil {
			assert.Equal(t, prev.Seq+1, e.Seq)
			assert.Equal(t, prev.EntryHash, e.PrevHash)
		}
		prev = e
	}

	entries, err := log.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 5)
	require.NoError(t, auditlog.VerifyChain(entries))
}

func TestAppend_ConcurrentWritersProduceUnbrokenChain(t *testing.T) {
	log := newTestLog(t)
	const writers = 4
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := log.Append(context.Background(), auditlog.Draft{
					SessionID: "s1", Role: "EXECUTOR", Tool: "write_file", ArgsHash: "x", Result: auditlog.ResultOK,
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	entries, err := log.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, writers*perWriter)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
	}
	assert.NoError(t, auditlog.VerifyChain(entries))
}

func TestReadAll_TamperedLineRaisesInvariantViolation(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit-log.jsonl")
	locker := auditlog.NewDirLocker(filepath.Join(dir, "audit.lock"))
	log := auditlog.New(logPath, locker, 0)

	_, err := log.Append(context.Background(), auditlog.Draft{
		SessionID: "s1", Role: "EXECUTOR", Tool: "write_file", ArgsHash: "x", Result: auditlog.ResultOK,
	})
	require.NoError(t, err)
	_, err = log.Append(context.Background(), auditlog.Draft{
		SessionID: "s1", Role: "EXECUTOR", Tool: "write_file", ArgsHash: "y", Result: auditlog.ResultOK,
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	tampered := []byte(`{"seq":1,"prev_hash":"GENESIS","entry_hash":"deadbeef"}` + "\n")
	lines := splitLines(raw)
	lines[0] = tampered[:len(tampered)-1]
	rejoined := joinLines(lines)
	require.NoError(t, os.WriteFile(logPath, rejoined, 0o644))

	_, err = log.ReadAll()
	require.Error(t, err)
	var iv *gateerr.InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, auditlog.InvAuditChain, iv.InvariantID)
}

func splitLines(b []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, c := range b {
		if c == '\n' {
			out = append(out, b[start:i])
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, b[start:])
	}
	return out
}

func joinLines(lines [][]byte) []byte {
	var out []byte
	for _, l := range lines {
		out = append(out, l...)
		out = append(out, '\n')
	}
	return out
}
