package batch_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filing_segmenter/pkg/core/batch"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	require.NoError(t, batch.WriteFileAtomic(path, []byte(`{"a":1}`), 0o644))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	// Overwrite replaces content and leaves no temp files behind.
	require.NoError(t, batch.WriteFileAtomic(path, []byte(`{"a":2}`), 0o644))
	data, _ = os.ReadFile(path)
	assert.Equal(t, `{"a":2}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files left behind")
}

func TestRunStateLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := batch.LoadOrCreateState(path)
	require.NoError(t, err)
	assert.NotEmpty(t, s.RunID)

	require.NoError(t, s.MarkProcessing("doc-1", "hash-1"))
	require.NoError(t, s.MarkSucceeded("doc-1", "/out/doc-1.json", 1))
	require.NoError(t, s.MarkProcessing("doc-2", "hash-2"))
	require.NoError(t, s.MarkFailed("doc-2", "parse exploded", false))

	assert.True(t, s.Completed("doc-1", "hash-1"))
	assert.False(t, s.Completed("doc-1", "hash-changed"), "changed content must reprocess")
	assert.False(t, s.Completed("doc-2", "hash-2"))

	sum := s.Counts()
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
}

func TestRunStateResumesFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s1, err := batch.LoadOrCreateState(path)
	require.NoError(t, err)
	require.NoError(t, s1.MarkProcessing("doc-1", "h1"))
	require.NoError(t, s1.MarkSucceeded("doc-1", "/out/1.json", 1))
	require.NoError(t, s1.MarkProcessing("doc-2", "h2"))
	require.NoError(t, s1.MarkDeadLettered("doc-2", "gave up", 2))

	// A new process loads the same file and sees the same facts.
	s2, err := batch.LoadOrCreateState(path)
	require.NoError(t, err)
	assert.Equal(t, s1.RunID, s2.RunID, "run id must survive restarts")
	assert.Equal(t, 2, s2.NextIndex)
	assert.True(t, s2.Completed("doc-1", "h1"))

	require.Len(t, s2.DeadLetters, 1)
	assert.Equal(t, "doc-2", s2.DeadLetters[0].InputID)
	assert.Equal(t, "gave up", s2.DeadLetters[0].FailureReason)
	assert.Equal(t, 1, s2.DeadLetters[0].AttemptCount)
}

func TestRunStateCheckpointNeverRegresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := batch.LoadOrCreateState(path)
	require.NoError(t, err)

	require.NoError(t, s.MarkSucceeded("doc-3", "", 3))
	require.NoError(t, s.MarkSucceeded("doc-1", "", 1))
	assert.Equal(t, 3, s.NextIndex, "an out-of-order completion must not move the checkpoint backwards")
}

func TestRunStateAttemptsAccumulate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := batch.LoadOrCreateState(path)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.MarkProcessing("doc-1", "h"))
		require.NoError(t, s.MarkFailed("doc-1", "timeout", true))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk struct {
		Items map[string]struct {
			Attempts int    `json:"attempts"`
			Status   string `json:"status"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, 3, onDisk.Items["doc-1"].Attempts)
	assert.Equal(t, "timed_out", onDisk.Items["doc-1"].Status)
}
