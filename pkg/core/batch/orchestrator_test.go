package batch_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filing_segmenter/pkg/core/batch"
	"filing_segmenter/pkg/core/filing"
	"filing_segmenter/pkg/core/pipeline"
	"filing_segmenter/pkg/core/segment"
)

// writeFiling drops a minimal processable 10-K container into dir and
// returns the worklist item for it.
func writeFiling(t *testing.T, dir string, n int) batch.Item {
	t.Helper()

	para := "<p>" + strings.Repeat("Risk factor disclosure paragraph with meaningful recurring language. ", 40) + "</p>"
	html := `<html><body><h2>Item 1A. Risk Factors</h2>` + para +
		`<h2>Item 1B. Unresolved Staff Comments</h2><p>` + strings.Repeat("Nothing unresolved remains outstanding at year end. ", 50) + `</p></body></html>`

	accession := fmt.Sprintf("0000123456-24-%06d", n)
	var b strings.Builder
	b.WriteString("ACCESSION NUMBER:\t" + accession + "\n")
	b.WriteString("CONFORMED SUBMISSION TYPE:\t10-K\n")
	b.WriteString("COMPANY CONFORMED NAME:\tExample Corp\n")
	b.WriteString("<DOCUMENT>\n<TYPE>10-K\n<SEQUENCE>1\n<FILENAME>form10k.htm\n<TEXT>\n")
	b.WriteString(html)
	b.WriteString("\n</TEXT>\n</DOCUMENT>\n")

	id := fmt.Sprintf("doc-%02d", n)
	path := filepath.Join(dir, id+".txt")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return batch.Item{ID: id, Path: path}
}

func newBatchPipeline(t *testing.T) *pipeline.DocumentPipeline {
	t.Helper()
	p, err := pipeline.New(pipeline.Options{
		Sections: []filing.SectionID{filing.ItemRiskFactors},
		Limits:   segment.Limits{FloorWords: 20, CeilingWords: 360, MinSegments: 3},
	}, nil)
	require.NoError(t, err)
	return p
}

func newOrchestrator(t *testing.T, outDir string, state *batch.RunState) *batch.Orchestrator {
	t.Helper()
	return batch.NewOrchestrator(batch.Options{
		Workers:         3,
		MaxAttempts:     2,
		DocumentTimeout: 30 * time.Second,
		RetryBackoff:    time.Millisecond,
		OutputDir:       outDir,
	}, newBatchPipeline(t), state)
}

func TestOrchestratorProcessesCorpus(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")

	var items []batch.Item
	for i := 1; i <= 5; i++ {
		items = append(items, writeFiling(t, dir, i))
	}

	state, err := batch.LoadOrCreateState(filepath.Join(outDir, "state.json"))
	require.NoError(t, err)

	sum, err := newOrchestrator(t, outDir, state).Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Succeeded)
	assert.Zero(t, sum.Failed)
	assert.Zero(t, sum.DeadLettered)

	// One output file per (document, found section), named by accession.
	matches, err := filepath.Glob(filepath.Join(outDir, "*_item1A.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 5)
}

func TestOrchestratorResumeSkipsCompleted(t *testing.T) {
	// 10 documents, 6 already recorded as succeeded with matching content
	// hashes. The resumed run must process exactly the remaining 4 and must
	// not rewrite the completed ones.
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	statePath := filepath.Join(outDir, "state.json")

	var items []batch.Item
	for i := 1; i <= 10; i++ {
		items = append(items, writeFiling(t, dir, i))
	}

	prior, err := batch.LoadOrCreateState(statePath)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		data, err := os.ReadFile(items[i].Path)
		require.NoError(t, err)
		sum := sha256.Sum256(data)
		hash := hex.EncodeToString(sum[:])
		require.NoError(t, prior.MarkProcessing(items[i].ID, hash))
		require.NoError(t, prior.MarkSucceeded(items[i].ID, "", i+1))
	}

	state, err := batch.LoadOrCreateState(statePath)
	require.NoError(t, err)
	require.Equal(t, 6, state.NextIndex)

	sum, err := newOrchestrator(t, outDir, state).Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 6, sum.Skipped)
	assert.Equal(t, 10, sum.Succeeded, "all ten are terminal after the resumed run")
	assert.Zero(t, sum.DeadLettered)

	// Outputs exist only for the four actually processed this run.
	matches, err := filepath.Glob(filepath.Join(outDir, "*_item1A.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 4)
}

func TestOrchestratorDeadLettersBadInput(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")

	good := writeFiling(t, dir, 1)
	badPath := filepath.Join(dir, "broken.txt")
	require.NoError(t, os.WriteFile(badPath, []byte("not a container at all"), 0o644))
	items := []batch.Item{good, {ID: "broken", Path: badPath}}

	state, err := batch.LoadOrCreateState(filepath.Join(outDir, "state.json"))
	require.NoError(t, err)

	// A bad document must not abort the batch.
	sum, err := newOrchestrator(t, outDir, state).Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 1, sum.DeadLettered)

	s2, err := batch.LoadOrCreateState(filepath.Join(outDir, "state.json"))
	require.NoError(t, err)
	require.Len(t, s2.DeadLetters, 1)
	assert.Equal(t, "broken", s2.DeadLetters[0].InputID)
	assert.Equal(t, 2, s2.DeadLetters[0].AttemptCount, "retries exhausted before dead-lettering")
}

func TestOrchestratorMissingFileDeadLettersImmediately(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	items := []batch.Item{{ID: "ghost", Path: filepath.Join(dir, "missing.txt")}}

	state, err := batch.LoadOrCreateState(filepath.Join(outDir, "state.json"))
	require.NoError(t, err)

	sum, err := newOrchestrator(t, outDir, state).Run(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.DeadLettered)
}

func TestOrchestratorCanceledContextStopsRun(t *testing.T) {
	dir := t.TempDir()
	items := []batch.Item{writeFiling(t, dir, 1)}

	state, err := batch.LoadOrCreateState(filepath.Join(dir, "state.json"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newOrchestrator(t, dir, state).Run(ctx, items)
	require.Error(t, err)
}
