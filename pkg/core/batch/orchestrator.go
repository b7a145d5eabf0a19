// Package batch fans the document pipeline out over a corpus with a bounded
// worker pool, memory-aware admission control, checkpoint/resume and
// dead-letter retry.
package batch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"filing_segmenter/pkg/core/pipeline"
)

// Item is one worklist entry: a stable input identifier and the container
// path. Output naming derives from the identifier, never from completion
// order, so resumed runs are idempotent regardless of scheduling.
type Item struct {
	ID   string
	Path string
}

// Options tune the orchestrator.
type Options struct {
	Workers         int
	MaxAttempts     int
	DocumentTimeout time.Duration
	RetryBackoff    time.Duration

	// MemoryBudget and MemoryFraction drive admission control: an input
	// whose estimated in-memory footprint exceeds MemoryFraction of the
	// budget bypasses the pool and runs in the single-concurrency lane.
	MemoryBudget   int64
	MemoryFraction float64

	OutputDir string
}

// memoryExpansion estimates the in-memory blowup of a container during
// processing: decoded copy, flattened copy, parse tree and segments.
const memoryExpansion = 6

// Orchestrator coordinates one corpus run.
type Orchestrator struct {
	opts  Options
	pipe  *pipeline.DocumentPipeline
	state *RunState

	mu      sync.Mutex
	done    []bool
	skipped int
}

// NewOrchestrator wires a pipeline and a run state. The pipeline (and its
// embedded shared resources) must already be constructed; workers reuse it
// across documents.
func NewOrchestrator(opts Options, pipe *pipeline.DocumentPipeline, state *RunState) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.DocumentTimeout <= 0 {
		opts.DocumentTimeout = 5 * time.Minute
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 10 * time.Second
	}
	if opts.MemoryBudget <= 0 {
		opts.MemoryBudget = 4 << 30
	}
	if opts.MemoryFraction <= 0 || opts.MemoryFraction > 1 {
		opts.MemoryFraction = 0.25
	}
	return &Orchestrator{opts: opts, pipe: pipe, state: state}
}

// Run processes the worklist. Per-document failures never abort the batch;
// only context cancellation stops the run early.
func (o *Orchestrator) Run(ctx context.Context, items []Item) (Summary, error) {
	o.done = make([]bool, len(items))

	var pooled, isolated []int
	for i, it := range items {
		if o.oversized(it) {
			isolated = append(isolated, i)
		} else {
			pooled = append(pooled, i)
		}
	}

	fmt.Printf("Batch run %s: %d documents (%d pooled, %d isolated), %d workers\n",
		o.state.RunID, len(items), len(pooled), len(isolated), o.opts.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for _, idx := range pooled {
		g.Go(func() error {
			return o.processItem(gctx, items, idx, false)
		})
	}
	if err := g.Wait(); err != nil {
		return o.summary(), err
	}

	// Oversized documents run one at a time so a handful of outliers cannot
	// exhaust memory for the whole pool.
	for _, idx := range isolated {
		if err := ctx.Err(); err != nil {
			return o.summary(), err
		}
		if err := o.processItem(ctx, items, idx, true); err != nil {
			return o.summary(), err
		}
	}

	sum := o.summary()
	fmt.Printf("Batch run %s complete: %d succeeded, %d failed, %d dead-lettered, %d skipped\n",
		o.state.RunID, sum.Succeeded, sum.Failed, sum.DeadLettered, sum.Skipped)
	return sum, nil
}

// processItem runs the retry loop for one document. All failures are
// recorded in the run state; the returned error is non-nil only for context
// cancellation.
func (o *Orchestrator) processItem(ctx context.Context, items []Item, idx int, isolated bool) error {
	item := items[idx]

	hash, err := hashFile(item.Path)
	if err != nil {
		o.terminal(items, idx, fmt.Sprintf("hash input: %v", err))
		return nil
	}

	if o.state.Completed(item.ID, hash) {
		fmt.Printf("Skipping %s (already processed)\n", item.ID)
		o.markDone(items, idx)
		o.mu.Lock()
		o.skipped++
		o.mu.Unlock()
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.state.MarkProcessing(item.ID, hash); err != nil {
			fmt.Printf("Warning: checkpoint write failed for %s: %v\n", item.ID, err)
		}

		timeout := o.opts.DocumentTimeout
		if isolated {
			// Big documents earn a proportionally larger budget on retry.
			timeout *= time.Duration(attempt)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		res, perr := o.pipe.ProcessFile(attemptCtx, item.ID, item.Path)
		cancel()

		if perr == nil {
			perr = pipeline.Validate(res)
		}
		if perr == nil {
			outPath, werr := o.writeOutputs(res)
			if werr == nil {
				o.markDone(items, idx)
				if err := o.state.MarkSucceeded(item.ID, outPath, o.checkpoint()); err != nil {
					fmt.Printf("Warning: checkpoint write failed for %s: %v\n", item.ID, err)
				}
				return nil
			}
			perr = werr
		}

		lastErr = perr
		timedOut := errors.Is(perr, context.DeadlineExceeded)
		if err := o.state.MarkFailed(item.ID, perr.Error(), timedOut); err != nil {
			fmt.Printf("Warning: checkpoint write failed for %s: %v\n", item.ID, err)
		}
		fmt.Printf("Attempt %d/%d failed for %s: %v\n", attempt, o.opts.MaxAttempts, item.ID, perr)

		if attempt < o.opts.MaxAttempts {
			backoff := o.opts.RetryBackoff * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	o.terminal(items, idx, lastErr.Error())
	return nil
}

// writeOutputs persists one JSON segment file per found section, named by
// the document-stable accession and section id.
func (o *Orchestrator) writeOutputs(res *pipeline.DocumentResult) (string, error) {
	base := strings.ReplaceAll(res.Accession, "-", "")
	var first string

	for _, sec := range res.Sections {
		if !sec.Found {
			continue
		}
		path := filepath.Join(o.opts.OutputDir, fmt.Sprintf("%s_item%s.json", base, sec.SectionID))
		data, err := json.MarshalIndent(sec.Segments, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal segments: %w", err)
		}
		if err := WriteFileAtomic(path, data, 0o644); err != nil {
			return "", err
		}
		if first == "" {
			first = path
		}
	}
	return first, nil
}

// oversized applies the admission-control threshold to the input size.
func (o *Orchestrator) oversized(item Item) bool {
	info, err := os.Stat(item.Path)
	if err != nil {
		return false
	}
	estimated := info.Size() * memoryExpansion
	limit := int64(float64(o.opts.MemoryBudget) * o.opts.MemoryFraction)
	return estimated > limit
}

func (o *Orchestrator) terminal(items []Item, idx int, reason string) {
	o.markDone(items, idx)
	if err := o.state.MarkDeadLettered(items[idx].ID, reason, o.checkpoint()); err != nil {
		fmt.Printf("Warning: dead-letter write failed for %s: %v\n", items[idx].ID, err)
	}
	fmt.Printf("Dead-lettered %s: %s\n", items[idx].ID, reason)
}

func (o *Orchestrator) markDone(items []Item, idx int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.done[idx] = true
}

// checkpoint computes the rolling next-unprocessed index: everything before
// it is terminal.
func (o *Orchestrator) checkpoint() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	next := 0
	for next < len(o.done) && o.done[next] {
		next++
	}
	return next
}

func (o *Orchestrator) summary() Summary {
	sum := o.state.Counts()
	o.mu.Lock()
	sum.Skipped = o.skipped
	o.mu.Unlock()
	return sum
}

// hashFile streams the input through sha256 so identity checks never load
// the container into memory.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
