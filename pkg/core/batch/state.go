package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status of one worklist item.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProcessing   Status = "processing"
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
	StatusTimedOut     Status = "timed_out"
	StatusDeadLettered Status = "dead_lettered"
)

// ItemState is the durable record for one input document.
type ItemState struct {
	ContentHash string    `json:"content_hash"`
	OutputPath  string    `json:"output_path,omitempty"`
	Status      Status    `json:"status"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DeadLetter records a terminally-failed input for later investigation.
type DeadLetter struct {
	InputID       string    `json:"input_id"`
	FailureReason string    `json:"failure_reason"`
	AttemptCount  int       `json:"attempt_count"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// RunState is the file-backed, process-wide state of one corpus run. It is
// the only mutable resource shared across workers; every update is taken
// under the lock and persisted atomically before the call returns, so a
// crash mid-run loses at most one in-flight item's work.
type RunState struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	// NextIndex is the rolling checkpoint: every item before it is in a
	// terminal state.
	NextIndex   int                   `json:"next_index"`
	Items       map[string]*ItemState `json:"items"`
	DeadLetters []DeadLetter          `json:"dead_letters,omitempty"`

	path string
	mu   sync.Mutex
}

// LoadOrCreateState reads state from path if present, so interrupted runs
// resume where they stopped; otherwise it starts a fresh run.
func LoadOrCreateState(path string) (*RunState, error) {
	s := &RunState{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Items:     make(map[string]*ItemState),
		path:      path,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run state: %w", err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse run state %s: %w", path, err)
	}
	if s.Items == nil {
		s.Items = make(map[string]*ItemState)
	}
	s.path = path
	return s, nil
}

// Completed reports whether inputID already succeeded for the same content.
// A changed hash means the input was replaced and must be reprocessed.
func (s *RunState) Completed(inputID, contentHash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.Items[inputID]
	return ok && it.Status == StatusSucceeded && it.ContentHash == contentHash
}

// MarkProcessing records that a worker picked up inputID.
func (s *RunState) MarkProcessing(inputID, contentHash string) error {
	return s.update(inputID, func(it *ItemState) {
		it.ContentHash = contentHash
		it.Status = StatusProcessing
		it.Attempts++
	}, -1)
}

// MarkSucceeded records completion and advances the checkpoint.
func (s *RunState) MarkSucceeded(inputID, outputPath string, nextIndex int) error {
	return s.update(inputID, func(it *ItemState) {
		it.Status = StatusSucceeded
		it.OutputPath = outputPath
		it.LastError = ""
	}, nextIndex)
}

// MarkFailed records a non-terminal failure.
func (s *RunState) MarkFailed(inputID, reason string, timedOut bool) error {
	return s.update(inputID, func(it *ItemState) {
		if timedOut {
			it.Status = StatusTimedOut
		} else {
			it.Status = StatusFailed
		}
		it.LastError = reason
	}, -1)
}

// MarkDeadLettered moves inputID to the dead-letter list after retries are
// exhausted, and advances the checkpoint: the item is terminal.
func (s *RunState) MarkDeadLettered(inputID, reason string, nextIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it := s.item(inputID)
	it.Status = StatusDeadLettered
	it.LastError = reason
	it.UpdatedAt = time.Now().UTC()

	s.DeadLetters = append(s.DeadLetters, DeadLetter{
		InputID:       inputID,
		FailureReason: reason,
		AttemptCount:  it.Attempts,
		RecordedAt:    time.Now().UTC(),
	})
	if nextIndex > s.NextIndex {
		s.NextIndex = nextIndex
	}
	return s.saveLocked()
}

// Summary aggregates terminal counts for the run report.
type Summary struct {
	Total        int `json:"total"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"dead_lettered"`
	Skipped      int `json:"skipped"`
}

// Counts summarizes the current item states.
func (s *RunState) Counts() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out Summary
	out.Total = len(s.Items)
	for _, it := range s.Items {
		switch it.Status {
		case StatusSucceeded:
			out.Succeeded++
		case StatusFailed, StatusTimedOut:
			out.Failed++
		case StatusDeadLettered:
			out.DeadLettered++
		}
	}
	return out
}

func (s *RunState) update(inputID string, fn func(*ItemState), nextIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it := s.item(inputID)
	fn(it)
	it.UpdatedAt = time.Now().UTC()
	if nextIndex > s.NextIndex {
		s.NextIndex = nextIndex
	}
	return s.saveLocked()
}

func (s *RunState) item(inputID string) *ItemState {
	it, ok := s.Items[inputID]
	if !ok {
		it = &ItemState{Status: StatusPending}
		s.Items[inputID] = it
	}
	return it
}

// saveLocked persists the state atomically. Callers hold the lock.
func (s *RunState) saveLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}
	return WriteFileAtomic(s.path, data, 0o644)
}
