package jobs

import (
	"fmt"
	"sync"

	"batch-transcriber/internal/domain"
)

// Update is one applied item transition together with the run counter.
type Update struct {
	RunID     string          `json:"runId"`
	Item      domain.WorkItem `json:"item"`
	Completed int             `json:"completed"`
	Total     int             `json:"total"`
}

// Tracker holds the state of every work item in one run.
type Tracker struct {
	mu              sync.RWMutex
	runID           string
	items           []domain.WorkItem
	index           map[string]int
	completed       int
	cancelRequested bool
}

// NewTracker starts every item in Queued.
func NewTracker(runID string, items []domain.WorkItem) *Tracker {
	t := &Tracker{
		runID: runID,
		items: make([]domain.WorkItem, len(items)),
		index: make(map[string]int, len(items)),
	}
	for i, item := range items {
		item.Status = domain.StatusQueued
		item.Detail = ""
		t.items[i] = item
		t.index[item.ID] = i
	}
	return t
}

// RunID identifies the run.
func (t *Tracker) RunID() string {
	return t.runID
}

// Transition validates and applies one item state change. Once a stop was
// requested an Error outcome is recorded as Canceled.
func (t *Tracker) Transition(itemID string, status domain.ItemStatus, detail string) (Update, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[itemID]
	if !ok {
		return Update{}, fmt.Errorf("unknown work item %q", itemID)
	}
	item := &t.items[i]

	if status == domain.StatusError && t.cancelRequested {
		status = domain.StatusCanceled
	}
	if status != item.Status {
		if !isValidTransition(item.Status, status) {
			return Update{}, fmt.Errorf("invalid transition for %s: %s -> %s", itemID, item.Status, status)
		}
		if status.Terminal() {
			t.completed++
		}
		item.Status = status
	}
	item.Detail = detail

	return Update{RunID: t.runID, Item: *item, Completed: t.completed, Total: len(t.items)}, nil
}

// RequestCancel records a stop request.
func (t *Tracker) RequestCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelRequested = true
}

// CancelRequested reports whether a stop was requested.
func (t *Tracker) CancelRequested() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancelRequested
}

// Progress returns the completed and total item counts.
func (t *Tracker) Progress() (completed, total int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.completed, len(t.items)
}

// Items returns a snapshot of every item in discovery order.
func (t *Tracker) Items() []domain.WorkItem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.WorkItem, len(t.items))
	copy(out, t.items)
	return out
}

// Finished reports whether every item reached a terminal status.
func (t *Tracker) Finished() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.completed == len(t.items)
}

// isValidTransition enforces the allowed item state machine edges.
func isValidTransition(from, to domain.ItemStatus) bool {
	if to == domain.StatusError || to == domain.StatusCanceled {
		return !from.Terminal()
	}
	switch from {
	case domain.StatusQueued:
		return to == domain.StatusPreprocessing || to == domain.StatusDone
	case domain.StatusPreprocessing:
		return to == domain.StatusTranscribing
	case domain.StatusTranscribing:
		return to == domain.StatusDiarizing || to == domain.StatusSaving
	case domain.StatusDiarizing:
		return to == domain.StatusSaving
	case domain.StatusSaving:
		return to == domain.StatusDone
	default:
		return false
	}
}
