package observer

import (
	"context"
	"sync"
	"time"
)

// Progress is the aggregate state of the current or last run.
type Progress struct {
	Running         bool      `json:"running"`
	Total           int       `json:"total"`
	Processed       int       `json:"processed"`
	Completed       int       `json:"completed"`
	Failed          int       `json:"failed"`
	EnrichmentFails int       `json:"enrichmentFailures"`
	CurrentItemID   string    `json:"currentItemId,omitempty"`
	CurrentFile     string    `json:"currentFile,omitempty"`
	Cancelled       bool      `json:"cancelled"`
	StartedAt       time.Time `json:"startedAt,omitempty"`
	FinishedAt      time.Time `json:"finishedAt,omitempty"`
}

// ProgressObserver folds run events into a Progress snapshot.
type ProgressObserver struct {
	mu       sync.RWMutex
	progress Progress
}

// NewProgressObserver creates a new progress observer
func NewProgressObserver() *ProgressObserver {
	return &ProgressObserver{}
}

// OnEvent updates the aggregate counters.
func (o *ProgressObserver) OnEvent(ctx context.Context, event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p := &o.progress
	switch event.Type {
	case RunStarted:
		*p = Progress{Running: true, Total: event.Total, StartedAt: event.Timestamp}
	case ItemProcessing:
		p.CurrentItemID = event.ItemID
		p.CurrentFile = event.Filename
	case ItemCompleted:
		p.Completed++
		p.Processed++
		o.clearCurrent(event.ItemID)
	case ItemFailed:
		p.Failed++
		p.Processed++
		o.clearCurrent(event.ItemID)
	case EnrichmentFailed:
		p.EnrichmentFails++
	case RunFinished:
		p.Running = false
		p.CurrentItemID = ""
		p.CurrentFile = ""
		p.FinishedAt = event.Timestamp
		if cancelled, ok := event.Metadata["cancelled"].(bool); ok {
			p.Cancelled = cancelled
		}
	}
}

func (o *ProgressObserver) clearCurrent(id string) {
	if o.progress.CurrentItemID == id {
		o.progress.CurrentItemID = ""
		o.progress.CurrentFile = ""
	}
}

// GetObserverName returns the observer name
func (o *ProgressObserver) GetObserverName() string {
	return "progress_observer"
}

// Snapshot returns a copy of the current progress.
func (o *ProgressObserver) Snapshot() Progress {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.progress
}
