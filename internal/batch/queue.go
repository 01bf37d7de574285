// Package batch holds the image queue and drives it through analysis,
// asset upload and search indexing.
package batch

import (
	"sync"
	"time"

	apperrors "go-image-tagger/internal/errors"
	"go-image-tagger/internal/fields"
	"go-image-tagger/internal/preview"

	"github.com/google/uuid"
)

// Status is the processing state of a queued image.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Item is one queued image.
type Item struct {
	ID        string         `json:"id"`
	Filename  string         `json:"filename"`
	MediaType string         `json:"mediaType"`
	Size      int            `json:"size"`
	Data      []byte         `json:"-"`
	Preview   preview.Handle `json:"-"`
	Status    Status         `json:"status"`
	Result    fields.Result  `json:"result,omitempty"`
	AssetURL  string         `json:"assetUrl,omitempty"`
	AssetPath string         `json:"assetPath,omitempty"`
	IndexID   string         `json:"indexId,omitempty"`
	Error     string         `json:"error,omitempty"`
	AddedAt   time.Time      `json:"addedAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Counts tallies items by status.
type Counts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Complete   int `json:"complete"`
	Error      int `json:"error"`
}

// PreviewReleaser frees preview handles.
type PreviewReleaser interface {
	Release(h preview.Handle)
}

// Queue is the ordered collection of images. Items keep their enqueue order.
type Queue struct {
	mu       sync.RWMutex
	items    []*Item
	byID     map[string]*Item
	previews PreviewReleaser
	now      func() time.Time
}

// NewQueue creates an empty queue. previews may be nil.
func NewQueue(previews PreviewReleaser) *Queue {
	return &Queue{
		byID:     make(map[string]*Item),
		previews: previews,
		now:      time.Now,
	}
}

// Add enqueues an image as pending and returns a copy of the new item.
func (q *Queue) Add(filename string, data []byte, mediaType string, handle preview.Handle) Item {
	now := q.now()
	item := &Item{
		ID:        uuid.NewString(),
		Filename:  filename,
		MediaType: mediaType,
		Size:      len(data),
		Data:      data,
		Preview:   handle,
		Status:    StatusPending,
		AddedAt:   now,
		UpdatedAt: now,
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	q.byID[item.ID] = item
	q.mu.Unlock()

	return item.copy()
}

// Get returns a copy of the item.
func (q *Queue) Get(id string) (Item, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	item, ok := q.byID[id]
	if !ok {
		return Item{}, false
	}
	return item.copy(), true
}

// Remove deletes the item and releases its preview.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	item, ok := q.byID[id]
	if !ok {
		q.mu.Unlock()
		return apperrors.NewNotFoundError("image not found", nil)
	}
	delete(q.byID, id)
	for i, it := range q.items {
		if it.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	q.release(item.Preview)
	return nil
}

// Clear empties the queue, releasing every preview. It returns how many
// items were removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.byID = make(map[string]*Item)
	q.mu.Unlock()

	for _, item := range items {
		q.release(item.Preview)
	}
	return len(items)
}

// RetryFailed moves every errored item back to pending.
func (q *Queue) RetryFailed() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	n := 0
	for _, item := range q.items {
		if item.Status != StatusError {
			continue
		}
		item.Status = StatusPending
		item.Error = ""
		item.UpdatedAt = now
		n++
	}
	return n
}

// Snapshot returns copies of all items in enqueue order.
func (q *Queue) Snapshot() []Item {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]Item, len(q.items))
	for i, item := range q.items {
		out[i] = item.copy()
	}
	return out
}

// PendingIDs lists pending items in enqueue order.
func (q *Queue) PendingIDs() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var ids []string
	for _, item := range q.items {
		if item.Status == StatusPending {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

// Counts tallies the queue by status.
func (q *Queue) Counts() Counts {
	q.mu.RLock()
	defer q.mu.RUnlock()
	c := Counts{Total: len(q.items)}
	for _, item := range q.items {
		switch item.Status {
		case StatusPending:
			c.Pending++
		case StatusProcessing:
			c.Processing++
		case StatusComplete:
			c.Complete++
		case StatusError:
			c.Error++
		}
	}
	return c
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// begin moves a pending item to processing. It reports false when the item
// was removed or is no longer pending.
func (q *Queue) begin(id string) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.byID[id]
	if !ok || item.Status != StatusPending {
		return Item{}, false
	}
	item.Status = StatusProcessing
	item.UpdatedAt = q.now()
	return item.copy(), true
}

func (q *Queue) complete(id string, result fields.Result, assetURL, assetPath, indexID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.byID[id]
	if !ok {
		return
	}
	item.Status = StatusComplete
	item.Result = result
	item.AssetURL = assetURL
	item.AssetPath = assetPath
	item.IndexID = indexID
	item.Error = ""
	item.UpdatedAt = q.now()
}

func (q *Queue) fail(id, message string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.byID[id]
	if !ok {
		return
	}
	item.Status = StatusError
	item.Result = nil
	item.AssetURL = ""
	item.AssetPath = ""
	item.IndexID = ""
	item.Error = message
	item.UpdatedAt = q.now()
}

func (q *Queue) release(h preview.Handle) {
	if q.previews != nil && h != "" {
		q.previews.Release(h)
	}
}

// copy shares Data, which is never mutated after Add.
func (i *Item) copy() Item {
	c := *i
	if i.Result != nil {
		c.Result = i.Result.Clone()
	}
	return c
}
