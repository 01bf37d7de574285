package service

import (
	"context"
	"fmt"
	"sync"

	"go-image-tagger/internal/batch"
	apperrors "go-image-tagger/internal/errors"
	"go-image-tagger/internal/export"
	"go-image-tagger/internal/fields"
	"go-image-tagger/internal/logger"
	"go-image-tagger/internal/observer"
	"go-image-tagger/internal/preview"
	"go-image-tagger/internal/settings"
	"go-image-tagger/internal/storage"
	"go-image-tagger/pkg/validation"

	"github.com/sirupsen/logrus"
)

// WorkspaceService is the single batch workspace: the image queue, the
// analysis settings and the run in progress.
type WorkspaceService interface {
	// Queue management
	AddImage(ctx context.Context, filename string, data []byte) (batch.Item, error)
	AddImageFromURL(ctx context.Context, imageURL string) (batch.Item, error)
	Remove(id string) error
	Clear() (int, error)
	RetryFailed() (int, error)
	Items() []batch.Item
	Item(id string) (batch.Item, error)
	Preview(id string) (preview.Preview, error)
	Counts() batch.Counts

	// Settings
	Catalog() fields.Catalog
	Settings() settings.Settings
	UpdateSettings(s settings.Settings) (settings.Settings, error)
	SetProvider(kind settings.ProviderKind) (settings.Settings, error)
	ToggleField(name string) (settings.Settings, error)
	EnableAllFields() (settings.Settings, error)
	ResetFields() (settings.Settings, error)
	SetInstruction(name, text string) (settings.Settings, error)

	// Run control
	Start() (int, error)
	Stop() bool
	Wait() batch.Summary
	Running() bool
	Progress() observer.Progress
	Subscribe() (<-chan observer.Event, func())

	// Export
	Export(format export.Format) ([]byte, error)
}

// Dependencies are the collaborators of the workspace.
type Dependencies struct {
	Catalog      fields.Catalog
	Settings     settings.Settings
	Queue        *batch.Queue
	Previews     *preview.Registry
	Orchestrator *batch.Orchestrator
	Fetcher      storage.ImageFetcher
	Images       *validation.ImageValidator
	URLs         *validation.URLValidator
	Progress     *observer.ProgressObserver
	Stream       *observer.StreamObserver
}

type workspaceService struct {
	deps Dependencies

	mu       sync.Mutex
	settings settings.Settings
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	last     batch.Summary
}

// NewWorkspaceService creates the workspace.
func NewWorkspaceService(deps Dependencies) WorkspaceService {
	return &workspaceService{
		deps:     deps,
		settings: deps.Settings.Clone(),
	}
}

// AddImage validates the payload, creates its preview and enqueues it as
// pending. Images added during a run wait for the next one.
func (s *workspaceService) AddImage(ctx context.Context, filename string, data []byte) (batch.Item, error) {
	payload, err := s.deps.Images.Validate(data)
	if err != nil {
		return batch.Item{}, err
	}
	if filename == "" {
		filename = "image" + payload.Extension
	}

	handle, err := s.deps.Previews.Create(data, payload.MediaType)
	if err != nil {
		return batch.Item{}, apperrors.NewInternalError("failed to create preview", err)
	}

	item := s.deps.Queue.Add(filename, data, payload.MediaType, handle)
	logger.WithFields(logrus.Fields{
		"item_id":    item.ID,
		"filename":   item.Filename,
		"media_type": item.MediaType,
		"size":       item.Size,
	}).Info("Image queued")
	return item, nil
}

// AddImageFromURL downloads the image and enqueues it.
func (s *workspaceService) AddImageFromURL(ctx context.Context, imageURL string) (batch.Item, error) {
	if err := s.deps.URLs.ValidateImageURL(imageURL); err != nil {
		return batch.Item{}, err
	}
	img, err := s.deps.Fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return batch.Item{}, err
	}
	return s.AddImage(ctx, img.Filename, img.Data)
}

func (s *workspaceService) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rejectWhileRunning("remove images"); err != nil {
		return err
	}
	return s.deps.Queue.Remove(id)
}

func (s *workspaceService) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rejectWhileRunning("clear the queue"); err != nil {
		return 0, err
	}
	return s.deps.Queue.Clear(), nil
}

func (s *workspaceService) RetryFailed() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rejectWhileRunning("retry images"); err != nil {
		return 0, err
	}
	return s.deps.Queue.RetryFailed(), nil
}

func (s *workspaceService) Items() []batch.Item {
	return s.deps.Queue.Snapshot()
}

func (s *workspaceService) Item(id string) (batch.Item, error) {
	item, ok := s.deps.Queue.Get(id)
	if !ok {
		return batch.Item{}, apperrors.NewNotFoundError("image not found", nil)
	}
	return item, nil
}

func (s *workspaceService) Preview(id string) (preview.Preview, error) {
	item, err := s.Item(id)
	if err != nil {
		return preview.Preview{}, err
	}
	p, ok := s.deps.Previews.Get(item.Preview)
	if !ok {
		return preview.Preview{}, apperrors.NewNotFoundError("preview not available", nil)
	}
	return p, nil
}

func (s *workspaceService) Counts() batch.Counts {
	return s.deps.Queue.Counts()
}

func (s *workspaceService) Catalog() fields.Catalog {
	return s.deps.Catalog
}

func (s *workspaceService) Settings() settings.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

// UpdateSettings replaces the settings after validating them. Enabled
// fields are stored in catalog order.
func (s *workspaceService) UpdateSettings(next settings.Settings) (settings.Settings, error) {
	if next.Concurrency == 0 {
		next.Concurrency = 1
	}
	if err := next.Validate(s.deps.Catalog); err != nil {
		return settings.Settings{}, err
	}
	return s.mutateSettings(func(cur *settings.Settings) error {
		*cur = next.Clone()
		cur.Canonicalize(s.deps.Catalog)
		return nil
	})
}

// SetProvider switches provider and applies that provider's model and
// endpoint defaults. The result is validated when a run starts.
func (s *workspaceService) SetProvider(kind settings.ProviderKind) (settings.Settings, error) {
	if !settings.IsProvider(kind) {
		return settings.Settings{}, apperrors.NewValidationError(fmt.Sprintf("unknown provider %q", kind), nil)
	}
	return s.mutateSettings(func(cur *settings.Settings) error {
		cur.SetProvider(kind)
		return nil
	})
}

// ToggleField flips one output field. Disabling the last enabled field
// leaves the settings unchanged.
func (s *workspaceService) ToggleField(name string) (settings.Settings, error) {
	if err := s.knownField(name); err != nil {
		return settings.Settings{}, err
	}
	return s.mutateSettings(func(cur *settings.Settings) error {
		cur.ToggleField(name)
		cur.Canonicalize(s.deps.Catalog)
		return nil
	})
}

func (s *workspaceService) EnableAllFields() (settings.Settings, error) {
	return s.mutateSettings(func(cur *settings.Settings) error {
		cur.EnableAll(s.deps.Catalog)
		return nil
	})
}

// ResetFields enables only the first catalog field.
func (s *workspaceService) ResetFields() (settings.Settings, error) {
	return s.mutateSettings(func(cur *settings.Settings) error {
		cur.ResetFields(s.deps.Catalog)
		return nil
	})
}

// SetInstruction overrides one field's instruction. Blank text restores the
// catalog default.
func (s *workspaceService) SetInstruction(name, text string) (settings.Settings, error) {
	if err := s.knownField(name); err != nil {
		return settings.Settings{}, err
	}
	return s.mutateSettings(func(cur *settings.Settings) error {
		cur.SetInstruction(name, text)
		return nil
	})
}

func (s *workspaceService) knownField(name string) error {
	if _, ok := s.deps.Catalog.Lookup(name); !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("unknown output field %q", name), nil)
	}
	return nil
}

// mutateSettings applies fn to a copy of the settings and stores it, unless a
// run is active or fn fails.
func (s *workspaceService) mutateSettings(fn func(cur *settings.Settings) error) (settings.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rejectWhileRunning("change settings"); err != nil {
		return settings.Settings{}, err
	}
	next := s.settings.Clone()
	if err := fn(&next); err != nil {
		return settings.Settings{}, err
	}
	s.settings = next
	return s.settings.Clone(), nil
}

// Start launches a run in the background and returns the number of selected
// items. Configuration errors are returned before anything is attempted.
func (s *workspaceService) Start() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return 0, apperrors.NewConflictError("a batch is already running", nil)
	}
	plan, err := s.deps.Orchestrator.Prepare(s.deps.Queue, s.settings)
	if err != nil {
		return 0, err
	}
	if plan.Total() == 0 {
		return 0, apperrors.NewValidationError("no pending images to process", nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		defer cancel()
		summary := s.deps.Orchestrator.Execute(ctx, s.deps.Queue, plan)

		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.last = summary
		s.mu.Unlock()
	}()
	return plan.Total(), nil
}

// Stop requests cancellation. The item in flight finishes; the rest stay
// pending. It reports whether a run was active.
func (s *workspaceService) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.cancel == nil {
		return false
	}
	s.cancel()
	logger.Info("Batch stop requested")
	return true
}

// Wait blocks until the current run, if any, has finished and returns the
// summary of the last run.
func (s *workspaceService) Wait() batch.Summary {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *workspaceService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *workspaceService) Progress() observer.Progress {
	var p observer.Progress
	if s.deps.Progress != nil {
		p = s.deps.Progress.Snapshot()
	}
	if s.Running() {
		p.Running = true
	}
	return p
}

// Subscribe streams run events. The returned func unsubscribes.
func (s *workspaceService) Subscribe() (<-chan observer.Event, func()) {
	if s.deps.Stream == nil {
		ch := make(chan observer.Event)
		close(ch)
		return ch, func() {}
	}
	return s.deps.Stream.Subscribe()
}

// Export renders the completed items with the currently enabled fields.
func (s *workspaceService) Export(format export.Format) ([]byte, error) {
	enabled := s.Settings().Enabled
	return export.Render(format, s.deps.Queue.Snapshot(), s.deps.Catalog, enabled)
}

// rejectWhileRunning must be called with s.mu held.
func (s *workspaceService) rejectWhileRunning(action string) error {
	if s.running {
		return apperrors.NewConflictError(fmt.Sprintf("cannot %s while a batch is running", action), nil)
	}
	return nil
}
