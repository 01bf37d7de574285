package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-image-tagger/internal/analyzer"
	apperrors "go-image-tagger/internal/errors"
	"go-image-tagger/internal/fields"
	"go-image-tagger/internal/observer"
	"go-image-tagger/internal/search"
	"go-image-tagger/internal/settings"
	"go-image-tagger/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnalyzer struct {
	mu       sync.Mutex
	calls    []string
	fail     map[string]error
	onCall   func(filename string)
	requests []analyzer.Request
}

func (s *stubAnalyzer) Analyze(ctx context.Context, req analyzer.Request) (fields.Result, error) {
	filename := string(req.Image)
	s.mu.Lock()
	s.calls = append(s.calls, filename)
	s.requests = append(s.requests, req)
	err := s.fail[filename]
	s.mu.Unlock()

	if s.onCall != nil {
		s.onCall(filename)
	}
	if err != nil {
		return nil, err
	}
	return fields.Normalize(req.Catalog, req.Active.Names(), map[string]interface{}{
		"title": "Title of " + filename,
		"tags":  []interface{}{"a", "b"},
		"mood":  nil,
	}), nil
}

func (s *stubAnalyzer) Name() string { return "stub" }

func (s *stubAnalyzer) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type stubStore struct {
	err  error
	objs []storage.Object
}

func (s *stubStore) Put(ctx context.Context, obj storage.Object) (storage.Asset, error) {
	if s.err != nil {
		return storage.Asset{}, s.err
	}
	s.objs = append(s.objs, obj)
	return storage.Asset{URL: "https://cdn.example.com/" + obj.Filename, Path: obj.Filename}, nil
}

func (s *stubStore) Name() string { return "stub_store" }

type stubIndex struct {
	err  error
	docs []search.Document
}

func (s *stubIndex) Upsert(ctx context.Context, doc search.Document) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.docs = append(s.docs, doc)
	return "idx-" + doc.ID, nil
}

func (s *stubIndex) Name() string { return "stub_index" }

type recorder struct {
	mu     sync.Mutex
	events []observer.Event
}

func (r *recorder) OnEvent(ctx context.Context, e observer.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) GetObserverName() string { return "recorder" }

func (r *recorder) types() []observer.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]observer.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	queue    *Queue
	analyzer *stubAnalyzer
	store    *stubStore
	index    *stubIndex
	events   *recorder
	orch     *Orchestrator
	settings settings.Settings
}

func newFixture(t *testing.T, filenames ...string) *fixture {
	t.Helper()
	catalog := fields.DefaultCatalog()
	f := &fixture{
		queue:    NewQueue(nil),
		analyzer: &stubAnalyzer{fail: map[string]error{}},
		store:    &stubStore{},
		index:    &stubIndex{},
		events:   &recorder{},
		settings: settings.Default(catalog),
	}
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(f.events)
	f.orch = NewOrchestrator(Config{
		Catalog:     catalog,
		NewAnalyzer: func(settings.Settings) (analyzer.Analyzer, error) { return f.analyzer, nil },
		Assets:      f.store,
		Index:       f.index,
		Events:      publisher,
	})
	for _, name := range filenames {
		// The stub analyzer identifies items by their bytes.
		f.queue.Add(name, []byte(name), "image/png", "")
	}
	return f
}

func statuses(q *Queue) []Status {
	var out []Status
	for _, item := range q.Snapshot() {
		out = append(out, item.Status)
	}
	return out
}

func TestRun_CompletesAllItems(t *testing.T) {
	f := newFixture(t, "a.png", "b.png")

	summary, err := f.orch.Run(context.Background(), f.queue, f.settings)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Selected)
	assert.Equal(t, 2, summary.Completed)
	assert.False(t, summary.Cancelled)
	assert.Equal(t, []string{"a.png", "b.png"}, f.analyzer.called())

	for _, item := range f.queue.Snapshot() {
		assert.Equal(t, StatusComplete, item.Status)
		assert.Equal(t, "Title of "+item.Filename, item.Result.Get("title").String())
		assert.Equal(t, "https://cdn.example.com/"+item.Filename, item.AssetURL)
		assert.Equal(t, "idx-"+item.ID, item.IndexID)
		assert.Empty(t, item.Error)
	}

	require.Len(t, f.store.objs, 2)
	assert.Equal(t, "Title of a.png", f.store.objs[0].Seed)
	require.Len(t, f.index.docs, 2)
	assert.Equal(t, "https://cdn.example.com/a.png", f.index.docs[0].AssetURL)

	assert.Equal(t, []observer.EventType{
		observer.RunStarted,
		observer.ItemProcessing, observer.ItemCompleted,
		observer.ItemProcessing, observer.ItemCompleted,
		observer.RunFinished,
	}, f.events.types())
}

func TestRun_NormalizesToActiveFields(t *testing.T) {
	f := newFixture(t, "cat.png")
	f.settings.Enabled = []string{"tags", "title"}
	f.settings.SetInstruction("title", "Name the animal.")

	_, err := f.orch.Run(context.Background(), f.queue, f.settings)
	require.NoError(t, err)

	require.Len(t, f.analyzer.requests, 1)
	req := f.analyzer.requests[0]
	assert.Equal(t, []string{"title", "tags"}, req.Active.Names())
	assert.Equal(t, "Name the animal.", req.Active[0].Instruction)
	assert.Contains(t, req.Directive, "- title: Name the animal.")

	item := f.queue.Snapshot()[0]
	assert.Equal(t, fields.Text(""), item.Result.Get("mood"))
	assert.Equal(t, fields.Items("a", "b"), item.Result.Get("tags"))
	assert.Len(t, item.Result, len(fields.DefaultCatalog()))
}

func TestRun_FailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, "a.png", "b.png", "c.png")
	f.analyzer.fail["b.png"] = apperrors.NewAnalysisError("gateway returned status 500", errors.New("boom"))

	summary, err := f.orch.Run(context.Background(), f.queue, f.settings)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.png", "b.png", "c.png"}, f.analyzer.called())
	assert.Equal(t, []Status{StatusComplete, StatusError, StatusComplete}, statuses(f.queue))
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.Failed)

	failed := f.queue.Snapshot()[1]
	assert.Nil(t, failed.Result)
	assert.Empty(t, failed.AssetURL)
	assert.Equal(t, "gateway returned status 500: boom", failed.Error)
}

func TestRun_UploadFailureIsNonFatal(t *testing.T) {
	f := newFixture(t, "a.png")
	f.store.err = errors.New("storage down")

	summary, err := f.orch.Run(context.Background(), f.queue, f.settings)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)

	item := f.queue.Snapshot()[0]
	assert.Equal(t, StatusComplete, item.Status)
	assert.NotNil(t, item.Result)
	assert.Empty(t, item.AssetURL)
	assert.Empty(t, item.IndexID)
	assert.Empty(t, f.index.docs, "index is skipped without an asset URL")
	assert.Contains(t, f.events.types(), observer.EnrichmentFailed)
}

func TestRun_IndexFailureIsNonFatal(t *testing.T) {
	f := newFixture(t, "a.png")
	f.index.err = apperrors.NewConfigurationError("Upstash Search credentials not configured", nil)

	_, err := f.orch.Run(context.Background(), f.queue, f.settings)
	require.NoError(t, err)

	item := f.queue.Snapshot()[0]
	assert.Equal(t, StatusComplete, item.Status)
	assert.NotEmpty(t, item.AssetURL)
	assert.Empty(t, item.IndexID)
}

func TestRun_TitleFallsBackToFilename(t *testing.T) {
	f := newFixture(t, "a.png")
	f.settings.Enabled = []string{"tags"}

	_, err := f.orch.Run(context.Background(), f.queue, f.settings)
	require.NoError(t, err)

	require.Len(t, f.store.objs, 1)
	assert.Equal(t, "a.png", f.store.objs[0].Seed)
}

func TestRun_CancelBetweenItems(t *testing.T) {
	f := newFixture(t, "1.png", "2.png", "3.png")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.analyzer.onCall = func(filename string) {
		if filename == "1.png" {
			cancel()
		}
	}

	summary, err := f.orch.Run(ctx, f.queue, f.settings)
	require.NoError(t, err)

	assert.Equal(t, []string{"1.png"}, f.analyzer.called())
	assert.Equal(t, []Status{StatusComplete, StatusPending, StatusPending}, statuses(f.queue))
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 2, summary.Skipped)
}

func TestRun_InFlightItemIgnoresCancellation(t *testing.T) {
	f := newFixture(t, "a.png")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sawCancelled atomic.Bool
	f.analyzer.onCall = func(string) { cancel() }
	f.orch.index = nil
	f.orch.assets = &ctxCheckingStore{saw: &sawCancelled}

	_, err := f.orch.Run(ctx, f.queue, f.settings)
	require.NoError(t, err)
	assert.False(t, sawCancelled.Load())
	assert.Equal(t, StatusComplete, f.queue.Snapshot()[0].Status)
}

type ctxCheckingStore struct{ saw *atomic.Bool }

func (s *ctxCheckingStore) Put(ctx context.Context, obj storage.Object) (storage.Asset, error) {
	if ctx.Err() != nil {
		s.saw.Store(true)
	}
	return storage.Asset{URL: "u", Path: "p"}, nil
}

func (s *ctxCheckingStore) Name() string { return "ctx_store" }

func TestRun_OnlyItemsPendingAtStart(t *testing.T) {
	f := newFixture(t, "a.png")
	f.analyzer.onCall = func(filename string) {
		if filename == "a.png" {
			f.queue.Add("late.png", []byte("late.png"), "image/png", "")
		}
	}

	summary, err := f.orch.Run(context.Background(), f.queue, f.settings)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Selected)
	assert.Equal(t, []Status{StatusComplete, StatusPending}, statuses(f.queue))
}

func TestRun_SkipsRemovedItems(t *testing.T) {
	f := newFixture(t, "a.png", "b.png")
	second := f.queue.Snapshot()[1].ID
	f.analyzer.onCall = func(filename string) {
		if filename == "a.png" {
			require.NoError(t, f.queue.Remove(second))
		}
	}

	summary, err := f.orch.Run(context.Background(), f.queue, f.settings)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png"}, f.analyzer.called())
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, f.queue.Len())
}

func TestRun_ConfigurationErrorAttemptsNothing(t *testing.T) {
	f := newFixture(t, "a.png")
	f.settings.SetProvider(settings.ProviderCustom)

	_, err := f.orch.Run(context.Background(), f.queue, f.settings)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))
	assert.Empty(t, f.analyzer.called())
	assert.Empty(t, f.events.types())
	assert.Equal(t, []Status{StatusPending}, statuses(f.queue))
}

func TestRun_AnalyzerFactoryError(t *testing.T) {
	f := newFixture(t, "a.png")
	f.orch.newAnalyzer = func(settings.Settings) (analyzer.Analyzer, error) {
		return nil, apperrors.NewConfigurationError("AI gateway API key is required", nil)
	}

	_, err := f.orch.Run(context.Background(), f.queue, f.settings)
	require.Error(t, err)
	assert.Equal(t, []Status{StatusPending}, statuses(f.queue))
}

func TestRun_CountConservation(t *testing.T) {
	names := []string{"1.png", "2.png", "3.png", "4.png", "5.png", "6.png"}
	for cancelAfter := 0; cancelAfter <= len(names); cancelAfter++ {
		f := newFixture(t, names...)
		f.analyzer.fail["2.png"] = errors.New("bad image")
		f.analyzer.fail["5.png"] = errors.New("bad image")

		ctx, cancel := context.WithCancel(context.Background())
		var n atomic.Int32
		f.analyzer.onCall = func(string) {
			if int(n.Add(1)) == cancelAfter {
				cancel()
			}
		}

		summary, err := f.orch.Run(ctx, f.queue, f.settings)
		cancel()
		require.NoError(t, err)

		counts := f.queue.Counts()
		assert.Equal(t, summary.Selected, counts.Complete+counts.Error+counts.Pending)
		assert.Equal(t, summary.Completed, counts.Complete)
		assert.Equal(t, summary.Failed, counts.Error)
		assert.Equal(t, summary.Skipped, counts.Pending)
		if cancelAfter == 0 || cancelAfter == len(names) {
			assert.Equal(t, len(names), counts.Complete+counts.Error)
		} else {
			assert.Equal(t, cancelAfter, counts.Complete+counts.Error)
		}
	}
}

func TestRun_RetryFailedThenRunAgain(t *testing.T) {
	f := newFixture(t, "a.png", "b.png")
	f.analyzer.fail["b.png"] = errors.New("flaky")

	_, err := f.orch.Run(context.Background(), f.queue, f.settings)
	require.NoError(t, err)
	assert.Equal(t, 1, f.queue.RetryFailed())

	delete(f.analyzer.fail, "b.png")
	summary, err := f.orch.Run(context.Background(), f.queue, f.settings)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Selected)
	assert.Equal(t, []Status{StatusComplete, StatusComplete}, statuses(f.queue))
}

func TestRun_Parallel(t *testing.T) {
	names := []string{"1.png", "2.png", "3.png", "4.png", "5.png", "6.png", "7.png", "8.png"}
	f := newFixture(t, names...)
	f.settings.Concurrency = 3
	f.analyzer.fail["4.png"] = errors.New("bad image")

	var inFlight, peak atomic.Int32
	f.analyzer.onCall = func(string) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
	}
	f.orch.assets = nil

	summary, err := f.orch.Run(context.Background(), f.queue, f.settings)
	require.NoError(t, err)

	assert.Equal(t, 7, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.ElementsMatch(t, names, f.analyzer.called())

	types := f.events.types()
	assert.Equal(t, observer.RunStarted, types[0])
	assert.Equal(t, observer.RunFinished, types[len(types)-1])
}

func TestRun_ParallelCancellation(t *testing.T) {
	f := newFixture(t, "1.png", "2.png", "3.png", "4.png", "5.png", "6.png")
	f.settings.Concurrency = 2
	f.orch.assets = nil

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.analyzer.onCall = func(string) { cancel() }

	summary, err := f.orch.Run(ctx, f.queue, f.settings)
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)

	counts := f.queue.Counts()
	assert.Equal(t, 0, counts.Processing)
	assert.Equal(t, summary.Selected, counts.Complete+counts.Pending)
	assert.LessOrEqual(t, counts.Complete, 2)
}

func TestPrepare_SelectsPendingAtPrepareTime(t *testing.T) {
	f := newFixture(t, "a.png", "b.png")

	plan, err := f.orch.Prepare(f.queue, f.settings)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Total())
	assert.Equal(t, []Status{StatusPending, StatusPending}, statuses(f.queue))

	f.queue.Add("c.png", []byte("c.png"), "image/png", "")
	summary := f.orch.Execute(context.Background(), f.queue, plan)
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, []Status{StatusComplete, StatusComplete, StatusPending}, statuses(f.queue))
}
