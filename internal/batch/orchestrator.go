package batch

import (
	"context"
	"sync"
	"time"

	"go-image-tagger/internal/analyzer"
	apperrors "go-image-tagger/internal/errors"
	"go-image-tagger/internal/fields"
	"go-image-tagger/internal/logger"
	"go-image-tagger/internal/observer"
	"go-image-tagger/internal/prompt"
	"go-image-tagger/internal/search"
	"go-image-tagger/internal/settings"
	"go-image-tagger/internal/storage"

	"github.com/sirupsen/logrus"
)

// AnalyzerFactory builds the analysis gateway for one run.
type AnalyzerFactory func(s settings.Settings) (analyzer.Analyzer, error)

// Config wires the orchestrator's collaborators. Assets and Index are
// optional; Events may be nil.
type Config struct {
	Catalog     fields.Catalog
	NewAnalyzer AnalyzerFactory
	Assets      storage.AssetStore
	Index       search.Index
	Events      observer.Subject
}

// Summary describes a finished run.
type Summary struct {
	Selected  int           `json:"selected"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Cancelled bool          `json:"cancelled"`
	Duration  time.Duration `json:"duration"`
}

// Orchestrator drives pending queue items through analysis, upload and indexing.
type Orchestrator struct {
	catalog     fields.Catalog
	newAnalyzer AnalyzerFactory
	assets      storage.AssetStore
	index       search.Index
	events      observer.Subject
	now         func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{
		catalog:     cfg.Catalog,
		newAnalyzer: cfg.NewAnalyzer,
		assets:      cfg.Assets,
		index:       cfg.Index,
		events:      cfg.Events,
		now:         time.Now,
	}
}

// Plan is a validated run: the analyzer, the assembled directive and the
// items that were pending when it was prepared.
type Plan struct {
	analyzer    analyzer.Analyzer
	directive   string
	active      fields.Catalog
	model       string
	concurrency int
	ids         []string
}

// Total is the number of selected items.
func (p *Plan) Total() int {
	return len(p.ids)
}

// run is the per-run state shared by the item workers.
type run struct {
	*Plan
	total int

	mu        sync.Mutex
	completed int
	failed    int
	cancelled bool
}

// Prepare validates s, builds the analyzer and selects the items pending in
// q. Nothing is sent and no item changes state. Failures are configuration
// errors.
func (o *Orchestrator) Prepare(q *Queue, s settings.Settings) (*Plan, error) {
	s = s.Clone()
	if err := s.Validate(o.catalog); err != nil {
		return nil, err
	}
	if o.newAnalyzer == nil {
		return nil, apperrors.NewConfigurationError("no analyzer configured", nil)
	}
	a, err := o.newAnalyzer(s)
	if err != nil {
		return nil, err
	}

	return &Plan{
		analyzer:    a,
		directive:   prompt.Assemble(s, o.catalog),
		active:      activeFields(s, o.catalog),
		model:       s.EffectiveModel(),
		concurrency: s.Concurrency,
		ids:         q.PendingIDs(),
	}, nil
}

// Run prepares and executes a run over the items pending when it is called.
func (o *Orchestrator) Run(ctx context.Context, q *Queue, s settings.Settings) (Summary, error) {
	p, err := o.Prepare(q, s)
	if err != nil {
		return Summary{}, err
	}
	return o.Execute(ctx, q, p), nil
}

// Execute processes the plan's items in order.
//
// Cancelling ctx stops the run before the next item starts. An item that has
// already started always reaches complete or error, and items that were not
// started stay pending.
func (o *Orchestrator) Execute(ctx context.Context, q *Queue, p *Plan) Summary {
	r := &run{Plan: p, total: len(p.ids)}
	start := o.now()

	logger.WithFields(logrus.Fields{
		"provider":    p.analyzer.Name(),
		"model":       p.model,
		"items":       r.total,
		"concurrency": p.concurrency,
	}).Info("Starting batch run")
	o.publish(ctx, observer.Event{Type: observer.RunStarted, Total: r.total})

	if p.concurrency > 1 {
		o.runParallel(ctx, q, r, p.ids, p.concurrency)
	} else {
		o.runSequential(ctx, q, r, p.ids)
	}

	summary := Summary{
		Selected:  r.total,
		Completed: r.completed,
		Failed:    r.failed,
		Skipped:   r.total - r.completed - r.failed,
		Cancelled: r.cancelled,
		Duration:  o.now().Sub(start),
	}
	o.publish(ctx, observer.Event{
		Type:     observer.RunFinished,
		Total:    r.total,
		Index:    r.completed + r.failed,
		Duration: summary.Duration,
		Metadata: map[string]interface{}{
			"cancelled": summary.Cancelled,
			"completed": summary.Completed,
			"failed":    summary.Failed,
			"skipped":   summary.Skipped,
		},
	})
	return summary
}

func (o *Orchestrator) runSequential(ctx context.Context, q *Queue, r *run, ids []string) {
	for i, id := range ids {
		if ctx.Err() != nil {
			r.cancelled = true
			return
		}
		o.process(ctx, q, r, id, i+1)
	}
}

func (o *Orchestrator) runParallel(ctx context.Context, q *Queue, r *run, ids []string, workers int) {
	pool := NewWorkerPool(workers)
	pool.Start()
	defer pool.Close()

	for i, id := range ids {
		if ctx.Err() != nil {
			r.markCancelled()
			break
		}
		id, index := id, i+1
		pool.Submit(func() {
			if ctx.Err() != nil {
				r.markCancelled()
				return
			}
			o.process(ctx, q, r, id, index)
		})
	}
	pool.Wait()
}

// process drives one item to a terminal state. Gateway calls do not observe
// cancellation of ctx.
func (o *Orchestrator) process(ctx context.Context, q *Queue, r *run, id string, index int) {
	item, ok := q.begin(id)
	if !ok {
		logger.WithField("item_id", id).Debug("Skipping item no longer pending")
		return
	}

	started := o.now()
	o.publish(ctx, observer.Event{
		Type:     observer.ItemProcessing,
		ItemID:   item.ID,
		Filename: item.Filename,
		Status:   string(StatusProcessing),
		Index:    index,
		Total:    r.total,
	})

	callCtx := context.WithoutCancel(ctx)
	result, err := r.analyzer.Analyze(callCtx, analyzer.Request{
		Image:     item.Data,
		MediaType: item.MediaType,
		Directive: r.directive,
		Catalog:   o.catalog,
		Active:    r.active,
	})
	if err != nil {
		msg := apperrors.Message(err)
		q.fail(item.ID, msg)
		r.record(false)
		o.publish(ctx, observer.Event{
			Type:     observer.ItemFailed,
			ItemID:   item.ID,
			Filename: item.Filename,
			Status:   string(StatusError),
			Message:  msg,
			Index:    index,
			Total:    r.total,
			Duration: o.now().Sub(started),
		})
		return
	}

	asset := o.upload(callCtx, item, result, index, r.total)
	var indexID string
	if asset.URL != "" {
		indexID = o.upsert(callCtx, item, r.active, result, asset.URL, index, r.total)
	}

	q.complete(item.ID, result, asset.URL, asset.Path, indexID)
	r.record(true)
	o.publish(ctx, observer.Event{
		Type:     observer.ItemCompleted,
		ItemID:   item.ID,
		Filename: item.Filename,
		Status:   string(StatusComplete),
		Index:    index,
		Total:    r.total,
		Duration: o.now().Sub(started),
	})
}

// upload stores the image under a name seeded by the analyzed title. Failures
// are reported and swallowed.
func (o *Orchestrator) upload(ctx context.Context, item Item, result fields.Result, index, total int) storage.Asset {
	if o.assets == nil {
		return storage.Asset{}
	}

	seed := result.Get("title").String()
	if seed == "" {
		seed = item.Filename
	}
	asset, err := o.assets.Put(ctx, storage.Object{
		Seed:        seed,
		Filename:    item.Filename,
		ContentType: item.MediaType,
		Data:        item.Data,
	})
	if err != nil {
		o.enrichmentFailed(ctx, item, o.assets.Name(), err, index, total)
		return storage.Asset{}
	}
	return asset
}

func (o *Orchestrator) upsert(ctx context.Context, item Item, active fields.Catalog, result fields.Result, assetURL string, index, total int) string {
	if o.index == nil {
		return ""
	}

	id, err := o.index.Upsert(ctx, search.Document{
		ID:       item.ID,
		AssetURL: assetURL,
		Filename: item.Filename,
		Fields:   active,
		Result:   result,
	})
	if err != nil {
		o.enrichmentFailed(ctx, item, o.index.Name(), err, index, total)
		return ""
	}
	return id
}

func (o *Orchestrator) enrichmentFailed(ctx context.Context, item Item, step string, err error, index, total int) {
	o.publish(ctx, observer.Event{
		Type:     observer.EnrichmentFailed,
		ItemID:   item.ID,
		Filename: item.Filename,
		Message:  apperrors.Message(err),
		Index:    index,
		Total:    total,
		Metadata: map[string]interface{}{"step": step},
	})
}

func (o *Orchestrator) publish(ctx context.Context, event observer.Event) {
	if o.events == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = o.now()
	}
	o.events.NotifyObservers(ctx, event)
}

func (r *run) record(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		r.completed++
	} else {
		r.failed++
	}
}

func (r *run) markCancelled() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
}

// activeFields returns the enabled descriptors carrying their effective
// instructions.
func activeFields(s settings.Settings, catalog fields.Catalog) fields.Catalog {
	active := s.ActiveFields(catalog)
	out := make(fields.Catalog, len(active))
	for i, d := range active {
		d.Instruction = s.Instruction(d)
		out[i] = d
	}
	return out
}
