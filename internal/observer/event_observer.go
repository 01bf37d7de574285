package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is one observable step of a batch run.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	ItemID    string                 `json:"itemId,omitempty"`
	Filename  string                 `json:"filename,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Index     int                    `json:"index"`
	Total     int                    `json:"total"`
	Duration  time.Duration          `json:"duration,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of batch event
type EventType string

const (
	// RunStarted when a run has selected its pending items
	RunStarted EventType = "run_started"
	// ItemProcessing when an item moves to processing
	ItemProcessing EventType = "item_processing"
	// ItemCompleted when an item reaches complete
	ItemCompleted EventType = "item_completed"
	// ItemFailed when analysis of an item fails
	ItemFailed EventType = "item_failed"
	// EnrichmentFailed when an asset upload or index upsert fails
	EnrichmentFailed EventType = "enrichment_failed"
	// RunFinished when the run loop exits, cancelled or not
	RunFinished EventType = "run_finished"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event Event)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event Event)
}

// LoggingObserver logs batch events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles batch events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event Event) {
	fields := logrus.Fields{
		"event_type": event.Type,
		"index":      event.Index,
		"total":      event.Total,
	}
	if event.ItemID != "" {
		fields["item_id"] = event.ItemID
		fields["filename"] = event.Filename
	}
	if event.Status != "" {
		fields["status"] = event.Status
	}
	if event.Duration > 0 {
		fields["duration_ms"] = event.Duration.Milliseconds()
	}
	if event.Message != "" {
		fields["error"] = event.Message
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.Type {
	case RunStarted:
		entry.Info("Batch run started")
	case ItemProcessing:
		entry.Debug("Image analysis started")
	case ItemCompleted:
		entry.Info("Image analysis completed")
	case ItemFailed:
		entry.Error("Image analysis failed")
	case EnrichmentFailed:
		entry.Warn("Image enrichment failed")
	case RunFinished:
		entry.Info("Batch run finished")
	default:
		entry.Info("Batch event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// EventPublisher implements the Subject interface. Observers are notified
// synchronously and in subscription order, so every observer sees events in
// the order they were published.
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event
func (p *EventPublisher) NotifyObservers(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, obs := range observers {
		notify(ctx, obs, event)
	}
}

func notify(ctx context.Context, obs Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
