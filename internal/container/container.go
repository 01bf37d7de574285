package container

import (
	"io"
	"net/http"

	"go-image-tagger/internal/batch"
	"go-image-tagger/internal/config"
	"go-image-tagger/internal/factory"
	"go-image-tagger/internal/fields"
	"go-image-tagger/internal/logger"
	"go-image-tagger/internal/observer"
	"go-image-tagger/internal/preview"
	"go-image-tagger/internal/search"
	"go-image-tagger/internal/service"
	"go-image-tagger/internal/settings"
	"go-image-tagger/internal/storage"
	"go-image-tagger/internal/transport"
	"go-image-tagger/pkg/validation"

	"github.com/sirupsen/logrus"
)

// streamBuffer is the per-subscriber event buffer of the SSE stream.
const streamBuffer = 64

// Container holds all application dependencies
type Container struct {
	config       *config.Config
	catalog      fields.Catalog
	settings     settings.Settings
	assets       storage.AssetStore
	index        search.Index
	queue        *batch.Queue
	orchestrator *batch.Orchestrator
	publisher    *observer.EventPublisher
	workspace    service.WorkspaceService
	handler      http.Handler
}

// NewContainer builds the dependency graph for cfg.
func NewContainer(cfg *config.Config) (*Container, error) {
	logger.SetLevel(cfg.LogLevel)

	catalog, initial, err := loadSettings(cfg)
	if err != nil {
		return nil, err
	}

	components := factory.NewComponentFactory(cfg)
	assets, err := components.StorageFactory.CreateAssetStore(cfg.AssetStore)
	if err != nil {
		return nil, err
	}
	index, err := components.IndexFactory.CreateIndex(cfg.SearchIndex)
	if err != nil {
		return nil, err
	}

	progress := observer.NewProgressObserver()
	stream := observer.NewStreamObserver(streamBuffer)
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(progress)
	publisher.Subscribe(stream)

	previews := preview.NewRegistry()
	queue := batch.NewQueue(previews)
	orchestrator := batch.NewOrchestrator(batch.Config{
		Catalog:     catalog,
		NewAnalyzer: components.AnalyzerFactory.CreateAnalyzer,
		Assets:      assets,
		Index:       index,
		Events:      publisher,
	})

	workspace := service.NewWorkspaceService(service.Dependencies{
		Catalog:      catalog,
		Settings:     initial,
		Queue:        queue,
		Previews:     previews,
		Orchestrator: orchestrator,
		Fetcher:      storage.NewHTTPImageFetcher(cfg.RequestTimeout, cfg.MaxImageSize),
		Images:       validation.NewImageValidator(cfg.MaxImageSize),
		URLs:         validation.NewURLValidatorWithOptions([]string{"http", "https"}, cfg.ImageURLAllowedHosts),
		Progress:     progress,
		Stream:       stream,
	})

	logger.WithFields(logrus.Fields{
		"provider":     initial.Provider,
		"model":        initial.EffectiveModel(),
		"fields":       len(catalog),
		"asset_store":  cfg.AssetStore,
		"search_index": cfg.SearchIndex,
		"concurrency":  initial.Concurrency,
	}).Info("Workspace initialized")

	return &Container{
		config:       cfg,
		catalog:      catalog,
		settings:     initial,
		assets:       assets,
		index:        index,
		queue:        queue,
		orchestrator: orchestrator,
		publisher:    publisher,
		workspace:    workspace,
		handler:      transport.NewHandler(workspace, cfg),
	}, nil
}

func loadSettings(cfg *config.Config) (fields.Catalog, settings.Settings, error) {
	catalog := fields.DefaultCatalog()
	s := settings.Default(catalog)
	if cfg.SettingsFile != "" {
		var err error
		s, catalog, err = settings.LoadFile(cfg.SettingsFile)
		if err != nil {
			return nil, settings.Settings{}, err
		}
		logger.WithField("path", cfg.SettingsFile).Info("Loaded analysis settings")
	}
	if cfg.BatchConcurrency > 1 {
		s.Concurrency = min(cfg.BatchConcurrency, settings.MaxConcurrency)
		if cfg.BatchConcurrency > settings.MaxConcurrency {
			logger.WithField("max", settings.MaxConcurrency).Warn("BATCH_CONCURRENCY capped")
		}
	}
	return catalog, s, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Catalog returns the output field catalog in use
func (c *Container) Catalog() fields.Catalog {
	return c.catalog
}

// Settings returns the initial analysis settings
func (c *Container) Settings() settings.Settings {
	return c.settings.Clone()
}

// Queue returns the image queue
func (c *Container) Queue() *batch.Queue {
	return c.queue
}

// Orchestrator returns the batch orchestrator
func (c *Container) Orchestrator() *batch.Orchestrator {
	return c.orchestrator
}

// Workspace returns the workspace service
func (c *Container) Workspace() service.WorkspaceService {
	return c.workspace
}

// Close stops a running batch and releases backend connections.
func (c *Container) Close() error {
	if c.workspace.Stop() {
		c.workspace.Wait()
	}
	if closer, ok := c.index.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
