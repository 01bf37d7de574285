package factory

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go-image-tagger/internal/analyzer"
	"go-image-tagger/internal/config"
	apperrors "go-image-tagger/internal/errors"
	"go-image-tagger/internal/search"
	"go-image-tagger/internal/settings"
	"go-image-tagger/internal/storage"
)

// AnalyzerFactory creates analysis gateways from user settings
type AnalyzerFactory interface {
	CreateAnalyzer(s settings.Settings) (analyzer.Analyzer, error)
}

// StorageFactory creates asset stores
type StorageFactory interface {
	CreateAssetStore(kind string) (storage.AssetStore, error)
}

// IndexFactory creates search indexes
type IndexFactory interface {
	CreateIndex(kind string) (search.Index, error)
}

// analyzerFactory implements AnalyzerFactory
type analyzerFactory struct {
	cfg    *config.Config
	client *http.Client
}

// NewAnalyzerFactory creates a new analyzer factory. Server-side credentials
// from cfg are used when the settings carry none.
func NewAnalyzerFactory(cfg *config.Config) AnalyzerFactory {
	return &analyzerFactory{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.GatewayTimeout},
	}
}

// CreateAnalyzer selects the provider variant once per run. Missing
// credentials or endpoints are configuration errors; nothing is sent.
func (f *analyzerFactory) CreateAnalyzer(s settings.Settings) (analyzer.Analyzer, error) {
	switch s.Provider {
	case settings.ProviderGateway:
		return newOpenAI(analyzer.OpenAIConfig{
			Name:          string(settings.ProviderGateway),
			BaseURL:       firstNonEmpty(s.BaseURL, f.cfg.AIGatewayBaseURL),
			APIKey:        firstNonEmpty(s.APIKey, f.cfg.AIGatewayAPIKey),
			Model:         s.EffectiveModel(),
			Mode:          analyzer.ResponseJSONSchema,
			HTTPClient:    f.client,
			RequireAPIKey: true,
		})
	case settings.ProviderOllama:
		return newOpenAI(analyzer.OpenAIConfig{
			Name:       string(settings.ProviderOllama),
			BaseURL:    s.BaseURL,
			APIKey:     firstNonEmpty(s.APIKey, "ollama"),
			Model:      s.EffectiveModel(),
			Mode:       analyzer.ResponseJSONObject,
			HTTPClient: f.client,
		})
	case settings.ProviderCustom:
		return newOpenAI(analyzer.OpenAIConfig{
			Name:       string(settings.ProviderCustom),
			BaseURL:    s.BaseURL,
			APIKey:     s.APIKey,
			Model:      s.EffectiveModel(),
			Mode:       analyzer.ResponseJSONSchema,
			HTTPClient: f.client,
		})
	case settings.ProviderGemini:
		g, err := analyzer.NewGemini(context.Background(), analyzer.GeminiConfig{
			APIKey:     firstNonEmpty(s.APIKey, f.cfg.GeminiAPIKey),
			Model:      s.EffectiveModel(),
			BaseURL:    s.BaseURL,
			HTTPClient: f.client,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("unsupported provider: %s", s.Provider), nil)
	}
}

func newOpenAI(cfg analyzer.OpenAIConfig) (analyzer.Analyzer, error) {
	a, err := analyzer.NewOpenAICompatible(cfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg *config.Config
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateAssetStore returns nil without error for "none".
func (f *storageFactory) CreateAssetStore(kind string) (storage.AssetStore, error) {
	switch kind {
	case config.AssetStoreLocal:
		return storage.NewLocalStorage(f.cfg.LocalAssetDir, f.cfg.PublicBaseURL, f.cfg.AssetPrefix)
	case config.AssetStoreAzure:
		return storage.NewAzureStorage(storage.AzureConfig{
			AccountName: f.cfg.AzureStorageAccount,
			AccountKey:  f.cfg.AzureStorageKey,
			Container:   f.cfg.AzureStorageContainer,
			Prefix:      f.cfg.AssetPrefix,
		})
	case config.AssetStoreNone:
		return nil, nil
	default:
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("unsupported asset store: %s", kind), nil)
	}
}

// indexFactory implements IndexFactory
type indexFactory struct {
	cfg *config.Config
}

// NewIndexFactory creates a new index factory
func NewIndexFactory(cfg *config.Config) IndexFactory {
	return &indexFactory{cfg: cfg}
}

// CreateIndex returns nil without error for "none". The Upstash index is
// built even without credentials and fails on every upsert instead.
func (f *indexFactory) CreateIndex(kind string) (search.Index, error) {
	switch kind {
	case config.SearchIndexUpstash:
		return search.NewUpstashIndex(search.UpstashConfig{
			URL:     f.cfg.UpstashSearchURL,
			Token:   f.cfg.UpstashSearchToken,
			Index:   f.cfg.SearchIndexName,
			Timeout: f.cfg.GatewayTimeout,
		}), nil
	case config.SearchIndexReindexer:
		idx, err := search.NewReindexerIndex(f.cfg.ReindexerDSN)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case config.SearchIndexNone:
		return nil, nil
	default:
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("unsupported search index: %s", kind), nil)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	AnalyzerFactory AnalyzerFactory
	StorageFactory  StorageFactory
	IndexFactory    IndexFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		AnalyzerFactory: NewAnalyzerFactory(cfg),
		StorageFactory:  NewStorageFactory(cfg),
		IndexFactory:    NewIndexFactory(cfg),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
