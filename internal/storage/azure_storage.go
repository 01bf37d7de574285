package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "go-image-tagger/internal/errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// AzureConfig configures the Azure blob asset store.
type AzureConfig struct {
	AccountName string
	AccountKey  string
	Container   string
	Prefix      string
	// ServiceURL overrides https://<account>.blob.core.windows.net.
	ServiceURL string
}

type azureStorage struct {
	client    *azblob.Client
	container string
	prefix    string
	now       func() time.Time
}

// NewAzureStorage creates an asset store backed by an Azure blob container.
// SDK retries are disabled; a failed upload is reported once.
func NewAzureStorage(cfg AzureConfig) (AssetStore, error) {
	if cfg.AccountName == "" || cfg.AccountKey == "" {
		return nil, apperrors.NewConfigurationError("azure storage account name and key are required", nil)
	}
	if cfg.Container == "" {
		return nil, apperrors.NewConfigurationError("azure storage container is required", nil)
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, apperrors.NewConfigurationError("invalid azure storage credentials", err)
	}

	serviceURL := cfg.ServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	})
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to create azure storage client", err)
	}

	return &azureStorage{
		client:    client,
		container: cfg.Container,
		prefix:    cfg.Prefix,
		now:       time.Now,
	}, nil
}

func (s *azureStorage) Name() string {
	return "azure"
}

// Put uploads the object as a block blob with its content type set.
func (s *azureStorage) Put(ctx context.Context, obj Object) (Asset, error) {
	name := ObjectName(s.prefix, obj.Seed, obj.Filename, s.now())

	var headers *blob.HTTPHeaders
	if obj.ContentType != "" {
		contentType := obj.ContentType
		headers = &blob.HTTPHeaders{BlobContentType: &contentType}
	}

	_, err := s.client.UploadBuffer(ctx, s.container, name, obj.Data, &azblob.UploadBufferOptions{
		HTTPHeaders: headers,
	})
	if err != nil {
		return Asset{}, apperrors.NewEnrichmentError("azure upload failed", err)
	}

	return Asset{
		URL:  strings.TrimRight(s.client.URL(), "/") + "/" + s.container + "/" + name,
		Path: name,
	}, nil
}
