package models

import (
	"time"

	"go-image-tagger/internal/fields"
	"go-image-tagger/internal/prompt"
	"go-image-tagger/internal/settings"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// AddImageURLRequest enqueues a remote image
type AddImageURLRequest struct {
	URL string `json:"url" binding:"required"`
}

// ImageResponse is one queued image as seen by clients
type ImageResponse struct {
	ID         string        `json:"id"`
	Filename   string        `json:"filename"`
	MediaType  string        `json:"mediaType"`
	Size       int           `json:"size"`
	Status     string        `json:"status"`
	Result     fields.Result `json:"result,omitempty"`
	AssetURL   string        `json:"assetUrl,omitempty"`
	AssetPath  string        `json:"assetPath,omitempty"`
	IndexID    string        `json:"indexId,omitempty"`
	Error      string        `json:"error,omitempty"`
	PreviewURL string        `json:"previewUrl"`
	AddedAt    time.Time     `json:"addedAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// QueueCounts tallies the queue by status
type QueueCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Complete   int `json:"complete"`
	Error      int `json:"error"`
}

// ImagesResponse lists the queue
type ImagesResponse struct {
	Images []ImageResponse `json:"images"`
	Counts QueueCounts     `json:"counts"`
}

// UploadError reports one rejected file of a multi-file upload
type UploadError struct {
	Filename string `json:"filename"`
	Message  string `json:"message"`
}

// AddImagesResponse is the result of a multi-file upload
type AddImagesResponse struct {
	Added  []ImageResponse `json:"added"`
	Errors []UploadError   `json:"errors,omitempty"`
}

// FieldsResponse lists the output field catalog
type FieldsResponse struct {
	Fields []fields.Descriptor `json:"fields"`
}

// SetProviderRequest switches the analysis provider
type SetProviderRequest struct {
	Provider settings.ProviderKind `json:"provider" binding:"required"`
}

// SetInstructionRequest overrides one field's instruction; blank restores
// the default
type SetInstructionRequest struct {
	Instruction string `json:"instruction"`
}

// SettingsResponse carries the settings with the choices a client needs to
// edit them. The stored API key is never echoed; HasAPIKey reports whether
// one is set.
type SettingsResponse struct {
	Settings  settings.Settings         `json:"settings"`
	HasAPIKey bool                      `json:"hasApiKey"`
	Providers []settings.ProviderOption `json:"providers"`
	Models    []settings.ModelOption    `json:"gatewayModels"`
	Tones     []prompt.ToneOption       `json:"tones"`
	Directive string                    `json:"directive"`
}

// StartBatchResponse reports how many images a run selected
type StartBatchResponse struct {
	Selected int `json:"selected"`
}

// StopBatchResponse reports whether a run was stopped
type StopBatchResponse struct {
	Stopping bool `json:"stopping"`
}

// CountResponse reports how many items an operation affected
type CountResponse struct {
	Count int `json:"count"`
}
