package analyzer

import (
	"context"

	"go-image-tagger/internal/fields"
)

// Request is one image analysis call.
type Request struct {
	Image     []byte
	MediaType string
	// Directive is the assembled system instruction.
	Directive string
	// Catalog is the full field set; every catalog field is present in the result.
	Catalog fields.Catalog
	// Active holds the enabled fields, in catalog order, with their
	// effective instructions.
	Active fields.Catalog
}

// Analyzer sends an image to a vision model and returns normalized metadata.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (fields.Result, error)
	// Name identifies the provider in logs.
	Name() string
}
