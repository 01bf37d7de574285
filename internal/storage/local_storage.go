package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "go-image-tagger/internal/errors"
)

type localStorage struct {
	root    string
	baseURL string
	prefix  string
	now     func() time.Time
}

// NewLocalStorage stores assets under root. URLs are baseURL joined with the
// object path; the HTTP service serves root at that base.
func NewLocalStorage(root, baseURL, prefix string) (AssetStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, apperrors.NewConfigurationError("local asset directory is required", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.NewConfigurationError("failed to create local asset directory", err)
	}
	return &localStorage{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  prefix,
		now:     time.Now,
	}, nil
}

func (s *localStorage) Name() string {
	return "local"
}

func (s *localStorage) Put(ctx context.Context, obj Object) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, apperrors.NewEnrichmentError("upload cancelled", err)
	}

	name := ObjectName(s.prefix, obj.Seed, obj.Filename, s.now())
	path := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Asset{}, apperrors.NewEnrichmentError("failed to create asset directory", err)
	}
	if err := os.WriteFile(path, obj.Data, 0o644); err != nil {
		return Asset{}, apperrors.NewEnrichmentError("failed to write asset", err)
	}

	return Asset{URL: s.baseURL + "/" + name, Path: name}, nil
}
