package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "go-image-tagger/internal/errors"
	"go-image-tagger/internal/logger"

	"github.com/restream/reindexer/v4"
	_ "github.com/restream/reindexer/v4/bindings/cproto"
)

const imagesNamespace = "images"

// indexedImage is the namespace schema.
type indexedImage struct {
	ID        string  `json:"id" reindex:"id,,pk"`
	ImageURL  string  `json:"image_url" reindex:"image_url"`
	Filename  string  `json:"filename" reindex:"filename"`
	Content   string  `json:"content" reindex:"content,text"`
	Fields    []Entry `json:"fields"`
	IndexedAt int64   `json:"indexed_at" reindex:"indexed_at"`
}

// ReindexerIndex upserts into a self-hosted Reindexer namespace.
type ReindexerIndex struct {
	dsn string

	mu     sync.Mutex
	db     *reindexer.Reindexer
	opened bool
	now    func() time.Time
}

// NewReindexerIndex prepares a client for dsn. The connection is opened
// lazily on the first upsert.
func NewReindexerIndex(dsn string) (*ReindexerIndex, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, apperrors.NewConfigurationError("reindexer DSN is required", nil)
	}
	return &ReindexerIndex{dsn: dsn, now: time.Now}, nil
}

func (r *ReindexerIndex) Name() string {
	return "reindexer"
}

func (r *ReindexerIndex) connection() (*reindexer.Reindexer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		r.db = reindexer.NewReindex(r.dsn, reindexer.WithCreateDBIfMissing())
		if status := r.db.Status(); status.Err != nil {
			r.db.Close()
			r.db = nil
			return nil, status.Err
		}
	}
	if !r.opened {
		if err := r.db.OpenNamespace(imagesNamespace, reindexer.DefaultNamespaceOptions(), indexedImage{}); err != nil {
			return nil, fmt.Errorf("open namespace: %w", err)
		}
		r.opened = true
		logger.WithField("namespace", imagesNamespace).Info("Reindexer namespace opened")
	}
	return r.db, nil
}

// Upsert stores the document keyed by its id.
func (r *ReindexerIndex) Upsert(ctx context.Context, doc Document) (string, error) {
	db, err := r.connection()
	if err != nil {
		return "", apperrors.NewEnrichmentError("reindexer unavailable", err)
	}

	if err := db.WithContext(ctx).Upsert(imagesNamespace, toIndexedImage(doc, r.now())); err != nil {
		return "", apperrors.NewEnrichmentError("reindexer upsert failed", err)
	}
	return doc.ID, nil
}

// Close releases the connection.
func (r *ReindexerIndex) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db != nil {
		r.db.Close()
		r.db = nil
		r.opened = false
	}
	return nil
}

func toIndexedImage(doc Document, now time.Time) *indexedImage {
	entries := doc.Entries()
	values := make([]string, 0, len(entries))
	for _, e := range entries[1:] {
		if e.Value != "" {
			values = append(values, e.Value)
		}
	}
	return &indexedImage{
		ID:        doc.ID,
		ImageURL:  doc.AssetURL,
		Filename:  doc.Filename,
		Content:   strings.Join(values, "\n"),
		Fields:    entries[1:],
		IndexedAt: now.Unix(),
	}
}
