package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "go-image-tagger/internal/errors"

	"github.com/go-resty/resty/v2"
)

// UpstashConfig configures the Upstash Search REST client.
type UpstashConfig struct {
	URL     string
	Token   string
	Index   string
	Timeout time.Duration
}

type upstashRecord struct {
	ID       string            `json:"id"`
	Content  map[string]string `json:"content"`
	Metadata upstashMetadata   `json:"metadata"`
}

type upstashMetadata struct {
	Filename  string `json:"filename"`
	IndexedAt string `json:"indexedAt"`
}

type upstashError struct {
	Error string `json:"error"`
}

// UpstashIndex upserts into an Upstash Search index over REST.
type UpstashIndex struct {
	client *resty.Client
	index  string
	ready  bool
	now    func() time.Time
}

// NewUpstashIndex builds the client. Missing credentials do not fail here:
// every Upsert then fails with a configuration error instead.
func NewUpstashIndex(cfg UpstashConfig) *UpstashIndex {
	if cfg.Index == "" {
		cfg.Index = "img-base"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetAuthToken(cfg.Token).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &UpstashIndex{
		client: client,
		index:  cfg.Index,
		ready:  strings.TrimSpace(cfg.URL) != "" && strings.TrimSpace(cfg.Token) != "",
		now:    time.Now,
	}
}

func (u *UpstashIndex) Name() string {
	return "upstash"
}

// Upsert sends a single-record upsert.
func (u *UpstashIndex) Upsert(ctx context.Context, doc Document) (string, error) {
	if !u.ready {
		return "", apperrors.NewConfigurationError("Upstash Search credentials not configured", nil)
	}

	content := make(map[string]string, len(doc.Fields)+1)
	for _, e := range doc.Entries() {
		content[e.Label] = e.Value
	}
	record := upstashRecord{
		ID:      doc.ID,
		Content: content,
		Metadata: upstashMetadata{
			Filename:  doc.Filename,
			IndexedAt: u.now().UTC().Format(time.RFC3339Nano),
		},
	}

	var failure upstashError
	resp, err := u.client.R().
		SetContext(ctx).
		SetBody([]upstashRecord{record}).
		SetError(&failure).
		Post("/upsert-data/" + u.index)
	if err != nil {
		return "", apperrors.NewEnrichmentError("search index request failed", err)
	}
	if resp.IsError() {
		msg := failure.Error
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return "", apperrors.NewEnrichmentError(
			fmt.Sprintf("search index returned status %d", resp.StatusCode()), fmt.Errorf("%s", msg))
	}
	return doc.ID, nil
}
