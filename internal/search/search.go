// Package search pushes analyzed image metadata into a search index.
package search

import (
	"context"

	"go-image-tagger/internal/fields"
)

// ImageURLLabel keys the asset URL in indexed content.
const ImageURLLabel = "Image URL"

// Document is one image to index.
type Document struct {
	ID       string
	AssetURL string
	Filename string
	// Fields are the indexed fields, in order.
	Fields fields.Catalog
	Result fields.Result
}

// Entry is one labelled value of indexed content.
type Entry struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Entries flattens the document into labelled values: the asset URL first,
// then each field with list values joined by fields.ListSeparator.
func (d Document) Entries() []Entry {
	entries := make([]Entry, 0, len(d.Fields)+1)
	entries = append(entries, Entry{Label: ImageURLLabel, Value: d.AssetURL})
	for _, f := range d.Fields {
		entries = append(entries, Entry{Label: f.Label, Value: d.Result.Get(f.Name).String()})
	}
	return entries
}

// Index upserts documents into a search backend.
type Index interface {
	// Upsert inserts or replaces the document and returns its index id.
	Upsert(ctx context.Context, doc Document) (string, error)
	Name() string
}
