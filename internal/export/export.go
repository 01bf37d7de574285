// Package export renders completed analysis results as JSON or CSV.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"go-image-tagger/internal/batch"
	apperrors "go-image-tagger/internal/errors"
	"go-image-tagger/internal/fields"
	"go-image-tagger/internal/search"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Format is an export format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

const baseName = "image-analysis"

// ParseFormat accepts "json" or "csv", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", apperrors.NewValidationError(fmt.Sprintf("unsupported export format %q", s), nil)
	}
}

// Filename is the download name for f.
func Filename(f Format) string {
	return baseName + "." + string(f)
}

// ContentType is the MIME type for f.
func ContentType(f Format) string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Render dispatches to JSON or CSV.
func Render(f Format, items []batch.Item, catalog fields.Catalog, enabled []string) ([]byte, error) {
	switch f {
	case FormatJSON:
		return JSON(items, catalog, enabled)
	case FormatCSV:
		return CSV(items, catalog, enabled)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported export format %q", f), nil)
	}
}

// JSON renders completed items as an indented array of objects keyed
// filename, imageUrl (only when the item has an asset URL) and then each
// enabled field in catalog order.
func JSON(items []batch.Item, catalog fields.Catalog, enabled []string) ([]byte, error) {
	active := catalog.Filter(enabled)
	entries := make([]*orderedmap.OrderedMap[string, interface{}], 0, len(items))
	for _, item := range completed(items) {
		entry := orderedmap.New[string, interface{}]()
		entry.Set("filename", item.Filename)
		if item.AssetURL != "" {
			entry.Set("imageUrl", item.AssetURL)
		}
		for _, d := range active {
			entry.Set(d.Name, item.Result.Get(d.Name))
		}
		entries = append(entries, entry)
	}

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode JSON export", err)
	}
	return out, nil
}

// CSV renders completed items with a header row. The Image URL column is
// present only when some completed item has an asset URL. List values are
// joined with fields.ListSeparator. No completed items yields empty output.
func CSV(items []batch.Item, catalog fields.Catalog, enabled []string) ([]byte, error) {
	done := completed(items)
	if len(done) == 0 {
		return []byte{}, nil
	}

	active := catalog.Filter(enabled)
	withURL := false
	for _, item := range done {
		if item.AssetURL != "" {
			withURL = true
			break
		}
	}

	header := []string{"Filename"}
	if withURL {
		header = append(header, search.ImageURLLabel)
	}
	for _, d := range active {
		header = append(header, d.Label)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, apperrors.NewInternalError("failed to encode CSV export", err)
	}
	for _, item := range done {
		row := []string{item.Filename}
		if withURL {
			row = append(row, item.AssetURL)
		}
		for _, d := range active {
			row = append(row, item.Result.Get(d.Name).Join(fields.ListSeparator))
		}
		if err := w.Write(row); err != nil {
			return nil, apperrors.NewInternalError("failed to encode CSV export", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, apperrors.NewInternalError("failed to encode CSV export", err)
	}
	return buf.Bytes(), nil
}

func completed(items []batch.Item) []batch.Item {
	out := make([]batch.Item, 0, len(items))
	for _, item := range items {
		if item.Status == batch.StatusComplete && item.Result != nil {
			out = append(out, item)
		}
	}
	return out
}
