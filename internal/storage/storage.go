package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Object is a file to store.
type Object struct {
	// Seed is the human-readable basis of the stored name, usually the
	// analyzed title.
	Seed        string
	Filename    string
	ContentType string
	Data        []byte
}

// Asset is a stored object.
type Asset struct {
	URL  string `json:"url"`
	Path string `json:"storagePath"`
}

// AssetStore persists analyzed images and returns a public URL for them.
type AssetStore interface {
	Put(ctx context.Context, obj Object) (Asset, error)
	Name() string
}

const maxSlugLength = 80

var (
	nonWord    = regexp.MustCompile(`[^\w\s-]`)
	separators = regexp.MustCompile(`[\s_-]+`)
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// Slugify lowercases s, drops non-word characters and joins words with "-".
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonWord.ReplaceAllString(s, "")
	s = separators.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLength {
		s = strings.TrimRight(s[:maxSlugLength], "-")
	}
	return s
}

// ObjectName builds "<prefix>/<slug>-<unix millis><ext>". The extension
// comes from filename when it is a known image extension, else ".png".
func ObjectName(prefix, seed, filename string, now time.Time) string {
	slug := Slugify(seed)
	if slug == "" {
		slug = Slugify(strings.TrimSuffix(filename, filepath.Ext(filename)))
	}
	if slug == "" {
		slug = "image"
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !imageExtensions[ext] {
		ext = ".png"
	}

	name := fmt.Sprintf("%s-%d%s", slug, now.UnixMilli(), ext)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		return prefix + "/" + name
	}
	return name
}
