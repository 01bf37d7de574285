// Package preview keeps small local previews of queued images. Each preview
// is a handle that must be released when its image leaves the queue.
package preview

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Handle identifies a preview.
type Handle string

// MaxEdge bounds the longer side of a generated thumbnail.
const MaxEdge = 320

const jpegQuality = 80

// Preview is a stored preview image.
type Preview struct {
	Data      []byte
	MediaType string
}

// Registry stores previews by handle.
type Registry struct {
	mu       sync.RWMutex
	previews map[Handle]Preview
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{previews: make(map[Handle]Preview)}
}

// Create stores a thumbnail for data. Images that cannot be decoded are
// stored as-is with their original media type.
func (r *Registry) Create(data []byte, mediaType string) (Handle, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image data")
	}

	p, err := thumbnail(data)
	if err != nil {
		p = Preview{Data: append([]byte(nil), data...), MediaType: mediaType}
	}

	h := Handle(uuid.NewString())
	r.mu.Lock()
	r.previews[h] = p
	r.mu.Unlock()
	return h, nil
}

// Get returns the preview for h.
func (r *Registry) Get(h Handle) (Preview, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.previews[h]
	return p, ok
}

// Release frees the preview. Releasing an unknown handle is a no-op.
func (r *Registry) Release(h Handle) {
	r.mu.Lock()
	delete(r.previews, h)
	r.mu.Unlock()
}

// Len returns the number of live previews.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.previews)
}

func thumbnail(data []byte) (Preview, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Preview{}, fmt.Errorf("decode: %w", err)
	}

	w, h := fit(img.Bounds().Dx(), img.Bounds().Dy(), MaxEdge)
	if w == 0 || h == 0 {
		return Preview{}, fmt.Errorf("image has no pixels")
	}
	if w != img.Bounds().Dx() || h != img.Bounds().Dy() {
		img = transform.Resize(img, w, h, transform.Linear)
	}

	var buf bytes.Buffer
	if err := imgio.JPEGEncoder(jpegQuality)(&buf, img); err != nil {
		return Preview{}, fmt.Errorf("encode: %w", err)
	}
	return Preview{Data: buf.Bytes(), MediaType: "image/jpeg"}, nil
}

// fit scales (w, h) so the longer side is at most edge, keeping aspect ratio.
func fit(w, h, edge int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if w <= edge && h <= edge {
		return w, h
	}
	if w >= h {
		return edge, max(1, h*edge/w)
	}
	return max(1, w*edge/h), edge
}
