package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"time"

	apperrors "go-image-tagger/internal/errors"
)

// FetchedImage is a downloaded remote image.
type FetchedImage struct {
	Data        []byte
	ContentType string
	Filename    string
}

type ImageFetcher interface {
	Fetch(ctx context.Context, imageURL string) (FetchedImage, error)
}

// HTTPImageFetcher downloads images for enqueue-by-URL
type HTTPImageFetcher struct {
	client  *http.Client
	maxSize int64
}

// NewHTTPImageFetcher creates an HTTP image fetcher that rejects bodies
// larger than maxSize bytes.
func NewHTTPImageFetcher(timeout time.Duration, maxSize int64) *HTTPImageFetcher {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,

			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		maxSize: maxSize,
	}
}

// Fetch downloads imageURL in a single attempt.
func (h *HTTPImageFetcher) Fetch(ctx context.Context, imageURL string) (FetchedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return FetchedImage{}, apperrors.NewValidationError("invalid URL", err)
	}

	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "Go-Image-Tagger/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return FetchedImage{}, apperrors.NewTimeoutError("image download timed out", err)
		}
		return FetchedImage{}, apperrors.NewNetworkError("failed to fetch image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FetchedImage{}, apperrors.NewNetworkError(
			fmt.Sprintf("failed to fetch image: status code %d", resp.StatusCode), nil)
	}

	reader := io.Reader(resp.Body)
	if h.maxSize > 0 {
		reader = io.LimitReader(resp.Body, h.maxSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return FetchedImage{}, apperrors.NewNetworkError("failed to read image body", err)
	}
	if h.maxSize > 0 && int64(len(data)) > h.maxSize {
		return FetchedImage{}, apperrors.NewValidationError(
			fmt.Sprintf("image exceeds size limit of %d bytes", h.maxSize), nil)
	}

	return FetchedImage{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    filenameFromURL(resp.Request.URL.Path),
	}, nil
}

func filenameFromURL(p string) string {
	name := path.Base(p)
	if name == "." || name == "/" || name == "" {
		return "image"
	}
	return name
}
