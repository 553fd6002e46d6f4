package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"newsreel/discoveryservice/internal/domain"
)

const (
	defaultMaxImageBytes = 8 * 1024 * 1024
	defaultUserAgent     = "newsreel-discovery/1.0"
)

// ImageSource downloads preview imagery (thumbnails, screenshots) for
// classification.
type ImageSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPImageSource fetches images over plain GET with a hard size cap.
type HTTPImageSource struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

func NewHTTPImageSource(client *http.Client, maxBytes int64) *HTTPImageSource {
	if client == nil {
		client = &http.Client{}
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}
	return &HTTPImageSource{
		client:    client,
		maxBytes:  maxBytes,
		userAgent: defaultUserAgent,
	}
}

func (s *HTTPImageSource) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty image url", domain.ErrMetadataFetch)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMetadataFetch, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMetadataFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: image HTTP %d", domain.ErrMetadataFetch, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMetadataFetch, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", domain.ErrMetadataFetch, s.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image body", domain.ErrMetadataFetch)
	}
	return data, nil
}
