// Package storage resolves document image references to bytes and keeps
// uploaded images in object storage.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultMaxBytes     = 10 << 20
)

var (
	ErrEmptySource   = errors.New("no image provided")
	ErrTooLarge      = errors.New("image too large")
	ErrNoObjectStore = errors.New("object storage not configured")
	ErrInvalidSource = errors.New("invalid image source")
)

// ObjectFetcher reads minio:// references
type ObjectFetcher interface {
	Fetch(ctx context.Context, ref string, maxBytes int64) ([]byte, error)
}

// SourceResolver turns an image source string into image bytes.
//
// Accepted forms, checked in order:
//   - http:// or https:// URL, fetched with GET
//   - data:<mime>;base64,<payload>
//   - minio://bucket/object
//   - anything else is treated as raw base64
type SourceResolver struct {
	httpClient *http.Client
	objects    ObjectFetcher
	maxBytes   int64
}

// NewSourceResolver creates a resolver. objects may be nil when object
// storage is not configured; timeout and maxBytes <= 0 use defaults.
func NewSourceResolver(objects ObjectFetcher, timeout time.Duration, maxBytes int64) *SourceResolver {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &SourceResolver{
		httpClient: &http.Client{Timeout: timeout},
		objects:    objects,
		maxBytes:   maxBytes,
	}
}

// Resolve returns the image bytes for source
func (r *SourceResolver) Resolve(ctx context.Context, source string) ([]byte, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, ErrEmptySource
	}

	switch {
	case IsRemoteURL(source):
		return r.fetchURL(ctx, source)
	case strings.HasPrefix(source, ObjectScheme):
		if r.objects == nil {
			return nil, ErrNoObjectStore
		}
		return r.objects.Fetch(ctx, source, r.maxBytes)
	default:
		data, _, err := DecodeInline(source)
		return data, err
	}
}

func (r *SourceResolver) fetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image URL: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch image: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, r.maxBytes)
	}
	return data, nil
}

// IsRemoteURL reports whether source is an http(s) URL
func IsRemoteURL(source string) bool {
	lower := strings.ToLower(strings.TrimSpace(source))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// IsInline reports whether source carries the image itself, as a data URI or
// raw base64, rather than pointing at it.
func IsInline(source string) bool {
	return !IsRemoteURL(source) && !strings.HasPrefix(strings.TrimSpace(source), ObjectScheme)
}

// DecodeInline decodes a data URI or raw base64 payload. The media type is
// empty for raw base64.
func DecodeInline(source string) ([]byte, string, error) {
	if IsDataURI(source) {
		return DecodeDataURI(source)
	}
	data, err := decodeBase64(source)
	return data, "", err
}

// IsDataURI reports whether source is a data: URI
func IsDataURI(source string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(source)), "data:")
}

// DecodeDataURI decodes the payload after ";base64," and returns it with the
// declared media type.
func DecodeDataURI(uri string) ([]byte, string, error) {
	if !IsDataURI(uri) {
		return nil, "", fmt.Errorf("%w: not a data URI", ErrInvalidSource)
	}
	header, payload, ok := strings.Cut(strings.TrimSpace(uri), ";base64,")
	if !ok {
		return nil, "", fmt.Errorf("%w: only base64 data URIs are accepted", ErrInvalidSource)
	}
	data, err := decodeBase64(payload)
	if err != nil {
		return nil, "", err
	}
	return data, header[len("data:"):], nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, ErrEmptySource
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64 payload: %v", ErrInvalidSource, err)
	}
	return data, nil
}
