package packaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"reading-leveler/internal/config"
	"reading-leveler/internal/generation"
)

// Packager renders generated materials into a ZIP archive.
type Packager interface {
	Package(ctx context.Context, m generation.Materials) ([]byte, error)
}

// StatusError is returned when the packaging service answers with a non-2xx code.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("packaging service returned %d: %s", e.Code, e.Body)
}

// Client posts materials to a remote packaging service.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

func (c *Client) Package(ctx context.Context, m generation.Materials) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal materials: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build packaging request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/zip")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("packaging request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxTotalSize+1))
	if err != nil {
		return nil, fmt.Errorf("read packaging response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > 4<<10 {
			data = data[:4<<10]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	if len(data) > MaxTotalSize {
		return nil, fmt.Errorf("archive too large: over %d bytes", MaxTotalSize)
	}
	if _, err := Inspect(data); err != nil {
		return nil, fmt.Errorf("invalid archive from packaging service: %w", err)
	}
	return data, nil
}

// Local builds archives in process.
type Local struct {
	Builder *Builder
}

func (l Local) Package(ctx context.Context, m generation.Materials) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := l.Builder
	if b == nil {
		b = NewBuilder()
	}
	return b.Build(m)
}

// FromConfig returns the remote client when PACKAGER_URL is set and a local
// builder otherwise.
func FromConfig(cfg *config.Config) Packager {
	if cfg.PackagerURL != "" {
		return NewClient(cfg.PackagerURL, cfg.PackagerTimeout)
	}
	return Local{Builder: NewBuilder(WithLocation(cfg.Location()))}
}
