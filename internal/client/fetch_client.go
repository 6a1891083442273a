package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/makeasinger/stems/internal/config"
)

// BlobFetcher downloads raw bytes from a URL
type BlobFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetchClient implements BlobFetcher over plain HTTP GET
type FetchClient struct {
	httpClient *http.Client
}

// NewFetchClient creates a new download client
func NewFetchClient(cfg *config.FetchConfig) *FetchClient {
	return &FetchClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

// Fetch downloads the body at url; any non-2xx status is an error
func (c *FetchClient) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download audio file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to download audio file: %d %s - URL: %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio body: %w", err)
	}

	return data, nil
}
