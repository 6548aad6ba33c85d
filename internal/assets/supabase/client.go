// Package supabase implements the asset store against a Supabase-style
// storage REST API: objects are POSTed into a bucket and served back
// through the public-object URL space.
package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds storage API parameters.
type Config struct {
	// BaseURL is the storage API root, e.g. https://xyz.supabase.co/storage/v1.
	BaseURL string
	Bucket  string
	APIKey  string
	Timeout time.Duration
}

// Client uploads blobs to a storage bucket over HTTP.
type Client struct {
	config Config
	http   *http.Client
}

// NewClient creates a storage client. Returns an error when required
// config is missing.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("asset store: base URL is required")
	}
	if config.Bucket == "" {
		return nil, errors.New("asset store: bucket is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
	}, nil
}

// Upload stores the object and returns its public URL.
func (c *Client) Upload(ctx context.Context, name string, content []byte) (string, error) {
	uploadURL := fmt.Sprintf("%s/object/%s/%s", c.config.BaseURL, c.config.Bucket, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload object: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return fmt.Sprintf("%s/object/public/%s/%s", c.config.BaseURL, c.config.Bucket, name), nil
}
