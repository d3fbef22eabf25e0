// Package cadgen talks to the external CAD generator. The generator itself
// is opaque: it accepts a drawing spec and returns a finished design binary.
package cadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lumenworks/internal/infra"
)

// Generator is the contract the pipeline depends on.
type Generator interface {
	Generate(ctx context.Context, spec json.RawMessage) ([]byte, error)
}

// Options configures the HTTP client for the generator service.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is the HTTP implementation of Generator.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("cadgen: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 180 * time.Second}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Generate posts the drawing spec and returns the produced design binary.
func (c *Client) Generate(ctx context.Context, spec json.RawMessage) ([]byte, error) {
	if len(spec) == 0 {
		return nil, errors.New("cadgen: drawing spec is required")
	}
	endpoint := c.baseURL + "/v1/drawings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(spec))
	if err != nil {
		return nil, fmt.Errorf("cadgen: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cadgen: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cadgen: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cadgen: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if len(raw) == 0 {
		return nil, errors.New("cadgen: empty design binary")
	}
	c.logger.Debug().Int("bytes", len(raw)).Msg("cadgen: drawing generated")
	return raw, nil
}
