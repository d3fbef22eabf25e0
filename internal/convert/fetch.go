package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const fetchUserAgent = "lumenworks-artwork-fetcher/1.0"

// Sentinel kinds callers branch on. A missing source, an oversized payload
// and a slow origin are three different problems with three different fixes.
var (
	ErrNotFound     = errors.New("source not found")
	ErrTooLarge     = errors.New("exceeds size limit")
	ErrFetchTimeout = errors.New("fetch timed out")
)

// fetch downloads source artwork with a bounded timeout and a hard byte cap.
func (c *Converter) fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("convert: build fetch request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("convert: fetch %s after %s: %w", url, c.fetchTimeout, ErrFetchTimeout)
		}
		return nil, fmt.Errorf("convert: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("convert: fetch %s: %w", url, ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("convert: fetch %s: status %d", url, resp.StatusCode)
	}
	if resp.ContentLength > c.maxBytes {
		return nil, fmt.Errorf("convert: fetch %s: advertised %d bytes, %w (%d bytes)", url, resp.ContentLength, ErrTooLarge, c.maxBytes)
	}

	// Cap the actual read regardless of what Content-Length claimed.
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("convert: fetch %s after %s: %w", url, c.fetchTimeout, ErrFetchTimeout)
		}
		return nil, fmt.Errorf("convert: read %s: %w", url, err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("convert: fetch %s: payload %w (%d bytes)", url, ErrTooLarge, c.maxBytes)
	}
	return data, nil
}
