package convert

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

const batchConcurrency = 8

// BatchEntry points at up to two pieces of artwork for one catalog item.
type BatchEntry struct {
	ImageURL   string `json:"image_url,omitempty"`
	DrawingURL string `json:"drawing_url,omitempty"`
}

// BatchResult carries the independent outcomes for one entry. A failed image
// never blocks the entry's drawing, nor any other entry.
type BatchResult struct {
	Image      *Result
	ImageErr   error
	Drawing    *Result
	DrawingErr error
}

// ConvertBatch converts every present URL of every entry concurrently.
// base supplies the shared width/height/dpi targets. Errors are collected
// per entry; the batch itself never aborts.
func (c *Converter) ConvertBatch(ctx context.Context, entries []BatchEntry, base Request) []BatchResult {
	results := make([]BatchResult, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, entry := range entries {
		i := i
		if url := strings.TrimSpace(entry.ImageURL); url != "" {
			g.Go(func() error {
				req := base
				req.Data = nil
				req.SourceURL = url
				results[i].Image, results[i].ImageErr = c.Convert(gctx, req)
				return nil
			})
		}
		if url := strings.TrimSpace(entry.DrawingURL); url != "" {
			g.Go(func() error {
				req := base
				req.Data = nil
				req.SourceURL = url
				results[i].Drawing, results[i].DrawingErr = c.Convert(gctx, req)
				return nil
			})
		}
	}
	_ = g.Wait()
	return results
}
