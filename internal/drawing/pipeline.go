// Package drawing runs the generation pipeline for one job: normalize the
// referenced artwork, call the external CAD generator, stage the result for
// interactive preview and publish progress at every phase transition.
package drawing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"lumenworks/internal/aps"
	"lumenworks/internal/convert"
	"lumenworks/internal/infra"
	"lumenworks/internal/progress"
	"lumenworks/internal/providers/cadgen"
	"lumenworks/internal/storage"
)

const imageConcurrency = 4

// ImageRef names a remote image the drawing references.
type ImageRef struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// Request describes one drawing generation run.
type Request struct {
	Name   string          `json:"name"`
	Spec   json.RawMessage `json:"spec"`
	Images []ImageRef      `json:"images,omitempty"`
	Width  int             `json:"width,omitempty"`
	Height int             `json:"height,omitempty"`
	DPI    int             `json:"dpi,omitempty"`
}

// Summary is the JSON-serializable outcome attached to the terminal event.
// The design binary itself travels separately through the download endpoint.
type Summary struct {
	URN        string    `json:"urn"`
	ObjectKey  string    `json:"object_key"`
	ExpiresAt  time.Time `json:"expires_at"`
	Filename   string    `json:"filename"`
	ImageCount int       `json:"image_count"`
}

// Pipeline wires the generation stages together.
type Pipeline struct {
	Converter *convert.Converter
	Generator cadgen.Generator
	Stager    *aps.Client
	Progress  *progress.Store
	Archive   *storage.Archive
	Logger    *infra.Logger
}

// Run executes the whole pipeline for an already-created job, publishing a
// progress event at each phase and completing the job at the end. It is
// meant to run in its own goroutine; all failures surface as a terminal
// error event, never as a panic or a return value.
func (p *Pipeline) Run(ctx context.Context, jobID string, req Request) {
	logger := p.logger().With().Str("job_id", jobID).Logger()

	filename := designFilename(req.Name)
	fail := func(detail string) {
		logger.Error().Str("detail", detail).Msg("drawing: generation failed")
		p.Progress.Complete(jobID, false, nil, detail)
	}

	images, imageIssues := p.convertImages(ctx, jobID, req)
	for _, issue := range imageIssues {
		logger.Warn().Str("issue", issue).Msg("drawing: image conversion issue")
	}
	if len(req.Images) > 0 && len(images) == 0 {
		fail("no referenced image could be converted")
		return
	}

	p.Progress.Publish(jobID, progress.PhaseScript, "generating drawing", "", filename)
	binary, err := p.Generator.Generate(ctx, req.Spec)
	if err != nil {
		fail(err.Error())
		return
	}

	p.Progress.Publish(jobID, progress.PhaseAPS, "staging drawing for preview", "", filename)
	staged, err := p.Stager.Stage(ctx, filename, binary, images)
	if err != nil {
		fail(err.Error())
		return
	}
	p.Progress.Publish(jobID, progress.PhaseAPS, "translation requested", "urn "+staged.URN, filename)

	if p.Archive != nil {
		p.Progress.Publish(jobID, progress.PhaseDrive, "archiving artifacts", "", filename)
		if _, err := p.Archive.SaveArtifact(jobID, filename, binary); err != nil {
			// Local archival is best effort; the staged copy is authoritative.
			logger.Warn().Err(err).Msg("drawing: archive write failed")
		}
		for _, img := range images {
			if _, err := p.Archive.SaveArtifact(jobID, img.Filename, img.Data); err != nil {
				logger.Warn().Err(err).Msg("drawing: archive write failed")
			}
		}
	}

	detail := ""
	if len(imageIssues) > 0 {
		detail = strings.Join(imageIssues, "; ")
	}
	p.Progress.Complete(jobID, true, &progress.Result{
		Summary: Summary{
			URN:        staged.URN,
			ObjectKey:  staged.ObjectKey,
			ExpiresAt:  staged.ExpiresAt,
			Filename:   filename,
			ImageCount: len(images),
		},
		Filename: filename,
		Raw:      binary,
	}, detail)
}

// convertImages normalizes every referenced image concurrently. Individual
// failures are collected as issues rather than aborting the run.
func (p *Pipeline) convertImages(ctx context.Context, jobID string, req Request) ([]aps.BundleImage, []string) {
	if len(req.Images) == 0 {
		return nil, nil
	}
	p.Progress.Publish(jobID, progress.PhaseImages,
		fmt.Sprintf("converting %d referenced images", len(req.Images)), "", "")

	converted := make([]*convert.Result, len(req.Images))
	failures := make([]error, len(req.Images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageConcurrency)
	for i, ref := range req.Images {
		i, ref := i, ref
		g.Go(func() error {
			converted[i], failures[i] = p.Converter.Convert(gctx, convert.Request{
				SourceURL: ref.URL,
				Width:     req.Width,
				Height:    req.Height,
				DPI:       req.DPI,
			})
			return nil
		})
	}
	_ = g.Wait()

	var images []aps.BundleImage
	var issues []string
	for i, ref := range req.Images {
		if failures[i] != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", ref.Filename, failures[i]))
			continue
		}
		images = append(images, aps.BundleImage{
			Filename: pngFilename(ref.Filename),
			Data:     converted[i].Converted,
		})
		p.Progress.Publish(jobID, progress.PhaseImages, "image converted", converted[i].Status, ref.Filename)
	}
	return images, issues
}

var unsafeNameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// designFilename derives a safe design file name from the job's display name.
func designFilename(name string) string {
	base := unsafeNameRe.ReplaceAllString(strings.TrimSpace(name), "_")
	base = strings.Trim(base, "._-")
	if base == "" {
		base = "drawing"
	}
	return base + ".dxf"
}

// pngFilename swaps the extension to match the converted container.
func pngFilename(name string) string {
	base := strings.TrimSpace(name)
	if base == "" {
		base = "image"
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base + ".png"
}

func (p *Pipeline) logger() *infra.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	discard := zerolog.New(io.Discard)
	l := infra.Logger(discard)
	return &l
}
