package convert

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lumenworks/internal/infra"
)

// Conversions always emit the same raster container regardless of input.
const OutputFormat = "png"

// Validation outcomes. Dimension or DPI drift is reported, never fatal.
const (
	StatusPassed  = "passed"
	StatusWarning = "warning"
)

const defaultDPI = 96

// Request describes a single artwork conversion. Either Data or SourceURL
// must be set. Width, Height and DPI are optional targets.
type Request struct {
	Data      []byte
	SourceURL string
	Width     int
	Height    int
	DPI       int
}

// Metadata is measured from the converted bytes, not taken from the request.
type Metadata struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	DPI    int    `json:"dpi"`
	Bytes  int    `json:"bytes"`
}

// Result is the outcome of one conversion call.
type Result struct {
	Original        []byte        `json:"-"`
	Converted       []byte        `json:"-"`
	ConvertedBase64 string        `json:"converted_base64"`
	Meta            Metadata      `json:"metadata"`
	Status          string        `json:"status"`
	Issues          []string      `json:"issues,omitempty"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Thresholds parameterize dark-theme detection.
type Thresholds struct {
	TransparentRatio float64
	WhiteRatio       float64
	WhiteLevel       int
}

// DefaultThresholds returns the empirically tuned detection constants.
func DefaultThresholds() Thresholds {
	return Thresholds{TransparentRatio: 0.5, WhiteRatio: 0.9, WhiteLevel: 240}
}

// Options configures a Converter.
type Options struct {
	HTTPClient   *http.Client
	Logger       *infra.Logger
	FetchTimeout time.Duration
	MaxBytes     int64
	Thresholds   Thresholds
}

// Converter normalizes raster and vector artwork into print-ready PNGs.
type Converter struct {
	httpClient   *http.Client
	logger       *infra.Logger
	fetchTimeout time.Duration
	maxBytes     int64
	thresholds   Thresholds
}

// NewConverter constructs a converter with sane defaults and injected dependencies.
func NewConverter(opts Options) *Converter {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 120 * time.Second
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 200 * 1024 * 1024
	}
	thresholds := opts.Thresholds
	if thresholds.TransparentRatio <= 0 {
		thresholds.TransparentRatio = DefaultThresholds().TransparentRatio
	}
	if thresholds.WhiteRatio <= 0 {
		thresholds.WhiteRatio = DefaultThresholds().WhiteRatio
	}
	if thresholds.WhiteLevel <= 0 {
		thresholds.WhiteLevel = DefaultThresholds().WhiteLevel
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Converter{
		httpClient:   httpClient,
		logger:       logger,
		fetchTimeout: fetchTimeout,
		maxBytes:     maxBytes,
		thresholds:   thresholds,
	}
}

// Convert fetches (if needed) and normalizes a single piece of artwork.
// Font problems and size-cap violations are hard errors; dimension, DPI and
// format drift in the produced raster are reported as warning issues.
func (c *Converter) Convert(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	data := req.Data
	if len(data) == 0 && strings.TrimSpace(req.SourceURL) != "" {
		fetched, err := c.fetch(ctx, req.SourceURL)
		if err != nil {
			return nil, err
		}
		data = fetched
	}
	if len(data) == 0 {
		return nil, errors.New("convert: image data or source url is required")
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("convert: source is %d bytes, %w (%d bytes)", len(data), ErrTooLarge, c.maxBytes)
	}

	dpi := req.DPI
	if dpi <= 0 {
		dpi = defaultDPI
	}

	var (
		flat     image.Image
		warnings []string
	)
	if isVectorMarkup(data) {
		subs, subWarnings, err := resolveFonts(data)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, subWarnings...)
		rasterized, err := rasterizeSVG(applySubstitutions(data, subs), req.Width, req.Height)
		if err != nil {
			return nil, err
		}
		flat = rasterized
	} else {
		decoded, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("convert: decode raster: %w", err)
		}
		if c.IsDarkTheme(decoded) {
			c.logger.Debug().Msg("convert: dark-theme artwork detected, inverting alpha")
			decoded = invertAlpha(decoded)
		}
		resized := resizeToFit(decoded, req.Width, req.Height)
		flat = flattenWhite(resized)
	}

	converted, err := encodePNG(flat, dpi)
	if err != nil {
		return nil, err
	}
	if int64(len(converted)) > c.maxBytes {
		return nil, fmt.Errorf("convert: output is %d bytes, %w (%d bytes)", len(converted), ErrTooLarge, c.maxBytes)
	}

	meta := measure(converted)
	issues := append(warnings, validate(meta, req, dpi)...)
	status := StatusPassed
	if len(issues) > 0 {
		status = StatusWarning
	}

	elapsed := time.Since(start)
	c.logger.Debug().
		Int("width", meta.Width).
		Int("height", meta.Height).
		Int("bytes", meta.Bytes).
		Str("status", status).
		Dur("elapsed", elapsed).
		Msg("convert: artwork normalized")

	return &Result{
		Original:        data,
		Converted:       converted,
		ConvertedBase64: EncodeBase64(converted),
		Meta:            meta,
		Status:          status,
		Issues:          issues,
		Elapsed:         elapsed,
	}, nil
}

// validate compares measured output against the requested targets. Only the
// dimensions the caller actually constrained are checked; contain-fit scaling
// legitimately leaves the unconstrained axis free.
func validate(meta Metadata, req Request, dpi int) []string {
	var issues []string
	if req.Width > 0 && abs(meta.Width-req.Width) > 1 {
		issues = append(issues, fmt.Sprintf("width is %dpx, requested %dpx", meta.Width, req.Width))
	}
	if req.Height > 0 && abs(meta.Height-req.Height) > 1 {
		issues = append(issues, fmt.Sprintf("height is %dpx, requested %dpx", meta.Height, req.Height))
	}
	if abs(meta.DPI-dpi) > 1 {
		issues = append(issues, fmt.Sprintf("dpi is %d, requested %d", meta.DPI, dpi))
	}
	if meta.Format != OutputFormat {
		issues = append(issues, fmt.Sprintf("format is %q, expected %q", meta.Format, OutputFormat))
	}
	return issues
}

// measure inspects the converted bytes directly.
func measure(converted []byte) Metadata {
	meta := Metadata{Format: "unknown", Bytes: len(converted)}
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(converted)); err == nil {
		meta.Width = cfg.Width
		meta.Height = cfg.Height
		meta.Format = format
	}
	if dpi, ok := readDPI(converted); ok {
		meta.DPI = dpi
	}
	return meta
}

// EncodeBase64 encodes raw bytes for JSON transport.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 reverses EncodeBase64.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("convert: decode base64: %w", err)
	}
	return b, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
