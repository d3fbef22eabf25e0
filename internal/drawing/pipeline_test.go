package drawing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"lumenworks/internal/aps"
	"lumenworks/internal/convert"
	"lumenworks/internal/progress"
)

// worldTransport plays both the image CDN and the staging service.
type worldTransport struct {
	imageBody []byte
	uploads   int
}

func (w *worldTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	path := req.URL.Path
	switch {
	case req.URL.Host == "cdn.example.com":
		return binaryResponse(http.StatusOK, w.imageBody), nil
	case strings.HasSuffix(path, "/authentication/v2/token"):
		return jsonResponse(http.StatusOK, map[string]any{"access_token": "tok", "expires_in": 3600}), nil
	case strings.HasSuffix(path, "/details"):
		return jsonResponse(http.StatusOK, map[string]any{"bucketKey": "b"}), nil
	case req.Method == http.MethodPut && strings.Contains(path, "/objects/"):
		w.uploads++
		return jsonResponse(http.StatusOK, map[string]any{"objectId": "urn:adsk.objects:os.object:b/x"}), nil
	case strings.HasSuffix(path, "/designdata/job"):
		return jsonResponse(http.StatusOK, map[string]any{"result": "created"}), nil
	}
	return binaryResponse(http.StatusNotFound, []byte("not found")), nil
}

func jsonResponse(status int, payload any) *http.Response {
	body, _ := json.Marshal(payload)
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body))}
}

func binaryResponse(status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode:    status,
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
	}
}

type stubGenerator struct {
	binary []byte
	err    error
}

func (g stubGenerator) Generate(context.Context, json.RawMessage) ([]byte, error) {
	return g.binary, g.err
}

func pngFixture(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 40, B: 40, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func newTestPipeline(t *testing.T, world *worldTransport, gen stubGenerator) (*Pipeline, *progress.Store) {
	t.Helper()
	httpClient := &http.Client{Transport: world}
	stager, err := aps.NewClient(aps.Options{
		ClientID:     "id",
		ClientSecret: "secret",
		Bucket:       "b",
		HTTPClient:   httpClient,
	})
	if err != nil {
		t.Fatalf("stager: %v", err)
	}
	store := progress.NewStore(progress.Options{
		After: func(time.Duration, func()) {},
	})
	return &Pipeline{
		Converter: convert.NewConverter(convert.Options{HTTPClient: httpClient}),
		Generator: gen,
		Stager:    stager,
		Progress:  store,
	}, store
}

func TestPipelineRunsToCompletion(t *testing.T) {
	world := &worldTransport{imageBody: pngFixture(t)}
	pipeline, store := newTestPipeline(t, world, stubGenerator{binary: []byte("dxf-bytes")})

	store.Create("job-1", "Pendant symbol")
	pipeline.Run(context.Background(), "job-1", Request{
		Name: "Pendant symbol",
		Spec: json.RawMessage(`{"template":"pendant"}`),
		Images: []ImageRef{
			{Filename: "photo.jpg", URL: "https://cdn.example.com/photo.jpg"},
		},
	})

	job, ok := store.Snapshot("job-1")
	if !ok {
		t.Fatalf("job missing")
	}
	if job.Status != progress.StatusComplete {
		t.Fatalf("status = %q, events %+v", job.Status, job.Events)
	}
	if world.uploads != 1 {
		t.Fatalf("uploads = %d, want 1", world.uploads)
	}
	if job.Result == nil || string(job.Result.Raw) != "dxf-bytes" {
		t.Fatalf("raw payload not captured")
	}
	summary, ok := job.Result.Summary.(Summary)
	if !ok {
		t.Fatalf("summary type = %T", job.Result.Summary)
	}
	if summary.URN == "" || summary.ImageCount != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Filename != "Pendant_symbol.dxf" {
		t.Fatalf("filename = %q", summary.Filename)
	}

	seen := map[progress.Phase]bool{}
	for _, event := range job.Events {
		seen[event.Phase] = true
	}
	for _, phase := range []progress.Phase{progress.PhaseImages, progress.PhaseScript, progress.PhaseAPS, progress.PhaseComplete} {
		if !seen[phase] {
			t.Fatalf("phase %q never published (events %+v)", phase, job.Events)
		}
	}
}

func TestPipelineFailsWhenGeneratorFails(t *testing.T) {
	world := &worldTransport{imageBody: pngFixture(t)}
	pipeline, store := newTestPipeline(t, world, stubGenerator{err: errors.New("template not found")})

	store.Create("job-1", "n")
	pipeline.Run(context.Background(), "job-1", Request{
		Name: "n",
		Spec: json.RawMessage(`{}`),
	})

	job, _ := store.Snapshot("job-1")
	if job.Status != progress.StatusError {
		t.Fatalf("status = %q, want error", job.Status)
	}
	last := job.Events[len(job.Events)-1]
	if last.Phase != progress.PhaseError || !strings.Contains(last.Detail, "template not found") {
		t.Fatalf("terminal event = %+v", last)
	}
}

func TestPipelineFailsWhenNoImageConverts(t *testing.T) {
	world := &worldTransport{} // cdn returns empty 200 bodies that fail decode
	pipeline, store := newTestPipeline(t, world, stubGenerator{binary: []byte("dxf")})

	store.Create("job-1", "n")
	pipeline.Run(context.Background(), "job-1", Request{
		Name:   "n",
		Spec:   json.RawMessage(`{}`),
		Images: []ImageRef{{Filename: "a.png", URL: "https://cdn.example.com/a.png"}},
	})

	job, _ := store.Snapshot("job-1")
	if job.Status != progress.StatusError {
		t.Fatalf("status = %q, want error", job.Status)
	}
}

func TestDesignFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Pendant symbol", "Pendant_symbol.dxf"},
		{"  ", "drawing.dxf"},
		{"a/b\\c", "a_b_c.dxf"},
	}
	for _, tc := range tests {
		if got := designFilename(tc.in); got != tc.want {
			t.Fatalf("designFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
