// Package aps stages generated drawings with the Autodesk Platform Services
// object store and requests viewable translations from Model Derivative.
package aps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lumenworks/internal/infra"
)

// ErrMissingCredentials indicates the client was configured without an app id/secret.
var ErrMissingCredentials = errors.New("aps: client id and secret are required")

// Options configures the APS client.
type Options struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	Bucket       string
	Region       string
	HTTPClient   *http.Client
	Logger       *infra.Logger
	Now          func() time.Time
}

// Client performs HTTP calls against the APS OSS and Model Derivative APIs.
type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	bucket       string
	region       string
	httpClient   *http.Client
	logger       *infra.Logger
	now          func() time.Time

	rwCache     *tokenCache
	viewerCache *tokenCache
}

// TranslationStatus is the polled state of a derivative translation.
type TranslationStatus struct {
	Status   string   `json:"status"`
	Progress string   `json:"progress"`
	Messages []string `json:"messages,omitempty"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.ClientID) == "" || strings.TrimSpace(opts.ClientSecret) == "" {
		return nil, ErrMissingCredentials
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://developer.api.autodesk.com"
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, errors.New("aps: bucket is required")
	}
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		region = "US"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
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
		clientID:     strings.TrimSpace(opts.ClientID),
		clientSecret: strings.TrimSpace(opts.ClientSecret),
		baseURL:      baseURL,
		bucket:       bucket,
		region:       region,
		httpClient:   httpClient,
		logger:       logger,
		now:          now,
		rwCache:      &tokenCache{},
		viewerCache:  &tokenCache{},
	}, nil
}

// EnsureBucket probes for the staging bucket and creates it on a not-found.
// Creation uses the transient retention policy; any other probe failure
// propagates untouched.
func (c *Client) EnsureBucket(ctx context.Context) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	probe := c.baseURL + "/oss/v2/buckets/" + url.PathEscape(c.bucket) + "/details"
	status, raw, err := c.do(ctx, http.MethodGet, probe, token, "", nil)
	if err != nil {
		return err
	}
	if status < 300 {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("aps: bucket probe status %d: %s", status, strings.TrimSpace(string(raw)))
	}

	body, err := json.Marshal(map[string]string{
		"bucketKey": c.bucket,
		"policyKey": "transient",
	})
	if err != nil {
		return fmt.Errorf("aps: encode bucket request: %w", err)
	}
	status, raw, err = c.do(ctx, http.MethodPost, c.baseURL+"/oss/v2/buckets", token, "application/json", body)
	if err != nil {
		return err
	}
	// 409 means another worker won the race, which is fine.
	if status >= 300 && status != http.StatusConflict {
		return fmt.Errorf("aps: create bucket status %d: %s", status, strings.TrimSpace(string(raw)))
	}
	c.logger.Info().Str("bucket", c.bucket).Msg("aps: transient bucket ready")
	return nil
}

// uploadObject PUTs the payload and returns the opaque object identifier.
func (c *Client) uploadObject(ctx context.Context, objectName string, payload []byte) (string, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return "", err
	}
	endpoint := c.baseURL + "/oss/v2/buckets/" + url.PathEscape(c.bucket) + "/objects/" + url.PathEscape(objectName)
	status, raw, err := c.do(ctx, http.MethodPut, endpoint, token, "application/octet-stream", payload)
	if err != nil {
		return "", err
	}
	if status >= 300 {
		return "", fmt.Errorf("aps: upload status %d: %s", status, strings.TrimSpace(string(raw)))
	}
	var decoded struct {
		ObjectID string `json:"objectId"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("aps: decode upload response: %w", err)
	}
	if decoded.ObjectID == "" {
		return "", errors.New("aps: upload response missing objectId")
	}
	return decoded.ObjectID, nil
}

// requestTranslation asks Model Derivative for 2D and 3D viewables of the urn.
func (c *Client) requestTranslation(ctx context.Context, urn, rootFilename string) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}
	input := map[string]any{"urn": urn}
	if rootFilename != "" {
		input["rootFilename"] = rootFilename
		input["compressedUrn"] = true
	}
	body, err := json.Marshal(map[string]any{
		"input": input,
		"output": map[string]any{
			"formats": []map[string]any{
				{"type": "svf", "views": []string{"2d", "3d"}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("aps: encode translation request: %w", err)
	}
	endpoint := c.baseURL + "/modelderivative/v2/designdata/job"
	status, raw, err := c.do(ctx, http.MethodPost, endpoint, token, "application/json", body)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("aps: translation status %d: %s", status, strings.TrimSpace(string(raw)))
	}
	return nil
}

// Translation reports the manifest state for a staged urn. A 404 from the
// service means the translation has not started and is reported as pending,
// not as a failure.
func (c *Client) Translation(ctx context.Context, urn string) (*TranslationStatus, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	endpoint := c.baseURL + "/modelderivative/v2/designdata/" + url.PathEscape(urn) + "/manifest"
	status, raw, err := c.do(ctx, http.MethodGet, endpoint, token, "", nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return &TranslationStatus{Status: "pending", Progress: "0%"}, nil
	}
	if status >= 300 {
		return nil, fmt.Errorf("aps: manifest status %d: %s", status, strings.TrimSpace(string(raw)))
	}

	var decoded struct {
		Status      string `json:"status"`
		Progress    string `json:"progress"`
		Derivatives []struct {
			Messages []struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"messages"`
		} `json:"derivatives"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("aps: decode manifest: %w", err)
	}
	out := &TranslationStatus{Status: decoded.Status, Progress: decoded.Progress}
	for _, derivative := range decoded.Derivatives {
		for _, msg := range derivative.Messages {
			if text := strings.TrimSpace(msg.Message); text != "" {
				out.Messages = append(out.Messages, text)
			}
		}
	}
	return out, nil
}

// do runs one bearer-authenticated request and returns status and body.
func (c *Client) do(ctx context.Context, method, endpoint, token, contentType string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("aps: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method == http.MethodPost && strings.Contains(endpoint, "/oss/") {
		req.Header.Set("x-ads-region", c.region)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("aps: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("aps: read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}
