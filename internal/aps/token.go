package aps

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// A cached token is refreshed once it is within this buffer of its expiry,
// so an in-flight upload never rides a token about to lapse.
const tokenRefreshBuffer = 5 * time.Minute

// Scope tiers. The read/write set drives uploads and translation jobs; the
// viewer set is the only thing ever handed to untrusted clients.
var (
	scopesReadWrite = []string{"bucket:create", "bucket:read", "data:read", "data:write", "data:create"}
	scopesViewer    = []string{"viewables:read"}
)

type tokenCache struct {
	mu     sync.Mutex
	token  string
	expiry time.Time
}

// ViewerToken is a read-only credential safe to expose to viewer clients.
type ViewerToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Token returns a read/write bearer token, refreshing the cache when needed.
func (c *Client) Token(ctx context.Context) (string, error) {
	token, _, err := c.cachedToken(ctx, c.rwCache, scopesReadWrite)
	return token, err
}

// ViewerTokenFor returns a viewables-only token for untrusted clients.
func (c *Client) ViewerTokenFor(ctx context.Context) (*ViewerToken, error) {
	token, expiry, err := c.cachedToken(ctx, c.viewerCache, scopesViewer)
	if err != nil {
		return nil, err
	}
	return &ViewerToken{AccessToken: token, ExpiresAt: expiry}, nil
}

// cachedToken serves from cache while the entry is comfortably fresh and
// otherwise replaces it wholesale under the cache lock.
func (c *Client) cachedToken(ctx context.Context, cache *tokenCache, scopes []string) (string, time.Time, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	now := c.now()
	if cache.token != "" && now.Add(tokenRefreshBuffer).Before(cache.expiry) {
		return cache.token, cache.expiry, nil
	}

	token, ttl, err := c.fetchToken(ctx, scopes)
	if err != nil {
		return "", time.Time{}, err
	}
	cache.token = token
	cache.expiry = now.Add(ttl)
	c.logger.Debug().Strs("scopes", scopes).Time("expiry", cache.expiry).Msg("aps: token refreshed")
	return cache.token, cache.expiry, nil
}

// fetchToken performs the two-legged client-credentials exchange.
func (c *Client) fetchToken(ctx context.Context, scopes []string) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", strings.Join(scopes, " "))

	endpoint := c.baseURL + "/authentication/v2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("aps: build token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("aps: token request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("aps: read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("aps: token status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", 0, fmt.Errorf("aps: decode token response: %w", err)
	}
	if decoded.AccessToken == "" {
		return "", 0, fmt.Errorf("aps: empty access token")
	}
	return decoded.AccessToken, time.Duration(decoded.ExpiresIn) * time.Second, nil
}
