package sentinel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTokenURL is the Copernicus Data Space identity endpoint.
const DefaultTokenURL = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"

// defaultTokenTTL applies when the identity server omits expires_in.
const defaultTokenTTL = 3600 * time.Second

// ErrMissingCredentials is returned when no client ID or secret is configured.
var ErrMissingCredentials = eris.New("sentinel: missing Copernicus credentials; set sentinel.client_id and sentinel.client_secret")

// TokenSource provides bearer tokens for the process API.
type TokenSource interface {
	// Get returns a cached token or fetches a new one.
	Get(ctx context.Context) (string, error)
	// Invalidate drops the cached token so the next Get fetches a new one.
	Invalidate()
}

// TokenOption configures a CachedTokenSource.
type TokenOption func(*CachedTokenSource)

// WithTokenURL sets the identity endpoint.
func WithTokenURL(u string) TokenOption {
	return func(s *CachedTokenSource) {
		s.tokenURL = u
	}
}

// WithTokenHTTPClient sets the HTTP client used for token requests.
func WithTokenHTTPClient(hc *http.Client) TokenOption {
	return func(s *CachedTokenSource) {
		s.http = hc
	}
}

// CachedTokenSource fetches client-credentials tokens and caches them until
// shortly before they expire. Concurrent refreshes share one request.
type CachedTokenSource struct {
	clientID     string
	clientSecret string
	tokenURL     string
	http         *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
	group   singleflight.Group
	now     func() time.Time
}

// NewTokenSource creates a token source for the given client credentials.
func NewTokenSource(clientID, clientSecret string, opts ...TokenOption) *CachedTokenSource {
	s := &CachedTokenSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     DefaultTokenURL,
		http:         &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Get returns the cached token while it is valid.
func (s *CachedTokenSource) Get(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.token != "" && s.now().Before(s.expires) {
		tok := s.token
		s.mu.Unlock()
		return tok, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do("token", func() (any, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token.
func (s *CachedTokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expires = time.Time{}
	zap.L().Debug("sentinel: token cache cleared")
}

func (s *CachedTokenSource) fetch(ctx context.Context) (string, error) {
	if s.clientID == "" || s.clientSecret == "" {
		return "", ErrMissingCredentials
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "sentinel: create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "sentinel: token request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "sentinel: read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("sentinel: authenticate: status %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", eris.Wrap(err, "sentinel: unmarshal token response")
	}
	if tr.AccessToken == "" {
		return "", eris.New("sentinel: token response has no access_token")
	}

	ttl := defaultTokenTTL
	if tr.ExpiresIn > 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}
	// Treat the token as expired up to a minute early.
	expires := s.now().Add(ttl - min(time.Minute, ttl/10))

	s.mu.Lock()
	s.token = tr.AccessToken
	s.expires = expires
	s.mu.Unlock()

	zap.L().Info("sentinel: token acquired", zap.Duration("expires_in", ttl))
	return tr.AccessToken, nil
}
