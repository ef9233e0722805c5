// Package sentinel fetches true-colour Sentinel-2 imagery for a bounding box
// from the Copernicus Data Space process API.
package sentinel

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/erosion-api/internal/resilience"
)

// DefaultProcessURL is the Copernicus Data Space process API endpoint.
const DefaultProcessURL = "https://sh.dataspace.copernicus.eu/api/v1/process"

const crsWGS84 = "http://www.opengis.net/def/crs/EPSG/0/4326"

const dataURLPrefix = "data:image/png;base64,"

// fallbackWindow is used when the requested date range cannot be parsed.
const fallbackWindow = 180 * 24 * time.Hour

const trueColorEvalscript = `//VERSION=3
function setup() {
  return {
    input: [{ bands: ["B04", "B03", "B02"], units: "DN" }],
    output: { bands: 3, sampleType: "AUTO" }
  };
}
function evaluatePixel(sample) {
  return [2.5 * sample.B04 / 10000, 2.5 * sample.B03 / 10000, 2.5 * sample.B02 / 10000];
}`

// Client defines the imagery operations.
type Client interface {
	// FetchImage returns a PNG data URL of the least cloudy scene covering
	// bbox [minx, miny, maxx, maxy] within dateRange ("YYYY-MM-DD/YYYY-MM-DD").
	FetchImage(ctx context.Context, bbox [4]float64, dateRange string) (string, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithProcessURL sets the process API endpoint.
func WithProcessURL(u string) Option {
	return func(c *httpClient) {
		c.processURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.timeout = d
	}
}

// WithMaxAttempts sets the number of attempts per image.
func WithMaxAttempts(n int) Option {
	return func(c *httpClient) {
		c.maxAttempts = n
	}
}

// WithBackoff sets the base wait between attempts.
func WithBackoff(d time.Duration) Option {
	return func(c *httpClient) {
		c.backoff = d
	}
}

// WithImageSize sets the output width and height in pixels.
func WithImageSize(px int) Option {
	return func(c *httpClient) {
		c.imageSize = px
	}
}

// WithMaxCloudCoverage sets the cloud coverage filter in percent.
func WithMaxCloudCoverage(pct int) Option {
	return func(c *httpClient) {
		c.maxCloudCoverage = pct
	}
}

type httpClient struct {
	tokens           TokenSource
	processURL       string
	http             *http.Client
	timeout          time.Duration
	maxAttempts      int
	backoff          time.Duration
	imageSize        int
	maxCloudCoverage int
	now              func() time.Time
}

// NewClient creates an imagery client authenticating through tokens.
func NewClient(tokens TokenSource, opts ...Option) Client {
	c := &httpClient{
		tokens:           tokens,
		processURL:       DefaultProcessURL,
		http:             &http.Client{},
		timeout:          60 * time.Second,
		maxAttempts:      3,
		backoff:          time.Second,
		imageSize:        512,
		maxCloudCoverage: 20,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// permanentError stops the retry loop.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var pe *permanentError
	return !errors.As(err, &pe)
}

func (c *httpClient) FetchImage(ctx context.Context, bbox [4]float64, dateRange string) (string, error) {
	from, to := ParseDateRange(dateRange, c.now())
	payload, err := json.Marshal(c.processRequest(bbox, from, to))
	if err != nil {
		return "", eris.Wrap(err, "sentinel: marshal process request")
	}

	log := zap.L().With(zap.String("from", from), zap.String("to", to))
	log.Info("sentinel: fetching image")

	policy := resilience.Policy{
		MaxRetries: max(c.maxAttempts-1, 0),
		Backoff:    c.backoff,
		Retryable:  retryable,
		OnRetry:    resilience.LogRetry("sentinel", "process"),
	}
	img, err := resilience.DoVal(ctx, policy, func(ctx context.Context) ([]byte, error) {
		return c.attempt(ctx, payload)
	})
	if err != nil {
		if resilience.IsTimeout(err) {
			return "", eris.Wrapf(err, "sentinel: request timed out after %d attempts", c.maxAttempts)
		}
		return "", eris.Wrap(err, "sentinel: fetch image")
	}

	log.Info("sentinel: image fetched", zap.Int("bytes", len(img)))
	return dataURLPrefix + base64.StdEncoding.EncodeToString(img), nil
}

func (c *httpClient) attempt(ctx context.Context, payload []byte) ([]byte, error) {
	token, err := c.tokens.Get(ctx)
	if err != nil {
		return nil, &permanentError{err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.processURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &permanentError{err: eris.Wrap(err, "sentinel: create request")}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		zap.L().Warn("sentinel: token rejected, refreshing")
		c.tokens.Invalidate()
		return nil, eris.New("sentinel: unauthorized")
	case resp.StatusCode >= 500:
		return nil, resilience.NewTransientError(
			eris.Errorf("sentinel: server error %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, &permanentError{err: eris.Errorf("sentinel: request failed: %d - %s", resp.StatusCode, string(body))}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, eris.Errorf("sentinel: unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

type processRequest struct {
	Input      processInput  `json:"input"`
	Output     processOutput `json:"output"`
	Evalscript string        `json:"evalscript"`
}

type processInput struct {
	Bounds struct {
		BBox       [4]float64        `json:"bbox"`
		Properties map[string]string `json:"properties"`
	} `json:"bounds"`
	Data []processData `json:"data"`
}

type processData struct {
	Type       string     `json:"type"`
	DataFilter dataFilter `json:"dataFilter"`
}

type dataFilter struct {
	TimeRange struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"timeRange"`
	MaxCloudCoverage int    `json:"maxCloudCoverage"`
	MosaickingOrder  string `json:"mosaickingOrder"`
}

type processOutput struct {
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Responses []processResponse `json:"responses"`
}

type processResponse struct {
	Identifier string            `json:"identifier"`
	Format     map[string]string `json:"format"`
}

func (c *httpClient) processRequest(bbox [4]float64, from, to string) processRequest {
	var in processInput
	in.Bounds.BBox = bbox
	in.Bounds.Properties = map[string]string{"crs": crsWGS84}

	filter := dataFilter{MaxCloudCoverage: c.maxCloudCoverage, MosaickingOrder: "leastCC"}
	filter.TimeRange.From = from
	filter.TimeRange.To = to
	in.Data = []processData{{Type: "S2L2A", DataFilter: filter}}

	return processRequest{
		Input: in,
		Output: processOutput{
			Width:  c.imageSize,
			Height: c.imageSize,
			Responses: []processResponse{{
				Identifier: "default",
				Format:     map[string]string{"type": "image/png"},
			}},
		},
		Evalscript: trueColorEvalscript,
	}
}

// ParseDateRange converts "YYYY-MM-DD/YYYY-MM-DD" into an inclusive pair of
// RFC 3339 timestamps. A malformed range falls back to the 180 days before
// now.
func ParseDateRange(dateRange string, now time.Time) (string, string) {
	start, end, ok := strings.Cut(dateRange, "/")
	if ok {
		_, errFrom := time.Parse(time.DateOnly, start)
		_, errTo := time.Parse(time.DateOnly, end)
		if errFrom == nil && errTo == nil {
			return start + "T00:00:00Z", end + "T23:59:59Z"
		}
	}
	zap.L().Warn("sentinel: invalid date range, using last 180 days", zap.String("date_range", dateRange))
	now = now.UTC()
	return now.Add(-fallbackWindow).Format(time.RFC3339), now.Format(time.RFC3339)
}

