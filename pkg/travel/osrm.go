package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/leynos/wildside-engine/pkg/model"
)

// DefaultUserAgent is sent by OSRMProvider when none is configured.
const DefaultUserAgent = "wildside-engine/1"

const (
	defaultBaseRetryDelay = 500 * time.Millisecond
	defaultMaxAttempts    = 3
)

// OSRMProvider issues a single table request per call to an OSRM-style
// walking-routing service and maps its JSON durations response into a
// Matrix. It retries transient failures (429/5xx/network) with
// exponential backoff, the pattern the engine's other HTTP adapters use.
type OSRMProvider struct {
	BaseURL     string
	HTTPClient  *http.Client
	Timeout     time.Duration
	UserAgent   string
	MaxAttempts int
}

// NewOSRMProvider builds a provider with sane defaults; zero-value fields
// on the returned value may still be overridden by the caller.
func NewOSRMProvider(baseURL string) *OSRMProvider {
	return &OSRMProvider{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		HTTPClient:  &http.Client{},
		Timeout:     30 * time.Second,
		UserAgent:   DefaultUserAgent,
		MaxAttempts: defaultMaxAttempts,
	}
}

type osrmResponse struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Durations [][]*float64 `json:"durations"`
}

// GetTravelTimeMatrix implements Provider.
func (p *OSRMProvider) GetTravelTimeMatrix(ctx context.Context, points []model.Coordinate) (Matrix, error) {
	if err := validate(points); err != nil {
		return Matrix{}, err
	}

	url := p.buildURL(points)

	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	body, err := p.executeWithBackoff(ctx, url)
	if err != nil {
		return Matrix{}, err
	}

	var resp osrmResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Matrix{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if resp.Code != "" && resp.Code != "Ok" {
		return Matrix{}, fmt.Errorf("%w: %s: %s", ErrService, resp.Code, resp.Message)
	}
	if len(resp.Durations) != len(points) {
		return Matrix{}, fmt.Errorf("%w: expected %d rows, got %d", ErrParse, len(points), len(resp.Durations))
	}

	out := make([][]float64, len(points))
	for i, row := range resp.Durations {
		if len(row) != len(points) {
			return Matrix{}, fmt.Errorf("%w: row %d has %d columns, want %d", ErrParse, i, len(row), len(points))
		}
		out[i] = make([]float64, len(points))
		for j, v := range row {
			if v == nil {
				out[i][j] = MaxDuration
				continue
			}
			out[i][j] = *v
		}
	}

	return Matrix{N: len(points), Durations: out}, nil
}

func (p *OSRMProvider) timeout() time.Duration {
	if p.Timeout <= 0 {
		return 30 * time.Second
	}
	return p.Timeout
}

func (p *OSRMProvider) buildURL(points []model.Coordinate) string {
	coords := make([]string, len(points))
	for i, pt := range points {
		coords[i] = fmt.Sprintf("%g,%g", pt.Lon, pt.Lat)
	}
	return fmt.Sprintf("%s/table/v1/walking/%s", p.BaseURL, strings.Join(coords, ";"))
}

func (p *OSRMProvider) executeWithBackoff(ctx context.Context, url string) ([]byte, error) {
	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	userAgent := p.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: build request: %w", ErrNetwork, err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
			}
			lastErr = fmt.Errorf("%w: %w", ErrNetwork, err)
			if !sleepBackoff(ctx, attempt) {
				return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: status %d", ErrHTTP, resp.StatusCode)
			if !sleepBackoff(ctx, attempt) {
				return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
			}
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: status %d", ErrHTTP, resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
		}
		return body, nil
	}

	return nil, lastErr
}

func sleepBackoff(ctx context.Context, attempt int) bool {
	delay := time.Duration(math.Pow(2, float64(attempt))) * defaultBaseRetryDelay
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
