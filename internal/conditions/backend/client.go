// Package backend is the HTTP client for the conditions backend service.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/weatherroute/weatherroute/internal/conditions"
	"github.com/weatherroute/weatherroute/internal/provider/resilience"
)

const (
	// ProviderName identifies this conditions provider.
	ProviderName = "conditions-backend"

	// DefaultBaseURL is the backend base URL used when none is configured.
	DefaultBaseURL = "http://localhost:8081"

	conditionsPath = "/weather/conditions"

	// maxBodyBytes bounds a single conditions response.
	maxBodyBytes = 8 << 20
)

// ErrUnexpectedStatus is returned for any non-2xx response.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// ClientConfig holds configuration for the backend client.
type ClientConfig struct {
	// BaseURL is the backend base URL (optional, defaults to DefaultBaseURL).
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches conditions records from the backend.
type Client struct {
	baseURL    string
	token      string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new backend client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		baseURL:    baseURL,
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetConditions fetches the hourly record for one location and date.
func (c *Client) GetConditions(ctx context.Context, q conditions.Query) (*conditions.Record, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(q.Latitude, 'f', 6, 64))
	params.Set("longitude", strconv.FormatFloat(q.Longitude, 'f', 6, 64))
	params.Set("start_date", q.Date)
	params.Set("end_date", q.Date)
	if q.Timezone != "" {
		params.Set("timezone", q.Timezone)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+conditionsPath+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	rec, err := conditions.ParseRecord(body)
	if err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	c.logger.Debug().
		Float64("lat", q.Latitude).
		Float64("lon", q.Longitude).
		Str("date", q.Date).
		Int("hours", len(rec.Hourly.Time)).
		Msg("fetched conditions")

	return rec, nil
}

var _ conditions.Provider = (*Client)(nil)
