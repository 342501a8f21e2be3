// Package provider adapts the external health-data source. Any transport
// failure is downgraded to an empty result: absence of health-platform
// access is an expected runtime state, not an error.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/samebrave/StepScape/internal/domain"
)

// Client fetches raw step intervals over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	zone    *time.Location
	logger  *log.Logger
}

// Option configures optional Client behaviour.
type Option func(*Client)

// WithLogger overrides the logger used to report degraded fetches.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient constructs a Client against baseURL, computing day boundaries
// in zone.
func NewClient(baseURL string, timeout time.Duration, zone *time.Location, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		zone:    zone,
		logger:  log.New(log.Writer(), "[provider] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type intervalPayload struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Count     int       `json:"count"`
}

// FetchIntervals returns the intervals recorded between the from and to
// calendar dates, inclusive. The request covers the half-open instant range
// [from 00:00, to+1d 00:00). Unreachable or misbehaving sources yield an
// empty result, indistinguishable from genuinely zero data.
func (c *Client) FetchIntervals(ctx context.Context, userID string, from, to time.Time) []domain.StepInterval {
	start := domain.StartOfDay(from, c.zone)
	end := domain.StartOfDay(to, c.zone).AddDate(0, 0, 1)

	endpoint := fmt.Sprintf("%s/v1/users/%s/step-intervals?start=%s&end=%s",
		c.baseURL,
		url.PathEscape(userID),
		url.QueryEscape(start.Format(time.RFC3339)),
		url.QueryEscape(end.Format(time.RFC3339)),
	)

	timer := startFetchTimer()
	defer timer.done()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return c.degrade(userID, fmt.Errorf("build request: %w", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return c.degrade(userID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.degrade(userID, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var payload []intervalPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return c.degrade(userID, fmt.Errorf("decode response: %w", err))
	}

	intervals := make([]domain.StepInterval, 0, len(payload))
	for _, item := range payload {
		intervals = append(intervals, domain.StepInterval{
			Start: item.StartTime,
			End:   item.EndTime,
			Count: item.Count,
		})
	}
	return intervals
}

func (c *Client) degrade(userID string, err error) []domain.StepInterval {
	c.logger.Printf("fetch degraded to empty (user=%s): %v", userID, err)
	recordDegradedFetch()
	return nil
}
