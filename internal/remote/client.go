// Package remote upserts step records into the per-user remote collection.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/samebrave/StepScape/internal/domain"
)

// Client writes step-log documents to the remote store over HTTP. Upserts
// are keyed by the record timestamp, so retrying a failed record always
// targets the same document.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient constructs a Client against baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient swaps the underlying HTTP client, used by tests.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.client = client
	return c
}

// Upsert writes the document at users/{userID}/step-logs/{key}. Any
// failure is reported per record as ErrRemoteSync; the caller leaves the
// record unsynced and retries on a later pass.
func (c *Client) Upsert(ctx context.Context, userID, key string, doc domain.RemoteStepLog) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encode document: %v", domain.ErrRemoteSync, err)
	}

	endpoint := fmt.Sprintf("%s/v1/users/%s/step-logs/%s",
		c.baseURL, url.PathEscape(userID), url.PathEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrRemoteSync, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRemoteSync, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: unexpected status %d", domain.ErrRemoteSync, resp.StatusCode)
	}
	return nil
}
