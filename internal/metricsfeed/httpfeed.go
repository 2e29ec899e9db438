package metricsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPFeed polls a netdata-style JSON endpoint for metric values:
// GET {base}/api/v1/metric?key=<key>&host=<host> -> {"value": 42.5}
type HTTPFeed struct {
	baseURL string
	client  *http.Client
}

type metricResponse struct {
	Value *float64 `json:"value"`
}

// NewHTTPFeed creates a feed polling the given base URL.
func NewHTTPFeed(baseURL string) *HTTPFeed {
	return &HTTPFeed{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (f *HTTPFeed) GetMetric(ctx context.Context, key, host string) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v1/metric?key=%s&host=%s",
		f.baseURL, url.QueryEscape(key), url.QueryEscape(host))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build metric request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("metric endpoint returned %d", resp.StatusCode)
	}

	var body metricResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode metric response: %w", err)
	}

	// A null value means the source has no sample yet
	if body.Value == nil {
		return 0, ErrUnavailable
	}

	return *body.Value, nil
}
