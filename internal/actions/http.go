package actions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/e-m-dev/remedy/internal/models"
)

// HTTPExecutor invokes an HTTP endpoint, typically a remediation webhook or a
// service admin API.
//
// Config: url (required), method (default GET), body, content_type,
// expect_status (default 200), headers (map).
type HTTPExecutor struct {
	client *http.Client
}

func NewHTTPExecutor() *HTTPExecutor {
	return &HTTPExecutor{
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (e *HTTPExecutor) Kind() models.ActionKind {
	return models.ActionHTTP
}

func (e *HTTPExecutor) Execute(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
	url := stringConfig(step, "url", "")
	if url == "" {
		return "", fmt.Errorf("http step %q: url is required", step.ID)
	}

	method := strings.ToUpper(stringConfig(step, "method", http.MethodGet))
	body := stringConfig(step, "body", "")

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	if contentType := stringConfig(step, "content_type", ""); contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if headers, ok := step.Config["headers"].(map[string]interface{}); ok {
		for key, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(key, s)
			}
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	expected := intConfig(step, "expect_status", http.StatusOK)
	if resp.StatusCode != expected {
		return "", fmt.Errorf("unexpected status %d (want %d): %s",
			resp.StatusCode, expected, strings.TrimSpace(string(responseBody)))
	}

	return strings.TrimSpace(string(responseBody)), nil
}
