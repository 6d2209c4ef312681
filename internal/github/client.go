// Package github is the outbound provider client: it posts handler results
// back as comments and labels and fetches pull-request diffs.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"repogator/internal/platform/metrics"
	derrors "repogator/pkg/domain-errors"
)

// maxDiffChars caps fetched diffs so downstream context stays bounded.
const maxDiffChars = 65000

const maxAttempts = 3

// Client calls the provider's REST API with bounded retry for transient
// failures. Authentication, forbidden, and not-found responses are never
// retried and propagate immediately.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New constructs a provider client.
func New(baseURL, token string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		metrics:    m,
	}
}

// PostComment posts a markdown comment to an issue or pull request.
func (c *Client) PostComment(ctx context.Context, repo string, number int, body string) error {
	url := fmt.Sprintf("%s/repos/%s/issues/%d/comments", c.baseURL, repo, number)
	_, err := c.doWithRetry(ctx, http.MethodPost, url, map[string]any{"body": body}, "")
	if err != nil {
		return fmt.Errorf("post comment: %w", err)
	}
	return nil
}

// AddLabels adds labels to an issue or pull request.
func (c *Client) AddLabels(ctx context.Context, repo string, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	url := fmt.Sprintf("%s/repos/%s/issues/%d/labels", c.baseURL, repo, number)
	_, err := c.doWithRetry(ctx, http.MethodPost, url, map[string]any{"labels": labels}, "")
	if err != nil {
		return fmt.Errorf("add labels: %w", err)
	}
	return nil
}

// GetPRDiff fetches a pull request's unified diff, truncated to a fixed
// character budget.
func (c *Client) GetPRDiff(ctx context.Context, repo string, number int) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/pulls/%d", c.baseURL, repo, number)
	raw, err := c.doWithRetry(ctx, http.MethodGet, url, nil, "application/vnd.github.v3.diff")
	if err != nil {
		return "", fmt.Errorf("get pr diff: %w", err)
	}
	diff := string(raw)
	if len(diff) > maxDiffChars {
		cut := maxDiffChars
		// Never split a multi-byte rune at the cap.
		for cut > 0 && !utf8.RuneStart(diff[cut]) {
			cut--
		}
		diff = diff[:cut]
	}
	return diff, nil
}

// doWithRetry performs one API call with exponential backoff. The delay
// doubles each attempt with a small fixed offset.
func (c *Client) doWithRetry(ctx context.Context, method, url string, body any, accept string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			c.metrics.PublishRetries.Inc()
			delay := time.Duration(1<<(attempt-1))*time.Second + 500*time.Millisecond
			c.logger.WarnContext(ctx, "provider call failed, retrying",
				"url", url,
				"attempt", attempt,
				"delay", delay.String(),
				"error", lastErr.Error(),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		raw, err := c.do(ctx, method, url, body, accept)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, method, url string, body any, accept string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if accept != "" {
		req.Header.Set("Accept", accept)
	} else {
		req.Header.Set("Accept", "application/vnd.github+json")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, derrors.New(derrors.CodeUnauthorized, "provider rejected credentials")
	case resp.StatusCode == http.StatusForbidden:
		return nil, derrors.New(derrors.CodeUnauthorized, "provider forbade the operation")
	case resp.StatusCode == http.StatusNotFound:
		return nil, derrors.New(derrors.CodeNotFound, "provider resource not found")
	default:
		return nil, derrors.New(derrors.CodeUnavailable,
			fmt.Sprintf("provider returned status %d", resp.StatusCode))
	}
}

// retryable reports whether an error is worth another attempt. Credential and
// not-found failures are deterministic; everything else is assumed transient.
func retryable(err error) bool {
	return !derrors.Is(err, derrors.CodeUnauthorized) && !derrors.Is(err, derrors.CodeNotFound)
}
