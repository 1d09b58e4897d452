// Package client talks to a running assessments API over HTTP. It gives a
// remote observer the same Dispatcher and Subscriber a co-located one gets
// from the store, so the scan scheduler runs unchanged on either side.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/domain/repository"
	"github.com/MaanVader/Chack/handler"
	"github.com/MaanVader/Chack/internal/scan"
	"github.com/MaanVader/Chack/internal/worker"
	"github.com/MaanVader/Chack/observability/types"
)

// APIError is a failed response returned by the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Client calls the API's request-type endpoints.
type Client struct {
	baseURL      string
	http         *http.Client
	config       config.HTTPConfig
	pollInterval time.Duration
	logger       types.Logger
}

// New creates a client for the API at baseURL.
func New(baseURL string, cfg config.HTTPConfig, pollInterval time.Duration, logger types.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "chack/1.0"
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: cfg.Timeout},
		config:       cfg,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

var (
	_ scan.Dispatcher       = (*Client)(nil)
	_ repository.Subscriber = (*Client)(nil)
)

// Create creates an assessment and returns its id.
func (c *Client) Create(ctx context.Context, params assessment.CreateParams) (string, error) {
	var out worker.CreatedAssessment
	if _, err := c.call(ctx, worker.TypeAssessmentCreate, params, &out); err != nil {
		return "", err
	}
	return out.AssessmentID, nil
}

// Get fetches an assessment. Unknown ids return repository.ErrNotFound.
func (c *Client) Get(ctx context.Context, id string) (*assessment.Assessment, error) {
	var a assessment.Assessment
	found, err := c.call(ctx, worker.TypeAssessmentGet, worker.AssessmentRef{AssessmentID: id}, &a)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("assessment %s: %w", id, repository.ErrNotFound)
	}
	return &a, nil
}

// RunScan implements scan.Dispatcher.
func (c *Client) RunScan(ctx context.Context, assessmentID, userID string) error {
	_, err := c.call(ctx, worker.TypeScanRun, scan.RunScanRequest{
		AssessmentID: assessmentID,
		UserID:       userID,
	}, nil)
	return err
}

// Subscribe implements repository.Subscriber by polling assessment.get.
// Only snapshots whose status or update time changed are delivered. Polling
// stops after a terminal snapshot; the channel closes when ctx is done.
func (c *Client) Subscribe(ctx context.Context, id string) (<-chan assessment.Assessment, error) {
	first, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ch := make(chan assessment.Assessment, 1)
	ch <- *first

	go c.poll(ctx, id, *first, ch)

	return ch, nil
}

func (c *Client) poll(ctx context.Context, id string, last assessment.Assessment, ch chan assessment.Assessment) {
	defer close(ch)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for !last.IsTerminal() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := c.Get(ctx, id)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn(ctx, "Assessment poll failed", types.Fields{
					"assessment_id": id,
					"error":         err.Error(),
				})
			}
			continue
		}
		if snap.Status == last.Status && snap.UpdatedAt.Equal(last.UpdatedAt) {
			continue
		}

		last = *snap
		// Replace an unread snapshot so the reader never sees an older one.
		select {
		case <-ch:
		default:
		}
		ch <- last
	}

	<-ctx.Done()
}

// call posts payload as requestType and decodes the response data into out.
// It reports false when the API answered with empty data.
func (c *Client) call(ctx context.Context, requestType string, payload, out interface{}) (bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal %s payload: %w", requestType, err)
	}

	var (
		httpResp *http.Response
		lastErr  error
	)

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 200 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+requestType, bytes.NewReader(body))
		if err != nil {
			return false, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", c.config.UserAgent)
		if id, ok := ctx.Value(types.TraceIDKey).(string); ok && id != "" {
			req.Header.Set("X-Trace-ID", id)
		}

		httpResp, lastErr = c.http.Do(req)
		if lastErr == nil && httpResp.StatusCode < 500 {
			break
		}
		if attempt == c.config.MaxRetries || ctx.Err() != nil {
			break
		}
		if lastErr == nil {
			httpResp.Body.Close()
		}
	}

	if lastErr != nil {
		return false, fmt.Errorf("%s failed after %d attempts: %w", requestType, c.config.MaxRetries+1, lastErr)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read %s response: %w", requestType, err)
	}

	var resp handler.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false, fmt.Errorf("failed to decode %s response (status %d): %w", requestType, httpResp.StatusCode, err)
	}

	if !resp.Success {
		apiErr := &APIError{StatusCode: httpResp.StatusCode, Code: handler.CodeInternal, Message: "request failed"}
		if resp.Error != nil {
			apiErr.Code = resp.Error.Code
			apiErr.Message = resp.Error.Message
			apiErr.Retryable = resp.Error.Retryable
		}
		if apiErr.Code == handler.CodeNotFound {
			return false, fmt.Errorf("%s: %w", apiErr.Error(), repository.ErrNotFound)
		}
		return false, apiErr
	}

	if len(resp.Data) == 0 || bytes.Equal(resp.Data, []byte("null")) {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return false, fmt.Errorf("failed to decode %s data: %w", requestType, err)
		}
	}
	return true, nil
}
