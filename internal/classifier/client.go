package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/skypro1111/voicegate/internal/spectrogram"
)

// ContentType is the media type of classification requests and responses
const ContentType = "application/msgpack"

// Client provides HTTP client functionality for classification API requests
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // Rate limiting semaphore
	observer   Observer

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains classification client configuration
type Config struct {
	Endpoint      string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	// SampleRate is sent with each request so the server can check the tensor shape.
	SampleRate int
	// Backoff is the delay before the first retry; it doubles per attempt up to 30s.
	Backoff time.Duration
	// Labels maps score indices to labels when the server returns scores only.
	Labels []string
}

// Observer receives classification statistics. *metrics.Metrics implements it.
type Observer interface {
	RecordClassificationRequest()
	RecordClassificationSuccess(durationSeconds float64, label string)
	RecordClassificationFailure(durationSeconds float64)
	RecordClassificationRetry()
}

// Request is the msgpack body sent to the classification endpoint
type Request struct {
	RequestID  string    `msgpack:"request_id"`
	SampleRate int       `msgpack:"sample_rate"`
	Shape      [4]int    `msgpack:"shape"`
	Data       []float32 `msgpack:"data"`
}

// StatusError is returned for a non-2xx response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a new classification HTTP client
func NewClient(config Config, observer Observer) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	if config.Backoff <= 0 {
		config.Backoff = time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		observer:   observer,
	}, nil
}

// Classify sends a spectrogram tensor for classification
func (c *Client) Classify(ctx context.Context, tensor *spectrogram.Tensor) (*Prediction, error) {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	body, err := msgpack.Marshal(&Request{
		RequestID:  uuid.NewString(),
		SampleRate: c.config.SampleRate,
		Shape:      tensor.Shape,
		Data:       tensor.Data,
	})
	if err != nil {
		c.recordFailure(startTime)
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				c.recordFailure(startTime)
				return nil, ctx.Err()
			}
		}

		prediction, err := c.doRequest(ctx, body)
		if err == nil {
			elapsed := time.Since(startTime)
			c.updateAvgResponseTime(elapsed)
			c.incrementSuccessRequests(elapsed, prediction.Label)
			return prediction, nil
		}

		lastErr = err

		if ctx.Err() != nil || !IsRetryable(err) {
			break
		}
	}

	c.recordFailure(startTime)
	return nil, fmt.Errorf("classification failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// backoff returns the delay before retry attempt n (n >= 1)
func (c *Client) backoff(attempt int) time.Duration {
	d := c.config.Backoff << (attempt - 1)
	if d <= 0 || d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// doRequest performs a single HTTP request to the classification API
func (c *Client) doRequest(ctx context.Context, body []byte) (*Prediction, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", ContentType)
	httpReq.Header.Set("Accept", ContentType)
	httpReq.Header.Set("User-Agent", "voicegate/1.0")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var prediction Prediction
	if err := msgpack.Unmarshal(respBody, &prediction); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if err := prediction.Resolve(c.config.Labels); err != nil {
		return nil, err
	}

	return &prediction, nil
}

// IsRetryable reports whether a failed request may succeed when repeated:
// 5xx and 429 responses, timeouts and connection errors.
func IsRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func (c *Client) recordFailure(startTime time.Time) {
	c.mu.Lock()
	c.failedRequests++
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.RecordClassificationFailure(time.Since(startTime).Seconds())
	}
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	c.totalRequests++
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.RecordClassificationRequest()
	}
}

func (c *Client) incrementSuccessRequests(elapsed time.Duration, label string) {
	c.mu.Lock()
	c.successRequests++
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.RecordClassificationSuccess(elapsed.Seconds(), label)
	}
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	c.totalRetries++
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.RecordClassificationRetry()
	}
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for active requests to complete
func (c *Client) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}

	return nil
}
