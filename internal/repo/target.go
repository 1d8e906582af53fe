package repo

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	mrand "math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// messageKeys is the fixed priority order for locating the reply text in a
// structured target response.
var messageKeys = []string{"reply", "response", "message", "text", "content", "body"}

// TargetRequest is the payload POSTed to the target system for one turn.
type TargetRequest struct {
	Message    string `json:"message"`
	CampaignID string `json:"campaign_id,omitempty"`
	TurnID     string `json:"turn_id,omitempty"`
	AgentType  string `json:"agent_type,omitempty"`
}

// TargetResponse is the normalized reply from the target system.
type TargetResponse struct {
	Message string
	// Echo marks a response that structurally repeats the input verbatim.
	Echo    bool
	TraceID string
}

// RetryConfig bounds the transient-error retry loop around target calls.
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryConfig returns the standard target retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  2,
		BaseBackoff: 200 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
	}
}

// TargetClient POSTs turn inputs to the system under evaluation. Each call
// carries its own timeout, distinct from the campaign deadline, and a
// bounded exponential-backoff retry for transient network conditions.
type TargetClient struct {
	endpoint   string
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
}

// NewTargetClient constructs a client for the configured target endpoint.
func NewTargetClient(endpoint string, timeout time.Duration, retry RetryConfig, logger *slog.Logger) *TargetClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TargetClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry,
		logger:     logger,
	}
}

// Send posts the request with tracing propagation attached and returns the
// normalized response along with the trace id captured for this turn.
func (c *TargetClient) Send(ctx context.Context, req TargetRequest) (TargetResponse, error) {
	if c.endpoint == "" {
		return TargetResponse{}, fmt.Errorf("target endpoint not configured")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return TargetResponse{}, fmt.Errorf("encode target request: %w", err)
	}

	traceID := NewTraceID()
	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Debug("retrying target call",
				slog.Int("attempt", attempt), slog.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return TargetResponse{}, ctx.Err()
			}
		}

		body, status, err := c.post(ctx, payload, traceID)
		if err != nil {
			lastErr = err
			if isTransient(err) {
				continue
			}
			return TargetResponse{}, err
		}
		if retryableStatus(status) {
			lastErr = fmt.Errorf("target returned status %d", status)
			continue
		}
		if status < 200 || status >= 300 {
			return TargetResponse{}, fmt.Errorf("target returned status %d", status)
		}

		response := parseTargetBody(body)
		response.TraceID = traceID
		response.Echo = isEcho(req.Message, response.Message)
		return response, nil
	}
	return TargetResponse{}, fmt.Errorf("target call failed after %d attempts: %w",
		c.retry.MaxRetries+1, lastErr)
}

func (c *TargetClient) post(ctx context.Context, payload []byte, traceID string) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("build target request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Amzn-Trace-Id", fmt.Sprintf("Root=%s;Sampled=1", traceID))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("read target response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *TargetClient) backoff(attempt int) time.Duration {
	backoff := float64(c.retry.BaseBackoff) * math.Pow(2, float64(attempt-1))
	if max := float64(c.retry.MaxBackoff); c.retry.MaxBackoff > 0 && backoff > max {
		backoff = max
	}
	jitter := mrand.Float64() * backoff * 0.1
	return time.Duration(backoff + jitter)
}

// parseTargetBody locates the reply text in a JSON object using the fixed
// key priority, falling back to the raw text body.
func parseTargetBody(body []byte) TargetResponse {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err == nil {
		for _, key := range messageKeys {
			if value, ok := decoded[key].(string); ok && value != "" {
				return TargetResponse{Message: value}
			}
		}
	}
	return TargetResponse{Message: strings.TrimSpace(string(body))}
}

func isEcho(input, response string) bool {
	if input == "" || response == "" {
		return false
	}
	return strings.TrimSpace(input) == strings.TrimSpace(response)
}

func retryableStatus(status int) bool {
	switch {
	case status >= 500 && status < 600:
		return true
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// isTransient reports whether an error looks like a recoverable network
// condition worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isTransient(urlErr.Err) || urlErr.Timeout()
	}
	msg := strings.ToLower(err.Error())
	for _, keyword := range []string{"connection refused", "connection reset", "eof", "no such host"} {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}

// NewTraceID mints an X-Ray format trace id: version, epoch seconds in hex,
// and 96 random bits.
func NewTraceID() string {
	random := make([]byte, 12)
	_, _ = rand.Read(random)
	return fmt.Sprintf("1-%08x-%s", time.Now().Unix(), hex.EncodeToString(random))
}
