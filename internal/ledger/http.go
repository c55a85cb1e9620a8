package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ultrapreps/hypehub/internal/metrics"
	"github.com/ultrapreps/hypehub/internal/platform/retry"
)

const (
	requestTimeout   = 2 * time.Second
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
)

// HTTPClient talks to the ledger service over HTTP. Transient failures
// are retried with backoff; repeated failures open a circuit breaker so
// a down ledger cannot stall every hype award for the full timeout.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	policy  retry.Policy
}

// NewHTTPClient creates a ledger client for the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	settings := gobreaker.Settings{
		Name:    "hype-ledger",
		Timeout: breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		policy: retry.Policy{
			MaxAttempts:    3,
			InitialBackoff: 50 * time.Millisecond,
		},
	}
}

type awardRequest struct {
	FromUserID   string `json:"fromUserId"`
	TargetUserID string `json:"targetUserId"`
	Amount       int    `json:"amount"`
}

type awardResponse struct {
	TotalHype int `json:"totalHype"`
}

// permanentStatus reports whether an HTTP status is not worth retrying.
func permanentStatus(code int) bool {
	return code >= 400 && code < 500
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ledger returned status %d", e.code)
}

// Award posts a hype award and returns the target user's new total.
func (c *HTTPClient) Award(ctx context.Context, fromUserID, targetUserID string, amount int) (int, error) {
	start := time.Now()

	result, err := c.breaker.Execute(func() (any, error) {
		total, err := retry.Do(ctx, c.policy, classify, func() (int, error) {
			return c.postAward(ctx, awardRequest{
				FromUserID:   fromUserID,
				TargetUserID: targetUserID,
				Amount:       amount,
			})
		})
		return total, err
	})

	metrics.LedgerRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LedgerRequestsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("award hype: %w", err)
	}
	metrics.LedgerRequestsTotal.WithLabelValues("ok").Inc()
	return result.(int), nil
}

func classify(err error) retry.Action {
	var se *statusError
	if errors.As(err, &se) && permanentStatus(se.code) {
		return retry.Stop
	}
	return retry.Retry
}

func (c *HTTPClient) postAward(ctx context.Context, award awardRequest) (int, error) {
	body, err := json.Marshal(award)
	if err != nil {
		return 0, fmt.Errorf("marshal award: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/hype/awards", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build award request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post award: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, &statusError{code: resp.StatusCode}
	}

	var parsed awardResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode award response: %w", err)
	}
	return parsed.TotalHype, nil
}
