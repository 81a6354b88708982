// Package provider talks to the channel provider's messaging API: outbound sends through a
// rate limited, circuit broken HTTP client and inbound webhook envelope handling.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/allisson/courier/internal/messaging/domain"
)

// IdempotencyHeader carries the unit id so the provider can drop replayed sends.
const IdempotencyHeader = "Idempotency-Key"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// throttleCodes are provider error codes that signal rate limiting or temporary capacity issues.
var throttleCodes = map[int]bool{
	4:      true,
	80007:  true,
	130429: true,
	131048: true,
	131056: true,
}

// ClientConfig holds the provider client settings.
type ClientConfig struct {
	BaseURL            string
	Timeout            time.Duration
	RateLimitPerSec    float64
	RateLimitBurst     int
	BreakerMaxFailures int
	BreakerTimeout     time.Duration
}

// Client sends messages to the provider.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts req to the provider and returns the provider message id.
//
// Failures are *domain.DeliveryError values: throttling, 5xx, transport errors and an
// open circuit are retryable; other 4xx responses are permanent.
func (c *Client) Send(ctx context.Context, req *domain.SendRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", domain.NewRetryableError("rate_limited", err.Error())
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", domain.NewRetryableError("circuit_open", err.Error())
		}
		return "", err
	}
	return result.(string), nil
}

// State reports the circuit breaker state.
func (c *Client) State() string {
	return c.breaker.State().String()
}

func (c *Client) post(ctx context.Context, req *domain.SendRequest) (string, error) {
	body := make(map[string]any, len(req.Payload)+3)
	for k, v := range req.Payload {
		body[k] = v
	}
	body["messaging_product"] = "whatsapp"
	body["recipient_type"] = "individual"
	body["to"] = strings.TrimPrefix(req.To, "+")

	raw, err := json.Marshal(body)
	if err != nil {
		return "", domain.NewPermanentError("invalid_payload", err.Error())
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, req.PhoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", domain.NewPermanentError("invalid_request", err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	httpReq.Header.Set(IdempotencyHeader, req.IdempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", domain.NewRetryableError("network_error", err.Error())
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return "", domain.NewRetryableError("network_error", err.Error())
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var sent sendResponse
		if err := json.Unmarshal(payload, &sent); err != nil || len(sent.Messages) == 0 || sent.Messages[0].ID == "" {
			return "", domain.NewPermanentError("invalid_response", "provider response has no message id")
		}
		return sent.Messages[0].ID, nil
	}

	deliveryErr := classify(resp.StatusCode, payload)
	if c.logger != nil {
		c.logger.Warn("provider send failed",
			slog.Int("status_code", resp.StatusCode),
			slog.String("code", deliveryErr.Code),
			slog.Bool("retryable", deliveryErr.Retryable),
		)
	}
	return "", deliveryErr
}

// classify turns a non-2xx provider response into a delivery error.
func classify(statusCode int, body []byte) *domain.DeliveryError {
	var parsed errorResponse
	_ = json.Unmarshal(body, &parsed)

	code := "http_" + strconv.Itoa(statusCode)
	message := http.StatusText(statusCode)
	if parsed.Error.Code != 0 {
		code = strconv.Itoa(parsed.Error.Code)
	}
	if parsed.Error.Message != "" {
		message = parsed.Error.Message
	}

	switch {
	case statusCode == http.StatusTooManyRequests,
		statusCode >= 500,
		throttleCodes[parsed.Error.Code]:
		return domain.NewRetryableError(code, message)
	default:
		return domain.NewPermanentError(code, message)
	}
}

// NewClient creates a provider client. A zero rate disables the process-local limiter.
func NewClient(config ClientConfig, logger *slog.Logger) *Client {
	limit := rate.Inf
	if config.RateLimitPerSec > 0 {
		limit = rate.Limit(config.RateLimitPerSec)
	}
	burst := config.RateLimitBurst
	if burst < 1 {
		burst = 1
	}
	maxFailures := config.BreakerMaxFailures
	if maxFailures < 1 {
		maxFailures = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "provider",
		Timeout: config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
		// Permanent rejections say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			}
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		breaker:    breaker,
		logger:     logger,
	}
}
