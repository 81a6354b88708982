package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/courier/internal/messaging/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, maxFailures int) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(ClientConfig{
		BaseURL:            server.URL + "/",
		Timeout:            2 * time.Second,
		RateLimitPerSec:    1000,
		RateLimitBurst:     100,
		BreakerMaxFailures: maxFailures,
		BreakerTimeout:     time.Minute,
	}, nil)
}

func testSendRequest() *domain.SendRequest {
	return &domain.SendRequest{
		IdempotencyKey: "0195d1a2-0000-7000-8000-000000000001",
		PhoneNumberID:  "1065",
		AccessToken:    "token-123",
		To:             "+5511988887777",
		Payload: map[string]any{
			"type": "text",
			"text": map[string]any{"body": "hello"},
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestClient_Send(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/1065/messages", r.URL.Path)
			assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
			assert.Equal(t, "0195d1a2-0000-7000-8000-000000000001", r.Header.Get(IdempotencyHeader))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "whatsapp", body["messaging_product"])
			assert.Equal(t, "individual", body["recipient_type"])
			assert.Equal(t, "5511988887777", body["to"])
			assert.Equal(t, "text", body["type"])

			writeJSON(w, http.StatusOK, `{"messages":[{"id":"wamid.abc"}]}`)
		}, 5)

		id, err := client.Send(context.Background(), testSendRequest())

		require.NoError(t, err)
		assert.Equal(t, "wamid.abc", id)
	})

	tests := []struct {
		name      string
		status    int
		body      string
		code      string
		retryable bool
	}{
		{"TooManyRequests", http.StatusTooManyRequests, `{}`, "http_429", true},
		{"ServerError", http.StatusBadGateway, `not json`, "http_502", true},
		{
			"ThrottleCode",
			http.StatusBadRequest,
			`{"error":{"message":"Spam rate limit hit","code":131048}}`,
			"131048",
			true,
		},
		{
			"PermanentRejection",
			http.StatusBadRequest,
			`{"error":{"message":"Recipient phone number not in allowed list","code":131030}}`,
			"131030",
			false,
		},
		{"Unauthorized", http.StatusUnauthorized, `{}`, "http_401", false},
		{"SuccessWithoutID", http.StatusOK, `{"messages":[]}`, "invalid_response", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}, 5)

			id, err := client.Send(context.Background(), testSendRequest())

			assert.Empty(t, id)
			var deliveryErr *domain.DeliveryError
			require.ErrorAs(t, err, &deliveryErr)
			assert.Equal(t, tt.code, deliveryErr.Code)
			assert.Equal(t, tt.retryable, deliveryErr.Retryable)
			assert.Equal(t, tt.retryable, domain.IsRetryable(err))
		})
	}

	t.Run("NetworkErrorIsRetryable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		client := NewClient(ClientConfig{BaseURL: url, Timeout: time.Second, BreakerMaxFailures: 5}, nil)
		_, err := client.Send(context.Background(), testSendRequest())

		var deliveryErr *domain.DeliveryError
		require.ErrorAs(t, err, &deliveryErr)
		assert.Equal(t, "network_error", deliveryErr.Code)
		assert.True(t, deliveryErr.Retryable)
	})

	t.Run("CancelledContextIsRetryable", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"messages":[{"id":"wamid.abc"}]}`)
		}, 5)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := client.Send(ctx, testSendRequest())

		require.Error(t, err)
		assert.True(t, domain.IsRetryable(err))
	})
}

func TestClient_CircuitBreaker(t *testing.T) {
	t.Run("OpensAfterConsecutiveRetryableFailures", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeJSON(w, http.StatusServiceUnavailable, `{}`)
		}, 2)

		for range 2 {
			_, err := client.Send(context.Background(), testSendRequest())
			require.Error(t, err)
		}
		assert.Equal(t, "open", client.State())

		_, err := client.Send(context.Background(), testSendRequest())

		var deliveryErr *domain.DeliveryError
		require.ErrorAs(t, err, &deliveryErr)
		assert.Equal(t, "circuit_open", deliveryErr.Code)
		assert.True(t, deliveryErr.Retryable)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("PermanentFailuresKeepCircuitClosed", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeJSON(w, http.StatusBadRequest, `{"error":{"message":"bad template","code":132001}}`)
		}, 2)

		for range 4 {
			_, err := client.Send(context.Background(), testSendRequest())
			require.Error(t, err)
			assert.False(t, domain.IsRetryable(err))
		}

		assert.Equal(t, "closed", client.State())
		assert.Equal(t, int32(4), calls.Load())
	})
}
