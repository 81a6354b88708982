package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/messaging/usecase/mocks"
	"github.com/allisson/courier/internal/provider"
)

const webhookBody = `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages",
"value":{"metadata":{"phone_number_id":"1065"},
"statuses":[{"id":"wamid.out1","status":"delivered","timestamp":"1700000000","recipient_id":"5511988887777"}],
"contacts":[{"profile":{"name":"Maria"},"wa_id":"5511988887777"}],
"messages":[{"id":"wamid.in1","from":"5511988887777","type":"text","timestamp":"1700000001","text":{"body":"hi"}}]}}]}]}`

func setupTestWebhookHandler(t *testing.T, secret string) (*WebhookHandler, *mocks.MockIngestUseCase) {
	t.Helper()
	mockUseCase := mocks.NewMockIngestUseCase(t)
	config := WebhookConfig{
		VerifyToken:    "verify-me",
		AppSecret:      secret,
		ProcessTimeout: time.Second,
		MaxBodyBytes:   1 << 16,
	}
	return NewWebhookHandler(config, mockUseCase, testLogger), mockUseCase
}

func TestWebhookHandler_VerifyHandler(t *testing.T) {
	t.Run("EchoesChallenge", func(t *testing.T) {
		handler, _ := setupTestWebhookHandler(t, "")
		query := url.Values{
			"hub.mode":         {"subscribe"},
			"hub.verify_token": {"verify-me"},
			"hub.challenge":    {"1158201444"},
		}
		c, w := createTestContext(http.MethodGet, "/v1/webhooks/provider?"+query.Encode(), nil)

		handler.VerifyHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "1158201444", w.Body.String())
	})

	t.Run("WrongToken", func(t *testing.T) {
		handler, _ := setupTestWebhookHandler(t, "")
		query := url.Values{
			"hub.mode":         {"subscribe"},
			"hub.verify_token": {"guess"},
			"hub.challenge":    {"1158201444"},
		}
		c, w := createTestContext(http.MethodGet, "/v1/webhooks/provider?"+query.Encode(), nil)

		handler.VerifyHandler(c)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestWebhookHandler_ReceiveHandler(t *testing.T) {
	t.Run("IngestsEveryCallback", func(t *testing.T) {
		handler, mockUseCase := setupTestWebhookHandler(t, "app-secret")

		mockUseCase.On("Ingest", mock.Anything, mock.MatchedBy(func(raw []byte) bool {
			return strings.Contains(string(raw), `"type":"status"`)
		})).Return(&domain.IngestResult{EventID: uuid.Must(uuid.NewV7()), Processed: true, StatusesApplied: 1}, nil).Once()
		mockUseCase.On("Ingest", mock.Anything, mock.MatchedBy(func(raw []byte) bool {
			return strings.Contains(string(raw), `"type":"message"`)
		})).Return(&domain.IngestResult{Processed: true, Duplicate: true}, nil).Once()

		c, w := createTestContext(http.MethodPost, "/v1/webhooks/provider", webhookBody)
		c.Request.Header.Set(provider.SignatureHeader, provider.Sign("app-secret", []byte(webhookBody)))

		handler.ReceiveHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"received":2,"processed":1,"duplicates":1,"retained":0}`, w.Body.String())
	})

	t.Run("StorageFailureStillAcknowledges", func(t *testing.T) {
		handler, mockUseCase := setupTestWebhookHandler(t, "app-secret")

		mockUseCase.On("Ingest", mock.Anything, mock.Anything).
			Return(nil, apperrors.Unavailable(errors.New("connection refused"))).
			Twice()

		c, w := createTestContext(http.MethodPost, "/v1/webhooks/provider", webhookBody)
		c.Request.Header.Set(provider.SignatureHeader, provider.Sign("app-secret", []byte(webhookBody)))

		handler.ReceiveHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"received":2,"processed":0,"duplicates":0,"retained":2}`, w.Body.String())
	})

	t.Run("UnparseableEnvelopeIsStoredAsIs", func(t *testing.T) {
		handler, mockUseCase := setupTestWebhookHandler(t, "")

		mockUseCase.On("Ingest", mock.Anything, []byte("not json")).
			Return(&domain.IngestResult{Processed: false, Error: "malformed event"}, nil).
			Once()

		c, w := createTestContext(http.MethodPost, "/v1/webhooks/provider", "not json")

		handler.ReceiveHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"received":1,"processed":0,"duplicates":0,"retained":1}`, w.Body.String())
	})

	t.Run("EnvelopeWithoutCallbacksIsStoredAsIs", func(t *testing.T) {
		bodies := []string{
			`{}`,
			`null`,
			`{"entry":[]}`,
			`{"entry":[{"id":"1","changes":[{"field":"messages","value":{"metadata":{"phone_number_id":"1065"}}}]}]}`,
		}
		for _, body := range bodies {
			handler, mockUseCase := setupTestWebhookHandler(t, "app-secret")

			mockUseCase.On("Ingest", mock.Anything, []byte(body)).
				Return(&domain.IngestResult{Processed: false, Error: "malformed event"}, nil).
				Once()

			c, w := createTestContext(http.MethodPost, "/v1/webhooks/provider", body)
			c.Request.Header.Set(provider.SignatureHeader, provider.Sign("app-secret", []byte(body)))

			handler.ReceiveHandler(c)

			assert.Equal(t, http.StatusOK, w.Code, body)
			assert.JSONEq(t, `{"received":1,"processed":0,"duplicates":0,"retained":1}`, w.Body.String(), body)
		}
	})

	t.Run("InvalidSignature", func(t *testing.T) {
		handler, _ := setupTestWebhookHandler(t, "app-secret")

		c, w := createTestContext(http.MethodPost, "/v1/webhooks/provider", webhookBody)
		c.Request.Header.Set(provider.SignatureHeader, provider.Sign("wrong", []byte(webhookBody)))

		handler.ReceiveHandler(c)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("MissingSignature", func(t *testing.T) {
		handler, _ := setupTestWebhookHandler(t, "app-secret")

		c, w := createTestContext(http.MethodPost, "/v1/webhooks/provider", webhookBody)

		handler.ReceiveHandler(c)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("BodyTooLarge", func(t *testing.T) {
		handler, _ := setupTestWebhookHandler(t, "")
		handler.config.MaxBodyBytes = 16

		c, w := createTestContext(http.MethodPost, "/v1/webhooks/provider", webhookBody)

		handler.ReceiveHandler(c)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}
