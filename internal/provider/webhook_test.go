package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEnvelope = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "8856996819413533",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550001111", "phone_number_id": "1065"},
        "statuses": [
          {"id": "wamid.out1", "status": "delivered", "timestamp": "1700000000", "recipient_id": "5511988887777"},
          {"id": "wamid.out2", "status": "failed", "timestamp": "1700000001", "recipient_id": "5511988887777",
           "errors": [{"code": 131026, "title": "Message undeliverable"}]}
        ],
        "contacts": [
          {"profile": {"name": "Other"}, "wa_id": "5511900000000"},
          {"profile": {"name": "Maria"}, "wa_id": "5511988887777"}
        ],
        "messages": [
          {"id": "wamid.in1", "from": "5511988887777", "type": "text", "timestamp": "1700000002",
           "text": {"body": "hi"}}
        ]
      }
    }]
  }]
}`

func TestSplitEnvelope(t *testing.T) {
	t.Run("StatusesAndMessages", func(t *testing.T) {
		docs, err := SplitEnvelope([]byte(testEnvelope))
		require.NoError(t, err)
		require.Len(t, docs, 3)

		var first map[string]any
		require.NoError(t, json.Unmarshal(docs[0], &first))
		assert.Equal(t, "status", first["type"])
		assert.Equal(t, "1065", first["phone_number_id"])
		assert.Equal(t, "wamid.out1", first["status"].(map[string]any)["id"])
		assert.NotContains(t, first, "message")

		var failed map[string]any
		require.NoError(t, json.Unmarshal(docs[1], &failed))
		errs := failed["status"].(map[string]any)["errors"].([]any)
		assert.Equal(t, float64(131026), errs[0].(map[string]any)["code"])

		var inbound map[string]any
		require.NoError(t, json.Unmarshal(docs[2], &inbound))
		assert.Equal(t, "message", inbound["type"])
		assert.Equal(t, "wamid.in1", inbound["message"].(map[string]any)["id"])
		assert.Equal(t, "5511988887777", inbound["contact"].(map[string]any)["wa_id"])
		assert.Equal(t, "Maria", inbound["contact"].(map[string]any)["profile"].(map[string]any)["name"])
	})

	t.Run("NoChanges", func(t *testing.T) {
		docs, err := SplitEnvelope([]byte(`{"object":"whatsapp_business_account","entry":[]}`))
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		_, err := SplitEnvelope([]byte(`{`))
		assert.Error(t, err)
	})
}

func TestVerifySignature(t *testing.T) {
	body := []byte(testEnvelope)

	tests := []struct {
		name    string
		secret  string
		header  string
		wantErr error
	}{
		{"Valid", "app-secret", Sign("app-secret", body), nil},
		{"VerificationDisabled", "", "", nil},
		{"Missing", "app-secret", "", ErrMissingSignature},
		{"WrongSecret", "app-secret", Sign("other-secret", body), ErrInvalidSignature},
		{"NoPrefix", "app-secret", Sign("app-secret", body)[len("sha256="):], ErrInvalidSignature},
		{"NotHex", "app-secret", "sha256=zz", ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.secret, body, tt.header)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("TamperedBody", func(t *testing.T) {
		header := Sign("app-secret", body)
		err := VerifySignature("app-secret", append([]byte(nil), body[1:]...), header)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestVerifyHandshake(t *testing.T) {
	challenge, err := VerifyHandshake("subscribe", "verify-me", "1158201444", "verify-me")
	require.NoError(t, err)
	assert.Equal(t, "1158201444", challenge)

	_, err = VerifyHandshake("subscribe", "wrong", "1158201444", "verify-me")
	assert.ErrorIs(t, err, ErrHandshakeRejected)

	_, err = VerifyHandshake("unsubscribe", "verify-me", "1158201444", "verify-me")
	assert.ErrorIs(t, err, ErrHandshakeRejected)

	_, err = VerifyHandshake("subscribe", "", "1158201444", "")
	assert.ErrorIs(t, err, ErrHandshakeRejected)
}
