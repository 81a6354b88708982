package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 of the webhook body keyed by the app secret.
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// Webhook errors.
var (
	// ErrMissingSignature indicates the delivery carries no signature header.
	ErrMissingSignature = errors.New("missing webhook signature")

	// ErrInvalidSignature indicates the signature does not match the body.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrHandshakeRejected indicates a subscription handshake with a wrong mode or token.
	ErrHandshakeRejected = errors.New("webhook handshake rejected")
)

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against body. An empty secret disables verification.
func VerifySignature(secret string, body []byte, header string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}
	if !strings.HasPrefix(strings.ToLower(header), signaturePrefix) {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(header[len(signaturePrefix):])
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyHandshake answers the subscription handshake and returns the challenge to echo.
func VerifyHandshake(mode, token, challenge, verifyToken string) (string, error) {
	if verifyToken == "" || mode != "subscribe" {
		return "", ErrHandshakeRejected
	}
	if !hmac.Equal([]byte(token), []byte(verifyToken)) {
		return "", ErrHandshakeRejected
	}
	return challenge, nil
}

type envelope struct {
	Object string          `json:"object"`
	Entry  []envelopeEntry `json:"entry"`
}

type envelopeEntry struct {
	ID      string           `json:"id"`
	Changes []envelopeChange `json:"changes"`
}

type envelopeChange struct {
	Field string        `json:"field"`
	Value envelopeValue `json:"value"`
}

type envelopeValue struct {
	Metadata struct {
		PhoneNumberID string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []json.RawMessage `json:"contacts"`
	Messages []json.RawMessage `json:"messages"`
	Statuses []json.RawMessage `json:"statuses"`
}

type contactRef struct {
	WaID string `json:"wa_id"`
}

type messageRef struct {
	From string `json:"from"`
}

type normalizedEvent struct {
	Type          string          `json:"type"`
	PhoneNumberID string          `json:"phone_number_id"`
	Status        json.RawMessage `json:"status,omitempty"`
	Contact       json.RawMessage `json:"contact,omitempty"`
	Message       json.RawMessage `json:"message,omitempty"`
}

// SplitEnvelope breaks one webhook delivery into normalized callback documents, one per
// status update or inbound message, in delivery order.
func SplitEnvelope(body []byte) ([][]byte, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse webhook envelope: %w", err)
	}

	var docs [][]byte
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			phoneNumberID := value.Metadata.PhoneNumberID

			for _, status := range value.Statuses {
				doc, err := json.Marshal(normalizedEvent{
					Type:          "status",
					PhoneNumberID: phoneNumberID,
					Status:        status,
				})
				if err != nil {
					return nil, err
				}
				docs = append(docs, doc)
			}

			for _, message := range value.Messages {
				doc, err := json.Marshal(normalizedEvent{
					Type:          "message",
					PhoneNumberID: phoneNumberID,
					Contact:       matchContact(value.Contacts, message),
					Message:       message,
				})
				if err != nil {
					return nil, err
				}
				docs = append(docs, doc)
			}
		}
	}
	return docs, nil
}

// matchContact picks the contact whose wa_id is the message sender, falling back to the
// only contact of the change.
func matchContact(contacts []json.RawMessage, message json.RawMessage) json.RawMessage {
	if len(contacts) == 0 {
		return nil
	}
	var msg messageRef
	_ = json.Unmarshal(message, &msg)
	for _, contact := range contacts {
		var ref contactRef
		if err := json.Unmarshal(contact, &ref); err == nil && ref.WaID != "" && ref.WaID == msg.From {
			return contact
		}
	}
	if len(contacts) == 1 {
		return contacts[0]
	}
	return nil
}
