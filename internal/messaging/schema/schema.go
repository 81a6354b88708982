// Package schema validates the open JSON documents of the delivery pipeline: outbound
// message payloads, template variables and normalized provider callbacks.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	payloadSchema   = "payload.json"
	variablesSchema = "variables.json"
	eventSchema     = "event.json"
)

// Validator holds the compiled schemas. It is safe for concurrent use.
type Validator struct {
	payload   *jsonschema.Schema
	variables *jsonschema.Schema
	event     *jsonschema.Schema
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft2020)

	for _, name := range []string{payloadSchema, variablesSchema, eventSchema} {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema %s: %w", name, err)
		}
		if err := c.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", name, err)
		}
	}

	v := &Validator{}
	var err error
	if v.payload, err = c.Compile(payloadSchema); err != nil {
		return nil, fmt.Errorf("failed to compile payload schema: %w", err)
	}
	if v.variables, err = c.Compile(variablesSchema); err != nil {
		return nil, fmt.Errorf("failed to compile variables schema: %w", err)
	}
	if v.event, err = c.Compile(eventSchema); err != nil {
		return nil, fmt.Errorf("failed to compile event schema: %w", err)
	}
	return v, nil
}

// MustNew is like New but panics on error. The schemas are embedded, so an error
// here is a programming mistake.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// ValidatePayload checks an outbound message payload.
func (v *Validator) ValidatePayload(payload map[string]any) error {
	if err := validateValue(v.payload, payload); err != nil {
		return errors.Wrap(domain.ErrInvalidPayload, err.Error())
	}
	return nil
}

// ValidateVariables checks a template variable map.
func (v *Validator) ValidateVariables(vars map[string]string) error {
	if vars == nil {
		return nil
	}
	if err := validateValue(v.variables, vars); err != nil {
		return errors.Wrap(domain.ErrInvalidVariables, err.Error())
	}
	return nil
}

// validateValue round-trips value through JSON so every Go type reaches the
// validator in its canonical JSON shape.
func validateValue(sch *jsonschema.Schema, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return sch.Validate(inst)
}

// Event is a decoded provider callback.
type Event struct {
	Type          domain.EventType
	ExternalID    string
	PhoneNumberID string
	Status        *domain.StatusUpdate
	Message       *domain.InboundPayload
}

type eventDoc struct {
	Type          string           `json:"type"`
	PhoneNumberID string           `json:"phone_number_id"`
	Status        *statusDoc       `json:"status"`
	Contact       *contactDoc      `json:"contact"`
	Message       *json.RawMessage `json:"message"`
}

type statusDoc struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
	Errors      []struct {
		Code  int    `json:"code"`
		Title string `json:"title"`
	} `json:"errors"`
}

type contactDoc struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type messageHeader struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// DecodeEvent validates and decodes one normalized callback document.
//
// It always returns an Event carrying an external id. When raw cannot be decoded
// the event type is unknown, the external id is a digest of raw and the error
// wraps domain.ErrMalformedEvent.
func (v *Validator) DecodeEvent(raw []byte) (*Event, error) {
	malformed := func(reason error) (*Event, error) {
		return &Event{
			Type:       domain.EventUnknown,
			ExternalID: domain.FallbackExternalID(raw),
		}, errors.Wrap(domain.ErrMalformedEvent, reason.Error())
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return malformed(err)
	}
	if err := v.event.Validate(inst); err != nil {
		return malformed(err)
	}

	var doc eventDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return malformed(err)
	}

	switch doc.Type {
	case "status":
		return decodeStatus(&doc), nil
	case "message":
		ev, err := decodeMessage(&doc)
		if err != nil {
			return malformed(err)
		}
		return ev, nil
	default:
		return malformed(fmt.Errorf("unsupported event type %q", doc.Type))
	}
}

func decodeStatus(doc *eventDoc) *Event {
	s := doc.Status
	raw := strings.ToLower(s.Status)
	update := &domain.StatusUpdate{
		ProviderMessageID: s.ID,
		RawStatus:         raw,
		RecipientID:       s.RecipientID,
		Timestamp:         parseUnix(s.Timestamp),
	}
	if status, ok := domain.ParseProviderStatus(raw); ok {
		update.Status = status
	}
	if len(s.Errors) > 0 {
		update.ErrorCode = strconv.Itoa(s.Errors[0].Code)
		update.ErrorTitle = s.Errors[0].Title
	}

	return &Event{
		Type:          domain.EventStatusUpdate,
		ExternalID:    domain.StatusExternalID(s.ID, raw),
		PhoneNumberID: doc.PhoneNumberID,
		Status:        update,
	}
}

func decodeMessage(doc *eventDoc) (*Event, error) {
	var header messageHeader
	if err := json.Unmarshal(*doc.Message, &header); err != nil {
		return nil, err
	}
	var body map[string]any
	if err := json.Unmarshal(*doc.Message, &body); err != nil {
		return nil, err
	}

	payload := &domain.InboundPayload{
		PhoneNumberID:     doc.PhoneNumberID,
		ProviderMessageID: header.ID,
		From:              NormalizeAddress(header.From),
		MessageType:       header.Type,
		Body:              body,
		Timestamp:         parseUnix(header.Timestamp),
	}
	if doc.Contact != nil {
		payload.ContactName = domain.TruncateRunes(doc.Contact.Profile.Name, domain.MaxContactNameLength)
	}

	return &Event{
		Type:          domain.EventInboundMessage,
		ExternalID:    domain.MessageExternalID(header.ID),
		PhoneNumberID: doc.PhoneNumberID,
		Message:       payload,
	}, nil
}

// NormalizeAddress turns a provider wa_id ("14155550001") into E.164 ("+14155550001").
func NormalizeAddress(from string) string {
	from = strings.TrimSpace(from)
	if from == "" || strings.HasPrefix(from, "+") {
		return from
	}
	return "+" + from
}

// parseUnix parses a unix seconds string; the zero time means unknown.
func parseUnix(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
