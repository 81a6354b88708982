// Package repository provides PostgreSQL and MySQL persistence for the delivery pipeline.
//
// PostgreSQL stores identifiers as UUID and documents as JSONB; MySQL stores
// identifiers as BINARY(16) and documents as JSON. MySQL connections must be opened
// with parseTime=true.
package repository

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/allisson/courier/internal/errors"
)

// marshalJSON renders a document column parameter. Documents travel as text because
// lib/pq encodes []byte parameters as bytea.
func marshalJSON(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func unmarshalMap(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func unmarshalStringMap(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func unmarshalStrings(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s []string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return s, nil
}

// uuidStrings renders ids for a PostgreSQL uuid[] parameter.
func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// binaryUUID converts an id for a MySQL BINARY(16) column.
func binaryUUID(id uuid.UUID) []byte {
	b, _ := id.MarshalBinary()
	return b
}

// nullableBinaryUUID converts an optional id for a MySQL BINARY(16) column.
func nullableBinaryUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return binaryUUID(*id)
}

// parseBinaryUUID reads a MySQL BINARY(16) column.
func parseBinaryUUID(b []byte) (uuid.UUID, error) {
	var id uuid.UUID
	if err := id.UnmarshalBinary(b); err != nil {
		return uuid.Nil, apperrors.Wrap(err, "failed to unmarshal id")
	}
	return id, nil
}

// parseNullableBinaryUUID reads a nullable MySQL BINARY(16) column.
func parseNullableBinaryUUID(b []byte) (*uuid.UUID, error) {
	if b == nil {
		return nil, nil
	}
	id, err := parseBinaryUUID(b)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// placeholders returns n comma separated MySQL placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// binaryUUIDArgs converts ids into MySQL IN arguments.
func binaryUUIDArgs(ids []uuid.UUID) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = binaryUUID(id)
	}
	return args
}

func nullUUIDPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}
