// Package service seals channel credentials with a KMS keeper opened through gocloud.dev/secrets.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gocloud.dev/secrets"

	// Register all KMS provider drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// ErrEmptyKeyURI indicates no keeper URI is configured.
var ErrEmptyKeyURI = errors.New("kms key uri is empty")

// Keeper is the subset of *secrets.Keeper used by the sealer.
type Keeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}

// KMSSealer seals and opens channel access tokens with a KMS keeper.
type KMSSealer struct {
	keeper Keeper
}

// OpenKeeper opens a secrets.Keeper for the configured KMS provider using the keyURI.
// Supports: gcpkms://, awskms://, azurekeyvault://, hashivault://, base64key://
func OpenKeeper(ctx context.Context, keyURI string) (Keeper, error) {
	if strings.TrimSpace(keyURI) == "" {
		return nil, ErrEmptyKeyURI
	}
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	return keeper, nil
}

// NewKMSSealer opens the keeper at keyURI.
func NewKMSSealer(ctx context.Context, keyURI string) (*KMSSealer, error) {
	keeper, err := OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, err
	}
	return &KMSSealer{keeper: keeper}, nil
}

// NewSealer wraps an already opened keeper.
func NewSealer(keeper Keeper) *KMSSealer {
	return &KMSSealer{keeper: keeper}
}

// Seal encrypts plaintext.
func (s *KMSSealer) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	ciphertext, err := s.keeper.Encrypt(ctx, plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to seal credential: %w", err)
	}
	return ciphertext, nil
}

// Open decrypts ciphertext produced by Seal.
func (s *KMSSealer) Open(ctx context.Context, ciphertext []byte) ([]byte, error) {
	plaintext, err := s.keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential: %w", err)
	}
	return plaintext, nil
}

// Close releases the keeper.
func (s *KMSSealer) Close() error {
	return s.keeper.Close()
}
