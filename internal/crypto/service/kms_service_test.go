package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"gocloud.dev/secrets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateLocalSecretsURI generates a base64key:// URI for testing.
func generateLocalSecretsURI(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return "base64key://" + base64.URLEncoding.EncodeToString(key)
}

func TestOpenKeeper(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_LocalSecrets", func(t *testing.T) {
		keeper, err := OpenKeeper(ctx, generateLocalSecretsURI(t))
		require.NoError(t, err)
		require.NotNil(t, keeper)

		_, ok := keeper.(*secrets.Keeper)
		assert.True(t, ok, "keeper should be *secrets.Keeper")

		assert.NoError(t, keeper.Close())
	})

	t.Run("Error_InvalidURI", func(t *testing.T) {
		keeper, err := OpenKeeper(ctx, "invalid://uri")
		assert.Error(t, err)
		assert.Nil(t, keeper)
		assert.Contains(t, err.Error(), "failed to open KMS keeper")
	})

	t.Run("Error_EmptyURI", func(t *testing.T) {
		keeper, err := OpenKeeper(ctx, "  ")
		assert.ErrorIs(t, err, ErrEmptyKeyURI)
		assert.Nil(t, keeper)
	})
}

func TestKMSSealer(t *testing.T) {
	ctx := context.Background()

	sealer, err := NewKMSSealer(ctx, generateLocalSecretsURI(t))
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, sealer.Close())
	}()

	t.Run("RoundTrip", func(t *testing.T) {
		ciphertext, err := sealer.Seal(ctx, []byte("EAAG-access-token"))
		require.NoError(t, err)
		assert.NotContains(t, string(ciphertext), "EAAG-access-token")

		plaintext, err := sealer.Open(ctx, ciphertext)
		require.NoError(t, err)
		assert.Equal(t, "EAAG-access-token", string(plaintext))
	})

	t.Run("OpenWithOtherKeyFails", func(t *testing.T) {
		ciphertext, err := sealer.Seal(ctx, []byte("EAAG-access-token"))
		require.NoError(t, err)

		other, err := NewKMSSealer(ctx, generateLocalSecretsURI(t))
		require.NoError(t, err)
		defer func() {
			_ = other.Close()
		}()

		_, err = other.Open(ctx, ciphertext)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open credential")
	})
}
