package storage

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecretKeyHex = "6368616368612d74776f2d70686f6e652d6b65792d666f722d756e69742d7473"

func TestParseSecretKey(t *testing.T) {
	tests := []struct {
		name    string
		hexKey  string
		wantErr bool
	}{
		{
			name:   "valid 32-byte key",
			hexKey: testSecretKeyHex,
		},
		{
			name:    "empty",
			hexKey:  "",
			wantErr: true,
		},
		{
			name:    "too short",
			hexKey:  "deadbeef",
			wantErr: true,
		},
		{
			name:    "not hex",
			hexKey:  "zz68616368612d74776f2d70686f6e652d6b65792d666f722d756e69742d7473",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseSecretKey(tt.hexKey)

			if tt.wantErr {
				require.ErrorIs(t, err, ErrSecretKeyInvalid)

				return
			}

			require.NoError(t, err)
			assert.Len(t, key, 32)
		})
	}
}

func TestCredentialRoundtrip(t *testing.T) {
	key, err := ParseSecretKey(testSecretKeyHex)
	require.NoError(t, err)

	sealed, err := encryptCredential(key, "sk-ant-test-credential")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "sk-ant", "plaintext must not leak into ciphertext")

	plaintext, err := decryptCredential(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test-credential", plaintext)
}

func TestCredentialNoncesDiffer(t *testing.T) {
	key, err := ParseSecretKey(testSecretKeyHex)
	require.NoError(t, err)

	first, err := encryptCredential(key, "same-plaintext")
	require.NoError(t, err)

	second, err := encryptCredential(key, "same-plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, hex.EncodeToString(first), hex.EncodeToString(second))
}

func TestDecryptCredential_Failures(t *testing.T) {
	key, err := ParseSecretKey(testSecretKeyHex)
	require.NoError(t, err)

	sealed, err := encryptCredential(key, "secret")
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		otherKey, err := ParseSecretKey("00000000000000000000000000000000000000000000000000000000000000ff")
		require.NoError(t, err)

		_, err = decryptCredential(otherKey, sealed)
		require.ErrorIs(t, err, ErrCiphertextInvalid)
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		tampered := make([]byte, len(sealed))
		copy(tampered, sealed)
		tampered[len(tampered)-1] ^= 0x01

		_, err := decryptCredential(key, tampered)
		require.ErrorIs(t, err, ErrCiphertextInvalid)
	})

	t.Run("truncated blob", func(t *testing.T) {
		_, err := decryptCredential(key, sealed[:8])
		require.ErrorIs(t, err, ErrCiphertextInvalid)
	})
}
