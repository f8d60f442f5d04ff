package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenSecret(t *testing.T) {
	sealed, err := SealSecret("gemini-key", "server-secret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "enc:"))
	assert.NotContains(t, sealed, "gemini-key")

	plain, err := OpenSecret(sealed, "server-secret")
	require.NoError(t, err)
	assert.Equal(t, "gemini-key", plain)

	_, err = OpenSecret(sealed, "other-secret")
	assert.Error(t, err)
}

func TestOpenSecretPassesPlaintextThrough(t *testing.T) {
	plain, err := OpenSecret("legacy-plain-key", "")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plain-key", plain)

	unsealed, err := SealSecret("value", "")
	require.NoError(t, err)
	assert.Equal(t, "value", unsealed)
}
