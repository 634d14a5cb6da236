package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTokenFormat(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)
	assert.True(t, IsValidToken(token))
	assert.Equal(t, len(tokenPrefix)+tokenRandomLen, len(token))
}

func TestGenerateTokenUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateToken()
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestIsValidToken(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)
	assert.True(t, IsValidToken(token))

	assert.False(t, IsValidToken(""))
	assert.False(t, IsValidToken("abc"))
	assert.False(t, IsValidToken("c_tooshort"))
	assert.False(t, IsValidToken("x_123456789012345678901234567"))
	assert.False(t, IsValidToken("c_12345678901234567890123456!"))
}
