package relay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeHeadersDropsInvalidNames(t *testing.T) {
	out, err := SanitizeHeaders(map[string]string{
		"X-Valid":        "ok",
		"bad header":     "dropped",
		"also:bad":       "dropped",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"X-Valid": "ok"}, out)
}

func TestSanitizeHeadersTooMany(t *testing.T) {
	headers := make(map[string]string, maxHeaders+1)
	for i := 0; i < maxHeaders+1; i++ {
		headers["X-"+string(rune('A'+i%26))+string(rune(i)) ] = "v"
	}
	_, err := SanitizeHeaders(headers)
	assert.ErrorIs(t, err, ErrTooManyHeaders)
}

func TestSanitizeHeadersHeaderTooLarge(t *testing.T) {
	_, err := SanitizeHeaders(map[string]string{
		"X-Big": strings.Repeat("a", maxHeaderSize+1),
	})
	require.Error(t, err)
	var tooLarge *HeaderTooLargeError
	assert.ErrorAs(t, err, &tooLarge)
}

func TestIsValidStatusCode(t *testing.T) {
	assert.True(t, IsValidStatusCode(200))
	assert.True(t, IsValidStatusCode(599))
	assert.False(t, IsValidStatusCode(99))
	assert.False(t, IsValidStatusCode(600))
}
