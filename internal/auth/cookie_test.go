package auth

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	c, err := Generate()
	require.NoError(t, err)
	assert.Len(t, c, CookieSize)
	assert.NotEqual(t, make(Cookie, CookieSize), c, "cookie is not all zero")
}

func TestGenerate_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		c, err := Generate()
		require.NoError(t, err)
		key := string(c)
		assert.False(t, seen[key], "cookie repeated")
		seen[key] = true
	}
}

func TestCookie_Equal(t *testing.T) {
	a := Cookie{1, 2, 3}
	assert.True(t, a.Equal(Cookie{1, 2, 3}))
	assert.False(t, a.Equal(Cookie{1, 2, 4}))
	assert.False(t, a.Equal(Cookie{1, 2}))
}

func TestCookie_StringRedacts(t *testing.T) {
	c := Cookie{0xde, 0xad}
	assert.Equal(t, "<redacted>", fmt.Sprint(c))
	assert.NotContains(t, fmt.Sprintf("%v", c), "dead")
	assert.Equal(t, "<empty>", Cookie(nil).String())
}
