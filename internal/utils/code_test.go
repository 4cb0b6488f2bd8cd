package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAccessCodeShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := GenerateAccessCode()
		require.NoError(t, err)
		require.Len(t, code, CodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(CodeAlphabet, r), "unexpected symbol %q", r)
		}
		assert.True(t, IsAccessCode(code))
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestIsAccessCode(t *testing.T) {
	assert.Len(t, CodeAlphabet, 62)
	assert.True(t, IsAccessCode("aZ09x"))
	assert.False(t, IsAccessCode("aZ09"))
	assert.False(t, IsAccessCode("aZ09xx"))
	assert.False(t, IsAccessCode("aZ-9x"))
	assert.False(t, IsAccessCode(""))
}
