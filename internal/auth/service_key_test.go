package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceKey_RoundTrip(t *testing.T) {
	hash, err := HashServiceKey("svc-secret-1")
	require.NoError(t, err)

	assert.NoError(t, VerifyServiceKey("svc-secret-1", hash))
	assert.ErrorIs(t, VerifyServiceKey("wrong", hash), ErrInvalidServiceKey)
}

func TestVerifyServiceKey_EmptyHashRejectsEverything(t *testing.T) {
	assert.ErrorIs(t, VerifyServiceKey("anything", ""), ErrInvalidServiceKey)
}
