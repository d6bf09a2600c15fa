package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	password := "mysecretpassword1"
	pepper := "test-pepper-for-unit-tests"

	hashed, err := hashPassword(password, pepper)
	require.NoError(t, err, "hashPassword should not return an error")
	require.NotEmpty(t, hashed)
	assert.NotEqual(t, password, hashed)

	assert.True(t, checkPasswordHash(password, hashed, pepper), "correct password and pepper should verify")
	assert.False(t, checkPasswordHash("wrongpassword1", hashed, pepper), "wrong password should not verify")
	assert.False(t, checkPasswordHash(password, hashed, "another-pepper"), "wrong pepper should not verify")
	assert.False(t, checkPasswordHash(password, "not-a-bcrypt-hash", pepper), "invalid hash should not verify")
}

func TestHashPasswordProducesDistinctHashes(t *testing.T) {
	pepper := "pepper"
	h1, err := hashPassword("samepassword1", pepper)
	require.NoError(t, err)
	h2, err := hashPassword("samepassword1", pepper)
	require.NoError(t, err)
	// bcrypt salts internally, so two hashes of the same input differ.
	assert.NotEqual(t, h1, h2)
}

func TestApplyPepperIsDeterministic(t *testing.T) {
	assert.Equal(t, applyPepper("pw", "k"), applyPepper("pw", "k"))
	assert.NotEqual(t, applyPepper("pw", "k"), applyPepper("pw", "other"))
}
