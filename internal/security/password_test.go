package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// cheap parameters keep the suite fast
var testParams = Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestHashAndVerify(t *testing.T) {
	hash, err := HashPasswordWithParams("secret1", testParams)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(hash), "$argon2id$v=19$m=8192,t=1,p=1$"))

	ok, err := VerifyPassword("secret1", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashIsSalted(t *testing.T) {
	a, err := HashPasswordWithParams("secret1", testParams)
	require.NoError(t, err)
	b, err := HashPasswordWithParams("secret1", testParams)
	require.NoError(t, err)
	assert.NotEqual(t, string(a), string(b))
}

func TestVerifyLegacyBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := VerifyPassword("secret1", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("nope", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := VerifyPassword("x", []byte("plaintext"))
	assert.ErrorIs(t, err, ErrUnknownHashFormat)

	_, err = VerifyPassword("x", []byte("$argon2id$v=19$broken"))
	assert.Error(t, err)
}
