package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	require.NoError(t, VerifyPassword("correct horse battery staple", hash))
	require.ErrorIs(t, VerifyPassword("wrong password", hash), ErrPasswordMismatch)
}

func TestHashPasswordUniqueSalts(t *testing.T) {
	t.Parallel()

	a, err := HashPassword("same input")
	require.NoError(t, err)
	b, err := HashPassword("same input")
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"plainly not a hash",
		"$bcrypt$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$nonsense$c2FsdA$aGFzaA",
	}
	for _, encoded := range cases {
		err := VerifyPassword("anything", encoded)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrPasswordMismatch)
	}
}
