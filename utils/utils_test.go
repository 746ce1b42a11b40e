package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	token, err := GenerateToken(secret, "ana", "developer", time.Minute)
	require.NoError(t, err)

	claims, err := ValidateToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "ana", claims.Username)
	assert.Equal(t, "developer", claims.Role)
}

func TestValidateTokenRejects(t *testing.T) {
	secret := []byte("s3cret")
	expired, err := GenerateToken(secret, "ana", "developer", -time.Minute)
	require.NoError(t, err)
	valid, err := GenerateToken(secret, "ana", "developer", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret []byte
		token  string
	}{
		{"expired", secret, expired},
		{"wrong secret", []byte("other"), valid},
		{"garbage", secret, "not.a.token"},
		{"empty", secret, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateToken(tt.secret, tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)
	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "hunter3"))
}

func TestLoadBlackList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blacklist.txt")
	require.NoError(t, os.WriteFile(path, []byte("123456\n\n  password  \n"), 0o600))

	list, err := LoadBlackList(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"123456": true, "password": true}, list)

	_, err = LoadBlackList(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
