package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cr3t-password")
	require.NoError(t, err)

	assert.NoError(t, CheckPassword(hash, "s3cr3t-password"))
	assert.Error(t, CheckPassword(hash, "wrong"))
}

func TestJWTManager_GenerateAndVerify(t *testing.T) {
	m := NewJWTManager("test-secret", 5*time.Minute)

	token, exp, err := m.GenerateToken(42, "sam")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), exp, time.Second)

	claims, err := m.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, "sam", claims.Username)
	assert.Equal(t, "42", claims.Subject)
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager("test-secret", time.Minute)
	token, _, err := m.GenerateToken(42, "sam")
	require.NoError(t, err)

	other := NewJWTManager("other-secret", time.Minute)
	_, err = other.VerifyToken(token)
	assert.Error(t, err, "wrong key")

	expired := NewJWTManager("test-secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _, err := expired.GenerateToken(42, "sam")
	require.NoError(t, err)
	_, err = m.VerifyToken(old)
	assert.Error(t, err, "expired")

	anon, _, err := m.GenerateToken(0, "")
	require.NoError(t, err)
	_, err = m.VerifyToken(anon)
	assert.Error(t, err, "no user")

	_, err = m.VerifyToken("not.a.token")
	assert.Error(t, err)
}

func TestClaimsContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := NewContext(context.Background(), &Claims{UserID: 7})
	c, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, uint64(7), c.UserID)
}
