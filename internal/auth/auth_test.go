package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/support-desk/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	tm := NewTokenManager("secret", 30)
	op := &domain.Operator{ID: "op-1", Email: "alice@example.com", Role: domain.OperatorRoleAdmin}

	token, exp, err := tm.GenerateToken(op)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(30*time.Minute), exp, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, "op-1", claims.Subject)
	require.Equal(t, "alice@example.com", claims.Email)
	require.Equal(t, domain.OperatorRoleAdmin, claims.Role)
}

func TestTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	t.Parallel()

	op := &domain.Operator{ID: "op-1", Email: "alice@example.com", Role: domain.OperatorRoleAgent}
	token, _, err := NewTokenManager("secret", 1).GenerateToken(op)
	require.NoError(t, err)

	_, err = NewTokenManager("other", 1).ParseToken(token)
	require.Error(t, err)

	late := NewTokenManager("secret", 1)
	late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = late.ParseToken(token)
	require.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse", 4)
	require.NoError(t, err)
	require.NoError(t, ComparePassword(hash, "correct horse"))
	require.Error(t, ComparePassword(hash, "wrong"))
}

func TestPasswordHashingRejectsOverlongAndClampsCost(t *testing.T) {
	t.Parallel()

	_, err := HashPassword(strings.Repeat("x", 73), 4)
	require.ErrorIs(t, err, ErrPasswordTooLong)

	hash, err := HashPassword("correct horse", 99)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	require.Equal(t, bcrypt.DefaultCost, cost)
}
