package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRegisterHashesPasswordAndNormalizesEmail(t *testing.T) {
	db := newTestDB(t)
	users := NewUserService(db)

	user, err := users.Register("  Alice@Example.COM ", "s3cretpass", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "s3cretpass", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cretpass")))
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	users := NewUserService(db)

	_, err := users.Register("alice@example.com", "s3cretpass", "Alice")
	require.NoError(t, err)

	_, err = users.Register("ALICE@example.com", "otherpass1", "Alice Again")
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	db := newTestDB(t)
	users := NewUserService(db)

	_, err := users.Register("alice@example.com", "short", "Alice")
	require.Error(t, err)
}
