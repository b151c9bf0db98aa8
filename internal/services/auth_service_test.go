package services

import (
	"context"
	"testing"
	"time"

	"github.com/school-system/portal/internal/auth"
	"github.com/school-system/portal/internal/config"
	"github.com/school-system/portal/internal/models"
	"github.com/school-system/portal/internal/repository/inmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{Secret: "test-secret", AccessExpiry: 15 * time.Minute, RefreshExpiry: time.Hour},
		Argon2: config.Argon2Config{
			Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
		},
	}
}

func TestAuthService_LoginAndRefresh(t *testing.T) {
	ctx := context.Background()
	repo := inmem.New()
	svc := NewAuthService(repo, testConfig())

	user := &models.User{Email: "hod@school.test", FullName: "Head", Role: string(auth.RoleHOD), IsActive: true}
	require.NoError(t, svc.CreateUser(ctx, user, "Secret@123"))

	_, _, err := svc.Login(ctx, "hod@school.test", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody@school.test", "Secret@123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	tokens, got, err := svc.Login(ctx, "HOD@school.test", "Secret@123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	claims, err := svc.VerifyToken(tokens.AccessToken)
	require.NoError(t, err)
	ac, err := svc.AuthContext(claims)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleHOD, ac.Role)
	assert.Equal(t, user.ID, ac.EffectiveUserID())

	rotated, err := svc.RefreshTokens(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	_, err = svc.RefreshTokens(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestAuthService_LegacyBcrypt(t *testing.T) {
	ctx := context.Background()
	repo := inmem.New()
	svc := NewAuthService(repo, testConfig())

	hash, err := bcrypt.GenerateFromPassword([]byte("Legacy@1"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, repo.CreateUser(ctx, &models.User{
		Email: "old@school.test", PasswordHash: string(hash), Role: string(auth.RoleBursar), IsActive: true,
	}))

	_, _, err = svc.Login(ctx, "old@school.test", "Legacy@1")
	assert.NoError(t, err)
	_, _, err = svc.Login(ctx, "old@school.test", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_Rejections(t *testing.T) {
	ctx := context.Background()
	repo := inmem.New()
	svc := NewAuthService(repo, testConfig())

	assert.ErrorIs(t, svc.CreateUser(ctx, &models.User{Email: "x@school.test", Role: "janitor"}, "pw"), ErrInvalidRole)

	inactive := &models.User{Email: "gone@school.test", Role: string(auth.RoleTeacher), IsActive: false}
	require.NoError(t, svc.CreateUser(ctx, inactive, "Secret@123"))
	_, _, err := svc.Login(ctx, "gone@school.test", "Secret@123")
	assert.ErrorIs(t, err, ErrUserNotActive)

	_, err = svc.AuthContext(&Claims{Role: "janitor"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = svc.VerifyToken("not-a-token")
	assert.Error(t, err)
}
