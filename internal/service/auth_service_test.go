package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/chain-game/internal/config"
	"github.com/wfunc/chain-game/internal/utils"
	"go.uber.org/zap"
)

func newTestAuthService(t *testing.T, password string) AuthService {
	hash, err := utils.HashPassword(password)
	require.NoError(t, err)

	jwtManager := utils.NewJWTManager("test-secret-key-for-auth-service", time.Hour, 24*time.Hour)
	operator := &config.OperatorConfig{
		Username:     "admin",
		PasswordHash: hash,
	}
	return NewAuthService(operator, jwtManager, zap.NewNop())
}

func TestLoginSuccess(t *testing.T) {
	svc := newTestAuthService(t, "correct-horse-battery")

	resp, err := svc.Login(context.Background(), &LoginRequest{
		Username: "admin",
		Password: "correct-horse-battery",
	})
	require.NoError(t, err)
	assert.Equal(t, "admin", resp.Username)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.EqualValues(t, 3600, resp.ExpiresIn)
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newTestAuthService(t, "correct-horse-battery")

	_, err := svc.Login(context.Background(), &LoginRequest{
		Username: "admin",
		Password: "wrong",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownUser(t *testing.T) {
	svc := newTestAuthService(t, "correct-horse-battery")

	_, err := svc.Login(context.Background(), &LoginRequest{
		Username: "nobody",
		Password: "correct-horse-battery",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateToken(t *testing.T) {
	svc := newTestAuthService(t, "pw")
	ctx := context.Background()

	resp, err := svc.Login(ctx, &LoginRequest{Username: "admin", Password: "pw"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "operator", claims.Role)
	assert.NotEmpty(t, claims.SessionID)

	// 刷新令牌不能当访问令牌用
	_, err = svc.ValidateToken(ctx, resp.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// 乱造的令牌被拒绝
	_, err = svc.ValidateToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshToken(t *testing.T) {
	svc := newTestAuthService(t, "pw")
	ctx := context.Background()

	resp, err := svc.Login(ctx, &LoginRequest{Username: "admin", Password: "pw"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(ctx, resp.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Equal(t, "admin", refreshed.Username)

	// 新的访问令牌立即可用
	claims, err := svc.ValidateToken(ctx, refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)

	// 访问令牌不能用于刷新
	_, err = svc.RefreshToken(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
