package service

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/chain-game/internal/config"
	"github.com/wfunc/chain-game/internal/utils"
	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrInvalidToken       = errors.New("无效的令牌")
)

// authService 认证服务实现
// 单操作员模型：账户来自配置文件，密码以argon2id哈希保存，不落数据库
type authService struct {
	operator   *config.OperatorConfig
	jwtManager *utils.JWTManager
	log        *zap.Logger
}

// NewAuthService 创建认证服务
func NewAuthService(operator *config.OperatorConfig, jwtManager *utils.JWTManager, log *zap.Logger) AuthService {
	return &authService{
		operator:   operator,
		jwtManager: jwtManager,
		log:        log,
	}
}

// Login 操作员登录
func (s *authService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	if req.Username != s.operator.Username {
		return nil, ErrInvalidCredentials
	}

	ok, err := utils.VerifyPassword(req.Password, s.operator.PasswordHash)
	if err != nil || !ok {
		s.log.Warn("登录失败", zap.String("username", req.Username))
		return nil, ErrInvalidCredentials
	}

	sessionID, err := utils.GenerateSessionID()
	if err != nil {
		return nil, err
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(req.Username, "operator", sessionID)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(req.Username, sessionID)
	if err != nil {
		return nil, err
	}

	s.log.Info("操作员已登录", zap.String("username", req.Username))
	return &AuthResponse{
		Username:     req.Username,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.GetTokenExpiry("access") / time.Second),
		TokenType:    "Bearer",
	}, nil
}

// RefreshToken 刷新访问令牌
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.jwtManager.ValidateToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	accessToken, err := s.jwtManager.RefreshAccessToken(refreshToken, "operator")
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &AuthResponse{
		Username:     claims.Username,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.GetTokenExpiry("access") / time.Second),
		TokenType:    "Bearer",
	}, nil
}

// ValidateToken 验证访问令牌
func (s *authService) ValidateToken(ctx context.Context, token string) (*TokenClaims, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != "access" {
		return nil, ErrInvalidToken
	}

	result := &TokenClaims{
		Username:  claims.Username,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return result, nil
}
