package service

import (
	"context"

	"github.com/wfunc/chain-game/internal/models"
)

// AuthService 认证服务接口
// 本地API的操作员登录，与链上签名账户无关
type AuthService interface {
	Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error)
	ValidateToken(ctx context.Context, token string) (*TokenClaims, error)
}

// GameService 游戏服务接口
// 所有状态以链上合约为准，本服务只做编排：提交交易、等待随机数、维护本地快照
type GameService interface {
	// 写路径
	CreateGame(ctx context.Context, req *CreateGameRequest) (*CreateGameResponse, error)
	JoinGame(ctx context.Context, req *JoinGameRequest) (*TxResponse, error)
	SubmitScore(ctx context.Context, req *SubmitScoreRequest) (*SubmitScoreResponse, error)
	CommitScore(ctx context.Context, gameID uint64, score int64) (*TxResponse, error)
	RevealScore(ctx context.Context, gameID uint64, score int64) (*TxResponse, error)
	CancelGame(ctx context.Context, gameID uint64) (*TxResponse, error)

	// 读路径
	GameDetail(ctx context.Context, gameID uint64) (*models.Game, error)
	ListActive(ctx context.Context) []*models.Game
	ListMine(ctx context.Context) []*models.Game
	AwaitRandomness(ctx context.Context, gameID uint64) (*models.Game, bool)
	HouseBalance(ctx context.Context) (string, error)
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	Username     string `json:"username"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// TokenClaims JWT Claims
type TokenClaims struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// CreateGameRequest 创建游戏请求
type CreateGameRequest struct {
	Name          string `json:"name" binding:"required,max=64"`
	Mode          string `json:"mode" binding:"required"`
	MaxPlayers    uint64 `json:"max_players"`
	DurationHours uint64 `json:"duration_hours"`
	Password      string `json:"password"`
	Stake         string `json:"stake" binding:"required"` // 十进制币值字符串
}

// CreateGameResponse 创建游戏响应
type CreateGameResponse struct {
	Game       *models.Game `json:"game"`
	TxHash     string       `json:"tx_hash"`
	VRFPending bool         `json:"vrf_pending"` // 随机数仍在等待，稍后可再查
}

// JoinGameRequest 加入游戏请求
type JoinGameRequest struct {
	GameID   uint64 `json:"game_id" binding:"required"`
	Password string `json:"password"`
	Stake    string `json:"stake" binding:"required"`
}

// SubmitScoreRequest 提交分数请求
type SubmitScoreRequest struct {
	GameID uint64 `json:"game_id" binding:"required"`
	Score  int64  `json:"score" binding:"min=0"`
}

// SubmitScoreResponse 提交分数响应
type SubmitScoreResponse struct {
	Game   *models.Game `json:"game"`
	TxHash string       `json:"tx_hash"`
}

// TxResponse 交易响应
type TxResponse struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}
