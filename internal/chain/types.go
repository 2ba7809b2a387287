package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// 游戏模式的原始枚举值（合约侧定义）
const (
	rawModeAIVsPlayer     = 0
	rawModePlayerVsPlayer = 1
)

// 游戏状态的原始枚举值（合约侧定义）
const (
	rawStatusCreated    = 0
	rawStatusWaitingVRF = 1
	rawStatusInProgress = 2
	rawStatusCompleted  = 3
	rawStatusTied       = 4
	rawStatusCancelled  = 5
)

// RawGame 合约返回的原始游戏记录
// 字段为宽松类型（旧版合约可能缺失部分字段，对应指针为nil），
// 一律经过 Normalizer 防御性转换后才进入应用层
type RawGame struct {
	ID             *big.Int
	Name           string
	Creator        common.Address
	GameType       uint8
	Status         uint8
	Stake          *big.Int
	PrizePool      *big.Int
	WinnerPrize    *big.Int // 新版合约直接返回的奖金，0表示未提供
	MaxPlayers     *big.Int
	CurrentPlayers *big.Int
	CreatedAt      *big.Int
	StartedAt      *big.Int
	CompletedAt    *big.Int
	EndTime        *big.Int
	Winner         common.Address
	WinnerScore    *big.Int
	FinalScore     *big.Int
	VRFRequestID   *big.Int
	VRFFulfilled   bool
	RandomNumber   *big.Int
	CardOrder      []*big.Int
	PasswordHash   common.Hash
}

// Exists 判断记录是否存在（合约对缺失ID返回全零记录）
func (r *RawGame) Exists() bool {
	return r != nil && r.ID != nil && r.ID.Sign() > 0
}

// RawPlayer 合约返回的原始玩家记录
type RawPlayer struct {
	Joined      bool
	Completed   bool
	MoveCount   *big.Int
	FinalScore  *big.Int
	CompletedAt *big.Int
}

// CreateGameParams 创建游戏参数
type CreateGameParams struct {
	Name          string
	Mode          uint8
	MaxPlayers    uint64
	DurationHours uint64
	Password      string
	Stake         *big.Int // wei，随交易转账
}

// GameCreatedEvent GameCreated事件
type GameCreatedEvent struct {
	GameID     uint64
	Name       string
	Creator    common.Address
	Mode       uint8
	Stake      *big.Int
	MaxPlayers uint64
	TxHash     common.Hash
}

// GameCompletedEvent GameCompleted事件
type GameCompletedEvent struct {
	GameID       uint64
	Winner       common.Address
	Prize        *big.Int
	FinalScore   *big.Int
	VRFRequestID *big.Int
	TxHash       common.Hash
}

// VRFFulfilledEvent VRFFulfilled事件
type VRFFulfilledEvent struct {
	GameID       uint64
	RequestID    *big.Int
	RandomNumber *big.Int
	CardOrder    []*big.Int
	TxHash       common.Hash
}

// Backend 远程合约服务接口
// 镜像合约的RPC表面；实现方负责传输层细节，不负责重试（重试属于Submitter/Resolver）
type Backend interface {
	// 只读调用
	GetGame(ctx context.Context, gameID uint64) (*RawGame, error)
	GetPlayer(ctx context.Context, gameID uint64, addr common.Address) (*RawPlayer, error)
	GetGamePlayers(ctx context.Context, gameID uint64) ([]common.Address, error)
	GetActiveGames(ctx context.Context) ([]uint64, error)
	GetPlayerGames(ctx context.Context, addr common.Address) ([]uint64, error)
	HouseBalance(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterGameCreated(ctx context.Context, fromBlock, toBlock uint64) ([]GameCreatedEvent, error)

	// 状态变更调用（每次调用恰好广播一笔交易）
	CreateGame(ctx context.Context, params CreateGameParams) (*types.Transaction, error)
	JoinGame(ctx context.Context, gameID uint64, password string, stake *big.Int) (*types.Transaction, error)
	CommitScore(ctx context.Context, gameID uint64, hash common.Hash) (*types.Transaction, error)
	RevealScore(ctx context.Context, gameID uint64, score int64, salt *big.Int) (*types.Transaction, error)
	CommitRevealAndSubmit(ctx context.Context, gameID uint64, score int64, salt *big.Int) (*types.Transaction, error)
	SubmitCompletion(ctx context.Context, gameID uint64, score int64) (*types.Transaction, error)
	CancelGame(ctx context.Context, gameID uint64) (*types.Transaction, error)

	// WaitMined 等待交易上链（广播与等待分离，等待可独立重试而不会重复广播）
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)

	// Caller 返回签名账户地址
	Caller() common.Address

	// ChainID 返回链标识（缓存键作用域）
	ChainID() uint64
}
