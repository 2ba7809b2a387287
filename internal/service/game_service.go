package service

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/wfunc/chain-game/internal/cache"
	"github.com/wfunc/chain-game/internal/chain"
	"github.com/wfunc/chain-game/internal/errors"
	"github.com/wfunc/chain-game/internal/logger"
	"github.com/wfunc/chain-game/internal/models"
	"go.uber.org/zap"
)

// EventParser 从交易回执中提取合约事件
type EventParser interface {
	ParseGameCreated(receipt *types.Receipt) (*chain.GameCreatedEvent, error)
}

// gameService 游戏服务实现
// 只做编排：链上合约是唯一权威，这里把提交、轮询、发现、缓存串起来
type gameService struct {
	backend     chain.Backend
	events      EventParser
	submitter   *chain.Submitter
	discovery   *chain.Discovery
	resolver    *chain.Resolver
	coordinator *chain.Coordinator
	normalizer  *chain.Normalizer
	cache       *cache.ReconcilingCache
	log         *zap.Logger
}

// NewGameService 创建游戏服务
func NewGameService(
	backend chain.Backend,
	events EventParser,
	submitter *chain.Submitter,
	discovery *chain.Discovery,
	resolver *chain.Resolver,
	coordinator *chain.Coordinator,
	normalizer *chain.Normalizer,
	gameCache *cache.ReconcilingCache,
	log *zap.Logger,
) GameService {
	return &gameService{
		backend:     backend,
		events:      events,
		submitter:   submitter,
		discovery:   discovery,
		resolver:    resolver,
		coordinator: coordinator,
		normalizer:  normalizer,
		cache:       gameCache,
		log:         log,
	}
}

// CreateGame 创建游戏
// 交易上链后从回执事件拿到游戏ID，接着等待随机数履约；
// 等待超时不算失败，返回等待中标记由调用方稍后再查
func (s *gameService) CreateGame(ctx context.Context, req *CreateGameRequest) (*CreateGameResponse, error) {
	params, err := s.buildCreateParams(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	receipt, err := s.submitter.Submit(ctx, func(ctx context.Context) (*types.Transaction, error) {
		return s.backend.CreateGame(ctx, *params)
	})
	if err != nil {
		logger.LogChainCall("createGame", 0, "", time.Since(start), err)
		return nil, err
	}

	ev, err := s.events.ParseGameCreated(receipt)
	if err != nil {
		// 交易成功但事件缺失：链上状态已变，只能报解码错误让调用方走列表刷新兜底
		s.log.Error("创建成功但事件解码失败",
			zap.String("tx_hash", receipt.TxHash.Hex()),
			zap.Error(err))
		return nil, err
	}
	logger.LogChainCall("createGame", ev.GameID, receipt.TxHash.Hex(), time.Since(start), nil)

	game, pending := s.resolver.Await(ctx, ev.GameID)
	s.cache.RefreshAsync(s.backend.Caller().Hex())

	return &CreateGameResponse{
		Game:       game,
		TxHash:     receipt.TxHash.Hex(),
		VRFPending: pending,
	}, nil
}

// JoinGame 加入游戏
func (s *gameService) JoinGame(ctx context.Context, req *JoinGameRequest) (*TxResponse, error) {
	stake, err := chain.FromDecimalString(req.Stake)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidParam, "押金格式无效")
	}

	receipt, err := s.submitter.Submit(ctx, func(ctx context.Context) (*types.Transaction, error) {
		return s.backend.JoinGame(ctx, req.GameID, req.Password, stake)
	})
	if err != nil {
		return nil, err
	}

	s.cache.RefreshAsync(s.backend.Caller().Hex())
	return txResponse(receipt), nil
}

// SubmitScore 提交分数
// 人机对战直接提交完局分数；玩家对战走单交易的承诺-揭示-结算
func (s *gameService) SubmitScore(ctx context.Context, req *SubmitScoreRequest) (*SubmitScoreResponse, error) {
	raw, err := s.backend.GetGame(ctx, req.GameID)
	if err != nil {
		return nil, err
	}
	if !raw.Exists() {
		return nil, errors.Newf(errors.ErrNotFound, "游戏 %d 不存在", req.GameID)
	}
	game := s.normalizer.Normalize(ctx, raw, s.backend.GetGamePlayers)

	var receipt *types.Receipt
	switch game.Mode {
	case models.ModePlayerVsPlayer:
		receipt, err = s.coordinator.CommitRevealAndSubmit(ctx, req.GameID, req.Score)
	default:
		receipt, err = s.submitter.Submit(ctx, func(ctx context.Context) (*types.Transaction, error) {
			return s.backend.SubmitCompletion(ctx, req.GameID, req.Score)
		})
	}
	if err != nil {
		return nil, err
	}

	// 结算后重读链上状态，拿到赢家与奖金
	updated := game
	if raw, rerr := s.backend.GetGame(ctx, req.GameID); rerr == nil && raw.Exists() {
		updated = s.normalizer.Normalize(ctx, raw, s.backend.GetGamePlayers)
	}
	s.cache.RefreshAsync(s.backend.Caller().Hex())

	return &SubmitScoreResponse{
		Game:   updated,
		TxHash: receipt.TxHash.Hex(),
	}, nil
}

// CommitScore 提交分数承诺（玩家对战的分步流程）
func (s *gameService) CommitScore(ctx context.Context, gameID uint64, score int64) (*TxResponse, error) {
	_, receipt, err := s.coordinator.Commit(ctx, gameID, score)
	if err != nil {
		return nil, err
	}
	return txResponse(receipt), nil
}

// RevealScore 揭示分数
func (s *gameService) RevealScore(ctx context.Context, gameID uint64, score int64) (*TxResponse, error) {
	receipt, err := s.coordinator.Reveal(ctx, gameID, score)
	if err != nil {
		return nil, err
	}
	s.cache.RefreshAsync(s.backend.Caller().Hex())
	return txResponse(receipt), nil
}

// CancelGame 取消游戏
func (s *gameService) CancelGame(ctx context.Context, gameID uint64) (*TxResponse, error) {
	receipt, err := s.submitter.Submit(ctx, func(ctx context.Context) (*types.Transaction, error) {
		return s.backend.CancelGame(ctx, gameID)
	})
	if err != nil {
		return nil, err
	}
	s.cache.RefreshAsync(s.backend.Caller().Hex())
	return txResponse(receipt), nil
}

// GameDetail 读取单个游戏
func (s *gameService) GameDetail(ctx context.Context, gameID uint64) (*models.Game, error) {
	raw, err := s.backend.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if !raw.Exists() {
		return nil, errors.Newf(errors.ErrNotFound, "游戏 %d 不存在", gameID)
	}
	return s.normalizer.Normalize(ctx, raw, s.backend.GetGamePlayers), nil
}

// ListActive 列出进行中的游戏
func (s *gameService) ListActive(ctx context.Context) []*models.Game {
	return s.discovery.ListActiveGames(ctx)
}

// ListMine 列出签名账户相关的游戏（走缓存，可能返回略旧的快照）
func (s *gameService) ListMine(ctx context.Context) []*models.Game {
	return s.cache.Get(ctx, s.backend.Caller().Hex())
}

// AwaitRandomness 等待指定游戏的随机数履约
func (s *gameService) AwaitRandomness(ctx context.Context, gameID uint64) (*models.Game, bool) {
	game, pending := s.resolver.Await(ctx, gameID)
	if !pending {
		s.cache.RefreshAsync(s.backend.Caller().Hex())
	}
	return game, pending
}

// HouseBalance 读取庄家资金池余额（十进制币值）
func (s *gameService) HouseBalance(ctx context.Context) (string, error) {
	balance, err := s.backend.HouseBalance(ctx)
	if err != nil {
		return "", err
	}
	return chain.ToDecimalString(balance), nil
}

// buildCreateParams 校验并构建创建参数
func (s *gameService) buildCreateParams(req *CreateGameRequest) (*chain.CreateGameParams, error) {
	var mode uint8
	switch models.GameMode(req.Mode) {
	case models.ModeAIVsPlayer:
		mode = 0
	case models.ModePlayerVsPlayer:
		mode = 1
	default:
		return nil, errors.Newf(errors.ErrInvalidParam, "未知的游戏模式: %s", req.Mode)
	}

	maxPlayers := req.MaxPlayers
	if mode == 0 {
		// 人机对战恒为单人
		maxPlayers = 1
	} else if maxPlayers < 2 {
		maxPlayers = 2
	}

	duration := req.DurationHours
	if duration == 0 {
		duration = 24
	}

	stake, err := chain.FromDecimalString(req.Stake)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidParam, "押金格式无效")
	}
	if stake.Sign() <= 0 {
		return nil, errors.New(errors.ErrInvalidParam, "押金必须大于零")
	}

	return &chain.CreateGameParams{
		Name:          req.Name,
		Mode:          mode,
		MaxPlayers:    maxPlayers,
		DurationHours: duration,
		Password:      req.Password,
		Stake:         stake,
	}, nil
}

func txResponse(receipt *types.Receipt) *TxResponse {
	resp := &TxResponse{TxHash: receipt.TxHash.Hex()}
	if receipt.BlockNumber != nil {
		resp.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return resp
}
