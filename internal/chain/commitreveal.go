package chain

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/wfunc/chain-game/internal/errors"
	"github.com/wfunc/chain-game/internal/models"
	"go.uber.org/zap"
)

// CommitStore 提交记录存储
// 盐值必须保留到揭示完成，否则揭示必然失败且无法恢复
type CommitStore interface {
	Save(ctx context.Context, record *models.CommitRecord) error
	Find(ctx context.Context, chainID, gameID uint64, address string) (*models.CommitRecord, error)
	MarkRevealed(ctx context.Context, chainID, gameID uint64, address string) error
}

// Coordinator 提交-揭示协调器
// 玩家对战中，原始步数在所有人提交承诺前不得泄露，防止后手按已知目标调整打法。
// 承诺哈希由合约侧计算验证，协调器只负责生成足够随机的盐值并保存到揭示为止
type Coordinator struct {
	backend   Backend
	submitter *Submitter
	store     CommitStore
	log       *zap.Logger
}

// NewCoordinator 创建提交-揭示协调器
func NewCoordinator(backend Backend, submitter *Submitter, store CommitStore, log *zap.Logger) *Coordinator {
	return &Coordinator{
		backend:   backend,
		submitter: submitter,
		store:     store,
		log:       log,
	}
}

// NewSalt 生成全宽度随机盐值（256位）
func NewSalt() (*big.Int, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(buf), nil
}

// CommitHash 计算承诺哈希
// 与合约侧 keccak256(abi.encodePacked(score, salt, caller, gameId)) 的布局一致
func CommitHash(score int64, salt *big.Int, caller common.Address, gameID uint64) common.Hash {
	buf := make([]byte, 0, 32+32+20+32)
	buf = append(buf, common.LeftPadBytes(new(big.Int).SetInt64(score).Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(salt.Bytes(), 32)...)
	buf = append(buf, caller.Bytes()...)
	buf = append(buf, common.LeftPadBytes(new(big.Int).SetUint64(gameID).Bytes(), 32)...)
	return crypto.Keccak256Hash(buf)
}

// Commit 提交分数承诺
// 生成盐值并先落库再上链——顺序很重要：交易成功但盐值丢失的状态无法挽回
func (c *Coordinator) Commit(ctx context.Context, gameID uint64, score int64) (common.Hash, *types.Receipt, error) {
	salt, err := NewSalt()
	if err != nil {
		return common.Hash{}, nil, errors.Wrap(err, errors.ErrUnknown, "盐值生成失败")
	}

	caller := c.backend.Caller()
	hash := CommitHash(score, salt, caller, gameID)

	record := &models.CommitRecord{
		ChainID:     c.backend.ChainID(),
		GameID:      gameID,
		Address:     caller.Hex(),
		CommitHash:  hash.Hex(),
		Salt:        salt.String(),
		Score:       score,
		CommittedAt: time.Now(),
	}
	if err := c.store.Save(ctx, record); err != nil {
		return common.Hash{}, nil, errors.Wrap(err, errors.ErrDatabaseInsert, "提交记录保存失败")
	}

	receipt, err := c.submitter.Submit(ctx, func(ctx context.Context) (*types.Transaction, error) {
		return c.backend.CommitScore(ctx, gameID, hash)
	})
	if err != nil {
		return common.Hash{}, nil, err
	}

	record.Committed = true
	if err := c.store.Save(ctx, record); err != nil {
		c.log.Warn("提交标记更新失败", zap.Uint64("game_id", gameID), zap.Error(err))
	}

	c.log.Info("分数承诺已提交",
		zap.Uint64("game_id", gameID),
		zap.String("commit_hash", hash.Hex()))
	return hash, receipt, nil
}

// Reveal 揭示分数
// 盐值与分数和此前的承诺不符时合约以哈希不匹配回滚——这意味着客户端状态丢失，
// 属于致命的用户可见失败，不自动重试
func (c *Coordinator) Reveal(ctx context.Context, gameID uint64, score int64) (*types.Receipt, error) {
	caller := c.backend.Caller()

	record, err := c.store.Find(ctx, c.backend.ChainID(), gameID, caller.Hex())
	if err != nil || record == nil {
		return nil, errors.New(errors.ErrCommitLost).WithCause(err)
	}
	if record.Revealed {
		return nil, errors.New(errors.ErrAlreadyExists, "该承诺已揭示")
	}

	salt, ok := new(big.Int).SetString(record.Salt, 10)
	if !ok {
		return nil, errors.New(errors.ErrCommitLost, "盐值记录损坏")
	}

	receipt, err := c.submitter.Submit(ctx, func(ctx context.Context) (*types.Transaction, error) {
		return c.backend.RevealScore(ctx, gameID, score, salt)
	})
	if err != nil {
		return nil, err
	}

	if err := c.store.MarkRevealed(ctx, c.backend.ChainID(), gameID, caller.Hex()); err != nil {
		c.log.Warn("揭示标记更新失败", zap.Uint64("game_id", gameID), zap.Error(err))
	}

	c.log.Info("分数已揭示", zap.Uint64("game_id", gameID))
	return receipt, nil
}

// CommitRevealAndSubmit 单交易完成提交、揭示与结算
// 仅需一次签名的场景下的体验优化：盐值即用即弃，无需跨交易保存
func (c *Coordinator) CommitRevealAndSubmit(ctx context.Context, gameID uint64, score int64) (*types.Receipt, error) {
	salt, err := NewSalt()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUnknown, "盐值生成失败")
	}

	receipt, err := c.submitter.Submit(ctx, func(ctx context.Context) (*types.Transaction, error) {
		return c.backend.CommitRevealAndSubmit(ctx, gameID, score, salt)
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("分数已单交易提交并结算", zap.Uint64("game_id", gameID))
	return receipt, nil
}
