package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/wfunc/chain-game/internal/config"
	"github.com/wfunc/chain-game/internal/errors"
	"go.uber.org/zap"
)

// SendFunc 状态变更调用的发送函数，恰好广播一笔交易
type SendFunc func(ctx context.Context) (*types.Transaction, error)

// Submitter 交易提交器
// 发送阶段的错误立即归类上抛；回执等待阶段遇到限流时按指数退避重试，
// 重试的是等待步骤而非交易本身——交易已进入内存池，重新广播会造成重复
type Submitter struct {
	backend    Backend
	log        *zap.Logger
	retryBase  time.Duration
	maxRetries int
	sleep      func(time.Duration)
}

// NewSubmitter 创建交易提交器
func NewSubmitter(backend Backend, cfg *config.SubmitConfig, log *zap.Logger) *Submitter {
	retryBase := cfg.RetryBase
	if retryBase <= 0 {
		retryBase = 2 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Submitter{
		backend:    backend,
		log:        log,
		retryBase:  retryBase,
		maxRetries: maxRetries,
		sleep:      time.Sleep,
	}
}

// Submit 发送状态变更调用并等待上链
// 失败语义：合约回滚返回ErrReverted（带解码原因），限流重试耗尽返回ErrRateLimited，
// 签名者拒绝返回ErrUserRejected，其余错误原样上抛
func (s *Submitter) Submit(ctx context.Context, send SendFunc) (*types.Receipt, error) {
	start := time.Now()

	tx, err := send(ctx)
	if err != nil {
		classified := ClassifySendError(err)
		s.log.Debug("交易发送失败",
			zap.Error(classified),
			zap.Duration("elapsed", time.Since(start)))
		return nil, classified
	}

	s.log.Debug("交易已广播，等待上链",
		zap.String("tx_hash", tx.Hash().Hex()))

	// 回执等待：仅此步骤可重试
	for attempt := 0; ; attempt++ {
		receipt, err := s.backend.WaitMined(ctx, tx)
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				// 回执状态失败但无错误数据：按无原因回滚处理
				return nil, errors.Reverted("")
			}
			s.log.Info("交易已上链",
				zap.String("tx_hash", tx.Hash().Hex()),
				zap.Uint64("block", receipt.BlockNumber.Uint64()),
				zap.Int("wait_attempts", attempt+1),
				zap.Duration("elapsed", time.Since(start)))
			return receipt, nil
		}

		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), errors.ErrCanceled)
		}

		if !IsRateLimitError(err) {
			// 非限流错误立即上抛，不做归类
			if reason, ok := ExtractRevertReason(err); ok {
				return nil, errors.Reverted(reason).WithCause(err)
			}
			return nil, err
		}

		if attempt >= s.maxRetries {
			s.log.Warn("回执等待限流重试耗尽",
				zap.String("tx_hash", tx.Hash().Hex()),
				zap.Int("attempts", attempt))
			return nil, errors.Wrap(err, errors.ErrRateLimited)
		}

		// 指数退避：base × 2^attempt（base=2s时依次为2s/4s/8s/16s/32s）
		wait := s.retryBase << uint(attempt)
		s.log.Debug("回执等待被限流，退避后重试",
			zap.String("tx_hash", tx.Hash().Hex()),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait))
		s.sleep(wait)
	}
}
